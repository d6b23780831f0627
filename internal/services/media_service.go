package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/remote"
	"github.com/goldengai/venuesync/internal/repository"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is called after each batch item with completed and total counts
type ProgressFunc func(done, total int)

// MediaService runs the photo pipeline: encode, persist locally, upload,
// then record the remote reference on the venue.
type MediaService struct {
	venues      *VenueService
	media       repository.MediaRepo
	prefs       *repository.Preferences
	gateway     remote.Gateway
	codec       *ImageCodec
	metrics     *observability.SyncMetrics
	concurrency int
}

// MediaOptions tunes the pipeline
type MediaOptions struct {
	JPEGQuality  int
	MaxDimension int
	MaxBytes     int64
	Concurrency  int
}

// NewMediaService creates a new MediaService
func NewMediaService(
	venues *VenueService,
	media repository.MediaRepo,
	prefs *repository.Preferences,
	gateway remote.Gateway,
	metrics *observability.SyncMetrics,
	opts MediaOptions,
) *MediaService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &MediaService{
		venues:      venues,
		media:       media,
		prefs:       prefs,
		gateway:     gateway,
		codec:       NewImageCodec(opts.JPEGQuality, opts.MaxDimension, opts.MaxBytes),
		metrics:     metrics,
		concurrency: opts.Concurrency,
	}
}

// Upload processes a photo for a venue.
// Encoding and local persistence failures are returned as errors. An upload
// failure is not: the result reports LocalSaved without Uploaded and the
// blob is retried on the next sync. When the upload lands but the venue
// cannot record the ref, the result carries Uploaded and Ref alongside the
// write error and the blob stays marked for retry.
func (s *MediaService) Upload(ctx context.Context, data []byte, venueID string) (*models.UploadResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "MediaService", "Upload", observability.VenueID(venueID))
	defer span.End()
	log := observability.WithContext(ctx).WithField("venue_id", venueID)

	if _, err := s.venues.Get(ctx, venueID); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	encoded, err := s.codec.Encode(data)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	size, err := s.media.Save(venueID, encoded)
	if err != nil {
		if !errors.Is(err, models.ErrFileTooLarge) && !errors.Is(err, models.ErrStorageFailed) {
			err = fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
		}
		observability.RecordError(span, err)
		return nil, err
	}

	result := &models.UploadResult{VenueID: venueID, LocalSaved: true, Size: size}

	ref, err := s.gateway.UploadBlob(ctx, encoded, venueID)
	if err != nil {
		s.metrics.RecordUpload(ctx, size, false)
		if markErr := s.prefs.MarkPendingUpload(ctx, venueID); markErr != nil {
			log.WithError(markErr).Warn("Failed to record pending upload")
		}
		log.WithError(err).Info("Photo saved locally, upload deferred")
		result.UploadErr = err
		observability.AddEvent(span, "upload_deferred")
		return result, nil
	}
	s.metrics.RecordUpload(ctx, size, true)

	result.Uploaded = true
	result.Ref = ref

	if _, err := s.venues.AddPhoto(ctx, venueID, ref); err != nil {
		// The blob is remote but unrecorded; the marker re-runs it on the next sync
		if errors.Is(err, models.ErrNotFound) {
			err = errors.Join(err, s.prefs.ClearPendingUpload(ctx, venueID))
		} else if markErr := s.prefs.MarkPendingUpload(ctx, venueID); markErr != nil {
			log.WithError(markErr).Warn("Failed to record pending upload")
		}
		log.WithError(err).WithField("ref", ref).Warn("Uploaded photo could not be recorded on the venue")
		observability.RecordError(span, err)
		return result, err
	}
	if err := s.prefs.ClearPendingUpload(ctx, venueID); err != nil {
		log.WithError(err).Warn("Failed to clear upload marker")
	}

	observability.SetSuccess(span)
	return result, nil
}

// Load returns the stored JPEG for a venue
func (s *MediaService) Load(ctx context.Context, venueID string) ([]byte, error) {
	data, err := s.media.Load(venueID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, &models.NotFoundError{Kind: "photo", ID: venueID}
	}
	return data, nil
}

// Delete removes the local photo of a venue. Remote refs are kept.
func (s *MediaService) Delete(ctx context.Context, venueID string) error {
	if err := s.media.Delete(venueID); err != nil {
		return err
	}
	return s.prefs.ClearPendingUpload(ctx, venueID)
}

// Size returns the stored size of a venue's photo
func (s *MediaService) Size(venueID string) (int64, error) {
	return s.media.Size(venueID)
}

// TotalSize sums every stored photo
func (s *MediaService) TotalSize() (int64, error) {
	return s.media.TotalSize()
}

// LocalIDs lists venues that have a photo on disk, sorted
func (s *MediaService) LocalIDs() ([]string, error) {
	blobs, err := s.media.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(blobs))
	for _, b := range blobs {
		ids = append(ids, b.VenueID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Usage reports local storage consumption and the upload backlog
func (s *MediaService) Usage(ctx context.Context) (*models.MediaUsageResponse, error) {
	total, err := s.media.TotalSize()
	if err != nil {
		return nil, err
	}
	ids, err := s.LocalIDs()
	if err != nil {
		return nil, err
	}
	pending, err := s.prefs.PendingUploads(ctx)
	if err != nil {
		return nil, err
	}
	return &models.MediaUsageResponse{TotalBytes: total, VenueIDs: ids, Pending: pending}, nil
}

// ClearAll wipes every local photo and pending marker
func (s *MediaService) ClearAll(ctx context.Context) error {
	pending, err := s.prefs.PendingUploads(ctx)
	if err != nil {
		return err
	}
	if err := s.media.Clear(); err != nil {
		return err
	}
	for _, id := range pending {
		if err := s.prefs.ClearPendingUpload(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ClearOlderThan drops local photos older than age that are not awaiting upload
func (s *MediaService) ClearOlderThan(ctx context.Context, age time.Duration) (int, error) {
	pending, err := s.prefs.PendingUploads(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return s.media.ClearOlderThan(age)
	}

	keep := make(map[string]bool, len(pending))
	for _, id := range pending {
		keep[id] = true
	}
	blobs, err := s.media.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age)
	removed := 0
	for _, b := range blobs {
		if keep[b.VenueID] || !b.ModifiedAt.Before(cutoff) {
			continue
		}
		if err := s.media.Delete(b.VenueID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DownloadMany fetches every item into local storage. One item failing does
// not stop the others; failures are logged and counted. Items the gateway
// defers with ErrOffline count as Deferred, not Requested.
func (s *MediaService) DownloadMany(ctx context.Context, items []models.DownloadItem, progress ProgressFunc) models.BatchResult {
	tasks := make([]batchTask, 0, len(items))
	for _, it := range items {
		tasks = append(tasks, batchTask{id: it.VenueID, run: func(ctx context.Context) error {
			return s.download(ctx, it)
		}})
	}
	return s.runBatch(ctx, "download", tasks, progress)
}

// Reconcile uploads pending local photos and downloads missing remote ones
// as a single batch
func (s *MediaService) Reconcile(ctx context.Context, progress ProgressFunc) (models.BatchResult, error) {
	uploads, err := s.pendingTasks(ctx)
	if err != nil {
		return models.BatchResult{}, err
	}
	downloads, err := s.missingDownloads(ctx)
	if err != nil {
		return models.BatchResult{}, err
	}

	tasks := uploads
	for _, it := range downloads {
		tasks = append(tasks, batchTask{id: it.VenueID, run: func(ctx context.Context) error {
			return s.download(ctx, it)
		}})
	}
	return s.runBatch(ctx, "reconcile", tasks, progress), nil
}

// RetryPending re-attempts uploads that failed earlier
func (s *MediaService) RetryPending(ctx context.Context, progress ProgressFunc) (models.BatchResult, error) {
	tasks, err := s.pendingTasks(ctx)
	if err != nil {
		return models.BatchResult{}, err
	}
	return s.runBatch(ctx, "retry", tasks, progress), nil
}

type batchTask struct {
	id  string
	run func(ctx context.Context) error
}

func (s *MediaService) runBatch(ctx context.Context, name string, tasks []batchTask, progress ProgressFunc) models.BatchResult {
	result := models.BatchResult{Requested: len(tasks)}
	if len(tasks) == 0 {
		return result
	}

	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, t := range tasks {
		g.Go(func() error {
			err := t.run(gctx)

			mu.Lock()
			defer mu.Unlock()
			done++
			if errors.Is(err, models.ErrOffline) {
				result.Deferred++
			} else if err != nil {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, t.id)
				observability.WithContext(ctx).WithFields(map[string]interface{}{
					"batch":    name,
					"venue_id": t.id,
				}).WithError(err).Warn("Media batch item failed")
			} else {
				result.Successful++
			}
			if progress != nil {
				progress(done, len(tasks))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Requested -= result.Deferred
	sort.Strings(result.FailedIDs)
	return result
}

// pendingTasks builds upload tasks for marked venues, dropping stale markers
func (s *MediaService) pendingTasks(ctx context.Context) ([]batchTask, error) {
	ids, err := s.prefs.PendingUploads(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make([]batchTask, 0, len(ids))
	for _, id := range ids {
		if !s.media.Exists(id) {
			if err := s.prefs.ClearPendingUpload(ctx, id); err != nil {
				return nil, err
			}
			continue
		}
		tasks = append(tasks, batchTask{id: id, run: func(ctx context.Context) error {
			return s.uploadStored(ctx, id)
		}})
	}
	return tasks, nil
}

// missingDownloads lists venues with a remote photo and no local copy
func (s *MediaService) missingDownloads(ctx context.Context) ([]models.DownloadItem, error) {
	venues, err := s.venues.List(ctx, models.SortByName)
	if err != nil {
		return nil, err
	}
	var items []models.DownloadItem
	for _, v := range venues {
		if len(v.PhotoRefs) == 0 || s.media.Exists(v.ID) {
			continue
		}
		items = append(items, models.DownloadItem{VenueID: v.ID, Ref: v.PhotoRefs[len(v.PhotoRefs)-1]})
	}
	return items, nil
}

func (s *MediaService) uploadStored(ctx context.Context, venueID string) error {
	data, err := s.media.Load(venueID)
	if err != nil {
		return err
	}
	if data == nil {
		return s.prefs.ClearPendingUpload(ctx, venueID)
	}

	ref, err := s.gateway.UploadBlob(ctx, data, venueID)
	s.metrics.RecordUpload(ctx, int64(len(data)), err == nil)
	if err != nil {
		return err
	}
	if _, err := s.venues.AddPhoto(ctx, venueID, ref); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.prefs.ClearPendingUpload(ctx, venueID)
		}
		return err
	}
	return s.prefs.ClearPendingUpload(ctx, venueID)
}

func (s *MediaService) download(ctx context.Context, item models.DownloadItem) error {
	data, err := s.gateway.DownloadBlob(ctx, item.Ref)
	if err != nil {
		return err
	}
	_, err = s.media.Save(item.VenueID, data)
	return err
}
