package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/remote"
	"github.com/goldengai/venuesync/internal/repository"
)

// SyncService drives reconciliation with the remote store.
// At most one run is in flight per process; phases run in a fixed order and
// earlier phases are never rolled back when a later one fails.
type SyncService struct {
	venues     *VenueService
	prefs      *repository.Preferences
	gateway    remote.Gateway
	info       *VenueInfoCache
	media      *MediaService
	metrics    *observability.SyncMetrics
	events     *SyncEvents
	staleAfter time.Duration
	now        func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	state   models.SyncState
}

// SyncDeps are the collaborators of a SyncService
type SyncDeps struct {
	Venues  *VenueService
	Prefs   *repository.Preferences
	Gateway remote.Gateway
	Info    *VenueInfoCache
	Media   *MediaService
	Metrics *observability.SyncMetrics
}

// NewSyncService creates a new SyncService
func NewSyncService(deps SyncDeps, staleAfter time.Duration) *SyncService {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &SyncService{
		venues:     deps.Venues,
		prefs:      deps.Prefs,
		gateway:    deps.Gateway,
		info:       deps.Info,
		media:      deps.Media,
		metrics:    deps.Metrics,
		events:     NewSyncEvents(),
		staleAfter: staleAfter,
		now:        time.Now,
		state:      models.SyncState{Status: models.SyncIdle},
	}
}

// Init loads the persisted watermark into the observable state
func (s *SyncService) Init(ctx context.Context) error {
	last, err := s.prefs.LastSyncedAt(ctx)
	if err != nil {
		return err
	}
	s.update(func(st *models.SyncState) { st.LastSyncedAt = last })
	return nil
}

// State returns the current snapshot
func (s *SyncService) State() models.SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe streams every state change
func (s *SyncService) Subscribe(buffer int) (<-chan models.SyncState, func()) {
	return s.events.Subscribe(buffer)
}

// Syncing reports whether a run is in flight
func (s *SyncService) Syncing() bool {
	return s.running.Load()
}

// FullSync reconciles everything.
// While another run is in flight it returns ErrSyncInProgress and an outcome
// carrying the in-flight state.
func (s *SyncService) FullSync(ctx context.Context) (*models.SyncOutcome, error) {
	return s.runGuarded(ctx, models.SyncModeFull)
}

// IncrementalSync reconciles changes since the last successful sync
func (s *SyncService) IncrementalSync(ctx context.Context) (*models.SyncOutcome, error) {
	return s.runGuarded(ctx, models.SyncModeIncremental)
}

// Retry starts a new full sync after a failure
func (s *SyncService) Retry(ctx context.Context) (*models.SyncOutcome, error) {
	return s.FullSync(ctx)
}

// Start runs a sync in the background. It returns false with the in-flight
// state when a run already holds the guard.
func (s *SyncService) Start(ctx context.Context, mode models.SyncMode) (models.SyncState, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return s.State(), false
	}
	s.begin(mode)
	state := s.State()

	go func() {
		outcome, err := s.run(context.WithoutCancel(ctx), mode)
		log := observability.WithField("sync_mode", string(mode))
		switch {
		case err != nil:
			log.WithError(err).Warn("Background sync failed")
		case outcome.Partial():
			log.WithError(outcome.Err()).Info("Background sync finished with rejected items")
		}
	}()
	return state, true
}

// Reset clears the watermark and returns to idle
func (s *SyncService) Reset(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return models.ErrSyncInProgress
	}
	defer s.running.Store(false)

	if err := s.prefs.ClearLastSyncedAt(ctx); err != nil {
		return err
	}
	s.update(func(st *models.SyncState) { *st = models.SyncState{Status: models.SyncIdle} })
	return nil
}

// ShouldAutoSync is true when never synced or the watermark is older than the staleness window
func (s *SyncService) ShouldAutoSync(now time.Time) bool {
	if s.running.Load() {
		return false
	}
	last := s.State().LastSyncedAt
	return last == nil || now.Sub(*last) >= s.staleAfter
}

// SyncIfStale runs an incremental sync when the data is stale.
// It returns nil, nil when no sync was needed.
func (s *SyncService) SyncIfStale(ctx context.Context) (*models.SyncOutcome, error) {
	if !s.ShouldAutoSync(s.now()) {
		return nil, nil
	}
	return s.IncrementalSync(ctx)
}

// RunAutoSync checks staleness every interval until ctx is done
func (s *SyncService) RunAutoSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncIfStale(ctx); err != nil && !errors.Is(err, models.ErrSyncInProgress) {
				observability.GetLogger().WithError(err).Warn("Auto sync failed")
			}
		}
	}
}

// TimeSinceLastSync returns the age of the watermark, false when never synced
func (s *SyncService) TimeSinceLastSync(now time.Time) (time.Duration, bool) {
	last := s.State().LastSyncedAt
	if last == nil {
		return 0, false
	}
	return now.Sub(*last), true
}

// StatusText renders the current state for display
func (s *SyncService) StatusText() string {
	return s.State().StatusText()
}

func (s *SyncService) runGuarded(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		return &models.SyncOutcome{Mode: mode, State: s.State()}, models.ErrSyncInProgress
	}
	s.begin(mode)
	return s.run(ctx, mode)
}

func (s *SyncService) begin(mode models.SyncMode) {
	s.update(func(st *models.SyncState) {
		st.Status = models.SyncSyncing
		st.Mode = mode
		st.Phase = models.PhaseVenues
		st.Progress = 0
		st.Reason = ""
		st.MediaDone = 0
		st.MediaTotal = 0
	})
}

// run executes the phases. The caller holds the guard; run releases it.
func (s *SyncService) run(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error) {
	defer s.running.Store(false)

	ctx, span := observability.StartServiceSpan(ctx, "SyncService", "Sync", observability.SyncMode(string(mode)))
	defer span.End()
	log := observability.WithContext(ctx).WithField("sync_mode", string(mode))

	started := s.now().UTC()
	outcome := &models.SyncOutcome{Mode: mode, StartedAt: started}

	if mode == models.SyncModeIncremental {
		last, err := s.prefs.LastSyncedAt(ctx)
		if err != nil {
			return s.fail(ctx, outcome, err)
		}
		if last != nil {
			outcome.Since = *last
		}
	}

	weight := 1.0 / float64(len(models.SyncPhases))
	for i, phase := range models.SyncPhases {
		base := float64(i) * weight
		s.update(func(st *models.SyncState) {
			st.Phase = phase
			st.Progress = base
		})

		phaseStart := time.Now()
		result, err := s.runPhase(ctx, phase, outcome.Since, base, weight)
		result.Phase = phase
		result.Duration = time.Since(phaseStart)
		outcome.Phases = append(outcome.Phases, result)
		s.metrics.RecordPhase(ctx, string(phase), result.Duration, result.Successful, result.Failed)

		if err != nil {
			log.WithField("sync_phase", string(phase)).WithError(err).Warn("Sync phase failed")
			return s.fail(ctx, outcome, fmt.Errorf("%s phase: %w", phase, err))
		}
		log.WithFields(map[string]interface{}{
			"sync_phase": string(phase),
			"requested":  result.Requested,
			"successful": result.Successful,
			"failed":     result.Failed,
		}).Debugf("Sync phase finished")

		s.update(func(st *models.SyncState) { st.Progress = base + weight })
	}

	outcome.FinishedAt = s.now().UTC()
	result := "ok"
	if outcome.Partial() {
		result = "partial"
	} else {
		if err := s.prefs.SetLastSyncedAt(ctx, started); err != nil {
			return s.fail(ctx, outcome, err)
		}
		s.update(func(st *models.SyncState) { st.LastSyncedAt = &started })
	}

	s.update(func(st *models.SyncState) {
		st.Status = models.SyncIdle
		st.Progress = 1
	})
	outcome.State = s.State()
	s.metrics.RecordRun(ctx, string(mode), result)

	if outcome.Partial() {
		observability.AddEvent(span, "partial_sync")
	} else {
		observability.SetSuccess(span)
	}
	return outcome, nil
}

func (s *SyncService) runPhase(ctx context.Context, phase models.SyncPhase, since time.Time, base, weight float64) (models.PhaseResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SyncService", "Phase", observability.SyncPhase(string(phase)))
	defer span.End()

	var (
		result models.PhaseResult
		err    error
	)
	switch phase {
	case models.PhaseVenues:
		result, err = s.syncVenues(ctx, since)
	case models.PhaseVenueInfo:
		result, err = s.syncVenueInfo(ctx, since)
	case models.PhaseMedia:
		result, err = s.syncMedia(ctx, base, weight)
	}
	if err != nil {
		observability.RecordError(span, err)
	} else {
		observability.SetSuccess(span)
	}
	return result, err
}

// syncVenues pushes every venue; the gateway scopes the batch by since
func (s *SyncService) syncVenues(ctx context.Context, since time.Time) (models.PhaseResult, error) {
	venues, err := s.venues.List(ctx, models.SortByName)
	if err != nil {
		return models.PhaseResult{}, err
	}
	pushed, err := s.gateway.PushVenues(ctx, venues, since)
	if err != nil {
		return models.PhaseResult{}, err
	}
	return models.PhaseResult{
		Requested:  pushed.Requested,
		Successful: pushed.Accepted,
		Failed:     pushed.Requested - pushed.Accepted,
	}, nil
}

func (s *SyncService) syncVenueInfo(ctx context.Context, since time.Time) (models.PhaseResult, error) {
	infos, err := s.gateway.PullVenueInfo(ctx, since)
	if err != nil {
		return models.PhaseResult{}, err
	}
	stored := s.info.Merge(infos)
	return models.PhaseResult{Requested: len(infos), Successful: stored, Failed: len(infos) - stored}, nil
}

// syncMedia retries pending uploads and fetches missing photos.
// Transfers the gateway defers leave the phase empty.
func (s *SyncService) syncMedia(ctx context.Context, base, weight float64) (models.PhaseResult, error) {
	batch, err := s.media.Reconcile(ctx, func(done, total int) {
		s.update(func(st *models.SyncState) {
			st.MediaDone = done
			st.MediaTotal = total
			st.Progress = base + weight*float64(done)/float64(total)
		})
	})
	if err != nil {
		return models.PhaseResult{}, err
	}
	return models.PhaseResult{Requested: batch.Requested, Successful: batch.Successful, Failed: batch.Failed}, nil
}

func (s *SyncService) fail(ctx context.Context, outcome *models.SyncOutcome, err error) (*models.SyncOutcome, error) {
	s.update(func(st *models.SyncState) {
		st.Status = models.SyncFailed
		st.Reason = err.Error()
	})
	outcome.FinishedAt = s.now().UTC()
	outcome.State = s.State()
	s.metrics.RecordRun(ctx, string(outcome.Mode), "failed")
	return outcome, err
}

// update mutates the state under lock and publishes the result
func (s *SyncService) update(fn func(st *models.SyncState)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	s.mu.Unlock()
	s.events.Publish(snapshot)
}
