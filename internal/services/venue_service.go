package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/repository"
)

// VenueService applies user edits to venues.
// Every read-modify-write goes through mutate so concurrent sync and UI
// edits of one venue cannot drop each other's changes.
type VenueService struct {
	repo  repository.VenueRepo
	media repository.MediaRepo
	prefs *repository.Preferences
	mu    sync.Mutex
	now   func() time.Time
}

// NewVenueService creates a new VenueService
func NewVenueService(repo repository.VenueRepo, media repository.MediaRepo, prefs *repository.Preferences) *VenueService {
	return &VenueService{
		repo:  repo,
		media: media,
		prefs: prefs,
		now:   time.Now,
	}
}

// Get returns the venue or a not-found error
func (s *VenueService) Get(ctx context.Context, id string) (*models.Venue, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, models.ErrVenueNotFound(id)
	}
	return v, nil
}

func (s *VenueService) List(ctx context.Context, sort models.VenueSort) ([]*models.Venue, error) {
	return s.repo.List(ctx, sort)
}

func (s *VenueService) ListByTag(ctx context.Context, tag string) ([]*models.Venue, error) {
	return s.repo.ListByTag(ctx, strings.TrimSpace(tag))
}

func (s *VenueService) ListVisited(ctx context.Context) ([]*models.Venue, error) {
	return s.repo.ListVisited(ctx)
}

func (s *VenueService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Create stores a new venue built from req
func (s *VenueService) Create(ctx context.Context, req models.VenueRequest) (*models.Venue, error) {
	v, err := models.NewVenue(req.Name, req.NameLocalized, req.Grid)
	if err != nil {
		return nil, err
	}
	v.Tags = models.NewTagSet(req.Tags...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Save writes a complete venue record, typically one seeded from a bundle
func (s *VenueService) Save(ctx context.Context, v *models.Venue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Upsert(ctx, v)
}

// Update replaces the editable descriptive fields of a venue
func (s *VenueService) Update(ctx context.Context, id string, req models.VenueRequest) (*models.Venue, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: venue name cannot be empty", models.ErrValidation)
	}
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		v.Name = name
		v.NameLocalized = strings.TrimSpace(req.NameLocalized)
		v.Grid = req.Grid
		if req.Tags != nil {
			v.Tags = models.NewTagSet(req.Tags...)
		}
		return true
	})
}

// Rename changes the display names of a venue
func (s *VenueService) Rename(ctx context.Context, id, name, nameLocalized string) (*models.Venue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: venue name cannot be empty", models.ErrValidation)
	}
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		localized := strings.TrimSpace(nameLocalized)
		if v.Name == name && v.NameLocalized == localized {
			return false
		}
		v.Name = name
		v.NameLocalized = localized
		return true
	})
}

// MarkVisited flags a venue as visited, at now when at is nil
func (s *VenueService) MarkVisited(ctx context.Context, id string, at *time.Time) (*models.Venue, error) {
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		v.MarkVisited(at, s.now())
		return true
	})
}

// ClearVisited resets the visited flag and timestamp
func (s *VenueService) ClearVisited(ctx context.Context, id string) (*models.Venue, error) {
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		if !v.Visited {
			return false
		}
		v.ClearVisited()
		return true
	})
}

// AddPhoto records a remote photo reference. Adding a known ref is a no-op.
func (s *VenueService) AddPhoto(ctx context.Context, id, ref string) (*models.Venue, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: photo reference cannot be empty", models.ErrValidation)
	}
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		return v.AddPhoto(ref)
	})
}

// RemovePhoto forgets a photo reference
func (s *VenueService) RemovePhoto(ctx context.Context, id, ref string) (*models.Venue, error) {
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		return v.PhotoRefs.Remove(ref)
	})
}

func (s *VenueService) AddTag(ctx context.Context, id, tag string) (*models.Venue, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("%w: tag cannot be empty", models.ErrValidation)
	}
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		return v.Tags.Add(tag)
	})
}

func (s *VenueService) RemoveTag(ctx context.Context, id, tag string) (*models.Venue, error) {
	return s.mutate(ctx, id, func(v *models.Venue) bool {
		return v.Tags.Remove(tag)
	})
}

// Delete removes the venue together with its local photo and upload marker
func (s *VenueService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.media.Delete(id); err != nil {
		observability.WithContext(ctx).WithField("venue_id", id).WithError(err).Warn("Failed to delete local photo")
	}
	if err := s.prefs.ClearPendingUpload(ctx, id); err != nil {
		observability.WithContext(ctx).WithField("venue_id", id).WithError(err).Warn("Failed to clear upload marker")
	}
	return nil
}

// mutate loads id, applies fn and writes the result when fn reports a change.
// The returned venue is the persisted copy.
func (s *VenueService) mutate(ctx context.Context, id string, fn func(v *models.Venue) bool) (*models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, models.ErrVenueNotFound(id)
	}
	if !fn(v) {
		return v, nil
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
