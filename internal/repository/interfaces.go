package repository

import (
	"context"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

// VenueRepo defines the durable venue store
type VenueRepo interface {
	List(ctx context.Context, sort models.VenueSort) ([]*models.Venue, error)
	Get(ctx context.Context, id string) (*models.Venue, error)
	Upsert(ctx context.Context, venue *models.Venue) error
	Delete(ctx context.Context, id string) error
	ListByTag(ctx context.Context, tag string) ([]*models.Venue, error)
	ListVisited(ctx context.Context) ([]*models.Venue, error)
	ListModifiedSince(ctx context.Context, since time.Time) ([]*models.Venue, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

// PreferenceRepo is a small durable key/value store
type PreferenceRepo interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// MediaRepo stores at most one image blob per venue
type MediaRepo interface {
	Save(venueID string, data []byte) (int64, error)
	Load(venueID string) ([]byte, error)
	Exists(venueID string) bool
	Delete(venueID string) error
	Size(venueID string) (int64, error)
	TotalSize() (int64, error)
	List() ([]models.StoredBlob, error)
	Clear() error
	ClearOlderThan(age time.Duration) (int, error)
}
