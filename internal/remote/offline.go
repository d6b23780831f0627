package remote

import (
	"context"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

// Offline satisfies Gateway when no remote store is configured.
// Reconciliation calls succeed with nothing to do; blob transfer is refused.
type Offline struct{}

// NewOffline creates the offline gateway
func NewOffline() *Offline {
	return &Offline{}
}

func (o *Offline) PushVenues(ctx context.Context, venues []*models.Venue, since time.Time) (PushResult, error) {
	return PushResult{}, nil
}

func (o *Offline) PullVenueInfo(ctx context.Context, since time.Time) ([]models.VenueInfo, error) {
	return nil, nil
}

func (o *Offline) UploadBlob(ctx context.Context, data []byte, ownerID string) (string, error) {
	return "", models.ErrOffline
}

func (o *Offline) DownloadBlob(ctx context.Context, ref string) ([]byte, error) {
	return nil, models.ErrOffline
}

func (o *Offline) FetchVenueInfo(ctx context.Context, id string) (*models.VenueInfo, error) {
	return nil, nil
}

func (o *Offline) Mode() string { return ModeOffline }
