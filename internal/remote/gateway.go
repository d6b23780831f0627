// Package remote holds every network call the sync engine makes.
//
// A Gateway is chosen once at startup: a live HTTP client when a remote
// endpoint is configured, Offline otherwise. Callers never branch on which
// one they hold.
package remote

import (
	"context"
	"time"

	"github.com/goldengai/venuesync/internal/config"
	"github.com/goldengai/venuesync/internal/models"
)

// Gateway modes
const (
	ModeLive    = "live"
	ModeOffline = "offline"
)

// PushResult reports how many pushed venues the remote accepted
type PushResult struct {
	Requested   int      `json:"requested"`
	Accepted    int      `json:"accepted"`
	RejectedIDs []string `json:"rejectedIds,omitempty"`
}

// Gateway is the contract with the remote store.
// since is the incremental cutoff; the zero time means everything.
type Gateway interface {
	PushVenues(ctx context.Context, venues []*models.Venue, since time.Time) (PushResult, error)
	PullVenueInfo(ctx context.Context, since time.Time) ([]models.VenueInfo, error)
	UploadBlob(ctx context.Context, data []byte, ownerID string) (string, error)
	DownloadBlob(ctx context.Context, ref string) ([]byte, error)
	FetchVenueInfo(ctx context.Context, id string) (*models.VenueInfo, error)
	Mode() string
}

// BlobStore stores image bytes outside the venue API
type BlobStore interface {
	Put(ctx context.Context, ownerID string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// New builds the gateway for cfg
func New(ctx context.Context, cfg config.Remote) (Gateway, error) {
	if !cfg.IsConfigured() {
		return NewOffline(), nil
	}

	var blobs BlobStore
	if cfg.S3.Bucket != "" {
		s3store, err := NewS3BlobStore(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		blobs = s3store
	}

	return NewHTTPGateway(ctx, cfg, blobs)
}
