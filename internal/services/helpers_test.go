package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/remote"
	"github.com/goldengai/venuesync/internal/repository"
	"github.com/stretchr/testify/require"
)

// fakeGateway is a scriptable remote store
type fakeGateway struct {
	mu sync.Mutex

	// accept returns how many pushed venues are accepted; nil accepts all
	accept  func(requested int) int
	pushErr error
	pullErr error

	infos       []models.VenueInfo
	fetchable   map[string]*models.VenueInfo
	uploadErr   error
	blobs       map[string][]byte
	downloadErr map[string]error

	// entered is signalled and release awaited inside PushVenues when set
	entered chan struct{}
	release chan struct{}

	pushCalls  int
	pushed     []*models.Venue
	pullSince  []time.Time
	pushSince  []time.Time
	fetchCalls int
	uploads    int

	// mode is reported by Mode; empty means live
	mode string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		fetchable:   map[string]*models.VenueInfo{},
		blobs:       map[string][]byte{},
		downloadErr: map[string]error{},
	}
}

func (g *fakeGateway) PushVenues(ctx context.Context, venues []*models.Venue, since time.Time) (remote.PushResult, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
		<-g.release
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushCalls++
	g.pushSince = append(g.pushSince, since)
	if g.pushErr != nil {
		return remote.PushResult{}, g.pushErr
	}

	var batch []*models.Venue
	for _, v := range venues {
		if v.ModifiedAfter(since) {
			batch = append(batch, v.Clone())
		}
	}
	g.pushed = append(g.pushed, batch...)

	accepted := len(batch)
	if g.accept != nil {
		accepted = g.accept(len(batch))
	}
	return remote.PushResult{Requested: len(batch), Accepted: accepted}, nil
}

func (g *fakeGateway) PullVenueInfo(ctx context.Context, since time.Time) ([]models.VenueInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pullSince = append(g.pullSince, since)
	if g.pullErr != nil {
		return nil, g.pullErr
	}
	return append([]models.VenueInfo(nil), g.infos...), nil
}

func (g *fakeGateway) UploadBlob(ctx context.Context, data []byte, ownerID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.uploadErr != nil {
		return "", g.uploadErr
	}
	g.uploads++
	ref := fmt.Sprintf("blob-%s-%d", ownerID, g.uploads)
	g.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (g *fakeGateway) DownloadBlob(ctx context.Context, ref string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.downloadErr[ref]; err != nil {
		return nil, err
	}
	data, ok := g.blobs[ref]
	if !ok {
		return nil, models.ErrInvalidResponse
	}
	return data, nil
}

func (g *fakeGateway) FetchVenueInfo(ctx context.Context, id string) (*models.VenueInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	return g.fetchable[id].Clone(), nil
}

func (g *fakeGateway) Mode() string {
	if g.mode != "" {
		return g.mode
	}
	return remote.ModeLive
}

func (g *fakeGateway) setUploadErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploadErr = err
}

type testEnv struct {
	venueRepo *repository.VenueRepository
	mediaRepo *repository.MediaRepository
	prefs     *repository.Preferences
	venues    *VenueService
	media     *MediaService
	info      *VenueInfoCache
	sync      *SyncService
}

func newTestEnv(t *testing.T, gw remote.Gateway) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := repository.NewSQLiteDB(ctx, filepath.Join(dir, "venues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mediaRepo, err := repository.NewMediaRepository(filepath.Join(dir, "VenueImages"), 5)
	require.NoError(t, err)

	venueRepo := repository.NewVenueRepository(db)
	prefs := repository.NewPreferences(repository.NewPreferenceRepository(db))
	venues := NewVenueService(venueRepo, mediaRepo, prefs)
	media := NewMediaService(venues, mediaRepo, prefs, gw, nil, MediaOptions{
		JPEGQuality:  80,
		MaxDimension: 512,
		MaxBytes:     5 << 20,
		Concurrency:  2,
	})
	info, err := NewVenueInfoCache("", gw)
	require.NoError(t, err)

	syncSvc := NewSyncService(SyncDeps{
		Venues:  venues,
		Prefs:   prefs,
		Gateway: gw,
		Info:    info,
		Media:   media,
	}, time.Hour)
	require.NoError(t, syncSvc.Init(ctx))

	return &testEnv{
		venueRepo: venueRepo,
		mediaRepo: mediaRepo,
		prefs:     prefs,
		venues:    venues,
		media:     media,
		info:      info,
		sync:      syncSvc,
	}
}

func (e *testEnv) seed(t *testing.T, names ...string) []*models.Venue {
	t.Helper()
	out := make([]*models.Venue, 0, len(names))
	for i, name := range names {
		v, err := e.venues.Create(context.Background(), models.VenueRequest{
			Name: name,
			Grid: models.GridPosition{Row: i, Column: i},
		})
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

// makeJPEG encodes a flat w x h image
func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// makeNoiseJPEG encodes random pixels, which compress poorly
func makeNoiseJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}
