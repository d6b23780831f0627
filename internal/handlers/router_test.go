package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/remote"
	"github.com/goldengai/venuesync/internal/repository"
	"github.com/goldengai/venuesync/internal/services"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "secret"

type apiEnv struct {
	handler http.Handler
	sync    *services.SyncService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := repository.NewSQLiteDB(ctx, filepath.Join(dir, "venues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mediaRepo, err := repository.NewMediaRepository(filepath.Join(dir, "VenueImages"), 5)
	require.NoError(t, err)

	gw := remote.NewOffline()
	prefs := repository.NewPreferences(repository.NewPreferenceRepository(db))
	venues := services.NewVenueService(repository.NewVenueRepository(db), mediaRepo, prefs)
	media := services.NewMediaService(venues, mediaRepo, prefs, gw, nil, services.MediaOptions{
		JPEGQuality:  80,
		MaxDimension: 256,
		MaxBytes:     5 << 20,
	})
	info, err := services.NewVenueInfoCache("", gw)
	require.NoError(t, err)
	syncSvc := services.NewSyncService(services.SyncDeps{
		Venues:  venues,
		Prefs:   prefs,
		Gateway: gw,
		Info:    info,
		Media:   media,
	}, time.Hour)
	require.NoError(t, syncSvc.Init(ctx))

	return &apiEnv{
		handler: NewRouter(RouterDeps{
			Venues:       venues,
			Media:        media,
			Info:         info,
			Sync:         syncSvc,
			RemoteMode:   gw.Mode(),
			APIKey:       testAPIKey,
			APIKeyHeader: "X-API-Key",
		}),
		sync: syncSvc,
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return e.do(t, method, path, data)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48)), nil))
	return buf.Bytes()
}

func TestHealthAndAuth(t *testing.T) {
	env := newAPIEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[models.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, remote.ModeOffline, health.Remote)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/venues", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/venues", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVenueEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/api/venues", models.VenueRequest{Name: "Bar Darling", Tags: []string{"jazz"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[models.Venue](t, rec)
	require.NotEmpty(t, created.ID)

	t.Run("missing name is rejected", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/venues", models.VenueRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("put creates under the given id", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPut, "/api/venues/bar-42", models.VenueRequest{Name: "Bar 42"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "bar-42", decodeBody[models.Venue](t, rec).ID)

		rec = env.doJSON(t, http.MethodPut, "/api/venues/bar-42", models.VenueRequest{Name: "Bar Forty-Two"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Bar Forty-Two", decodeBody[models.Venue](t, rec).Name)
	})

	t.Run("visited round trip", func(t *testing.T) {
		at := time.Date(2024, 5, 5, 22, 0, 0, 0, time.UTC)
		rec := env.doJSON(t, http.MethodPost, "/api/venues/"+created.ID+"/visited", models.VisitRequest{VisitedAt: &at})
		require.Equal(t, http.StatusOK, rec.Code)
		v := decodeBody[models.Venue](t, rec)
		assert.True(t, v.Visited)
		require.NotNil(t, v.VisitedAt)
		assert.True(t, at.Equal(*v.VisitedAt))

		rec = env.do(t, http.MethodGet, "/api/venues?visited=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decodeBody[models.VenueListResponse](t, rec).Count)

		rec = env.do(t, http.MethodDelete, "/api/venues/"+created.ID+"/visited", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, decodeBody[models.Venue](t, rec).VisitedAt)
	})

	t.Run("tags", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/venues/"+created.ID+"/tags", models.TagRequest{Tag: "cosy"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.TagSet{"cosy", "jazz"}, decodeBody[models.Venue](t, rec).Tags)

		rec = env.do(t, http.MethodGet, "/api/venues?tag=cosy", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decodeBody[models.VenueListResponse](t, rec).Count)

		rec = env.do(t, http.MethodDelete, "/api/venues/"+created.ID+"/tags/jazz", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.TagSet{"cosy"}, decodeBody[models.Venue](t, rec).Tags)
	})

	t.Run("list and delete", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/venues?sort=name", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decodeBody[models.VenueListResponse](t, rec).Count)

		rec = env.do(t, http.MethodDelete, "/api/venues/"+created.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/venues/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPhotoEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.doJSON(t, http.MethodPost, "/api/venues", models.VenueRequest{Name: "Bar Photo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[models.Venue](t, rec).ID

	rec = env.do(t, http.MethodPost, "/api/venues/"+id+"/photo", testJPEG(t))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	upload := decodeBody[models.UploadResponse](t, rec)
	assert.True(t, upload.LocalSaved)
	assert.False(t, upload.Uploaded)
	assert.NotEmpty(t, upload.UploadError)

	rec = env.do(t, http.MethodGet, "/api/venues/"+id+"/photo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, "/api/media/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decodeBody[models.MediaUsageResponse](t, rec)
	assert.Equal(t, []string{id}, usage.VenueIDs)
	assert.Equal(t, []string{id}, usage.Pending)

	rec = env.do(t, http.MethodPost, "/api/venues/"+id+"/photo", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/venues/"+id+"/photo", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/venues/"+id+"/photo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/api/venues/bar-1/comments", models.CommentRequest{
		Author: "yuki", Content: "Lovely", Language: "EN",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/venues/bar-1/comments?lang=en", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	comments := decodeBody[[]models.Comment](t, rec)
	require.Len(t, comments, 1)
	assert.Equal(t, "Lovely", comments[0].Content)

	rec = env.do(t, http.MethodGet, "/api/venues/bar-1/comments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = env.do(t, http.MethodGet, "/api/venues/bar-1/comments?lang=fr", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/venues/bar-1/info", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/venues/none/info", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SyncIdle, decodeBody[models.SyncStateResponse](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/api/sync?mode=full", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, models.SyncSyncing, decodeBody[models.SyncStateResponse](t, rec).Status)

	require.Eventually(t, func() bool { return !env.sync.Syncing() }, 5*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/api/sync/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeBody[models.SyncStateResponse](t, rec)
	assert.Equal(t, models.SyncIdle, state.Status)
	assert.NotNil(t, state.LastSyncedAt)
	assert.NotEmpty(t, state.Text)
}

func TestSyncEventStream(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sync/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-API-Key": {testAPIKey}})
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type    string                   `json:"type"`
		Payload models.SyncStateResponse `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, WSTypeSyncState, first.Type)
	assert.Equal(t, models.SyncIdle, first.Payload.Status)

	_, started := env.sync.Start(context.Background(), models.SyncModeFull)
	require.True(t, started)

	sawIdle := false
	for !sawIdle {
		var msg struct {
			Payload models.SyncStateResponse `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		sawIdle = msg.Payload.Status == models.SyncIdle && msg.Payload.LastSyncedAt != nil
	}
}
