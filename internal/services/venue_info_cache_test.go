package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBundle = `{
  "bar-1": {
    "description": "Six seats under a staircase",
    "priceRange": "¥¥",
    "year_established": 1971,
    "comments": [
      {"id": "c1", "bar_uuid": "bar-1", "author": "ken", "content": "最高", "language": "ja", "created_at": "2024-01-01T00:00:00Z"},
      {"id": "c2", "bar_uuid": "bar-1", "author": "amy", "content": "Great jazz", "language": "en", "created_at": "2024-02-01T00:00:00Z"},
      {"id": "c3", "bar_uuid": "bar-1", "author": "bob", "content": "Tiny", "language": "en", "created_at": "2024-03-01T00:00:00Z"}
    ]
  },
  "bar-2": {"owner": "Mama-san"}
}`

func writeBundle(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "barinfo.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestVenueInfoCache_Bundle(t *testing.T) {
	cache, err := NewVenueInfoCache(writeBundle(t, testBundle), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cache.Size())

	info, ok := cache.Get("bar-1")
	require.True(t, ok)
	assert.Equal(t, "bar-1", info.ID)
	assert.Equal(t, "Six seats under a staircase", info.Description)
	require.NotNil(t, info.YearEstablished)
	assert.Equal(t, 1971, *info.YearEstablished)

	en := cache.Comments("bar-1", models.LanguageEnglish)
	require.Len(t, en, 2)
	assert.Equal(t, "c3", en[0].ID, "newest first")
	assert.Len(t, cache.Comments("bar-1", models.LanguageJapanese), 1)
	assert.Empty(t, cache.Comments("unknown", models.LanguageEnglish))

	all := cache.All()
	require.Len(t, all, 2)
	assert.Equal(t, "bar-1", all[0].ID)
	assert.Equal(t, "bar-2", all[1].ID)

	_, ok = cache.Get("bar-3")
	assert.False(t, ok)
}

func TestVenueInfoCache_WrappedBundle(t *testing.T) {
	for _, key := range []string{"venues", "bars"} {
		cache, err := NewVenueInfoCache(writeBundle(t, `{"`+key+`": {"x": {"owner": "o"}, "y": {}}}`), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, cache.Size(), key)
	}
}

func TestVenueInfoCache_MissingAndBrokenBundle(t *testing.T) {
	cache, err := NewVenueInfoCache(filepath.Join(t.TempDir(), "absent.json"), nil)
	require.NoError(t, err)
	assert.Zero(t, cache.Size())

	_, err = NewVenueInfoCache(writeBundle(t, `[not json`), nil)
	assert.Error(t, err)
}

func TestVenueInfoCache_Edits(t *testing.T) {
	cache, err := NewVenueInfoCache(writeBundle(t, testBundle), nil)
	require.NoError(t, err)

	t.Run("returned copies are detached", func(t *testing.T) {
		info, _ := cache.Get("bar-2")
		info.Owner = "changed"
		again, _ := cache.Get("bar-2")
		assert.Equal(t, "Mama-san", again.Owner)
	})

	t.Run("adding a comment creates missing entries", func(t *testing.T) {
		c, err := models.NewComment("bar-9", "me", "first!", models.LanguageEnglish, nil)
		require.NoError(t, err)

		cache.AddComment("bar-9", *c)

		assert.Equal(t, 3, cache.Size())
		got := cache.Comments("bar-9", models.LanguageEnglish)
		require.Len(t, got, 1)
		assert.Equal(t, "first!", got[0].Content)
	})

	t.Run("comments extend bundled entries", func(t *testing.T) {
		c, err := models.NewComment("bar-1", "me", "again", models.LanguageEnglish, nil)
		require.NoError(t, err)
		cache.AddComment("bar-1", *c)

		assert.Len(t, cache.Comments("bar-1", models.LanguageEnglish), 3)
		info, _ := cache.Get("bar-1")
		assert.Equal(t, "Six seats under a staircase", info.Description)
	})

	t.Run("merge overwrites local entries", func(t *testing.T) {
		n := cache.Merge([]models.VenueInfo{{ID: "bar-1", Description: "remote"}, {ID: ""}})
		assert.Equal(t, 1, n)

		info, _ := cache.Get("bar-1")
		assert.Equal(t, "remote", info.Description)
		assert.Empty(t, info.Comments)
	})

	t.Run("update replaces an entry", func(t *testing.T) {
		cache.Update(models.VenueInfo{ID: "bar-2", Owner: "Papa-san"})
		info, _ := cache.Get("bar-2")
		assert.Equal(t, "Papa-san", info.Owner)
	})

	t.Run("clear keeps the bundle", func(t *testing.T) {
		cache.Clear()
		assert.Equal(t, 2, cache.Size())
		info, _ := cache.Get("bar-1")
		assert.Equal(t, "Six seats under a staircase", info.Description)
	})
}

func TestVenueInfoCache_Reload(t *testing.T) {
	path := writeBundle(t, testBundle)
	cache, err := NewVenueInfoCache(path, nil)
	require.NoError(t, err)
	cache.Update(models.VenueInfo{ID: "extra"})

	require.NoError(t, os.WriteFile(path, []byte(`{"only": {}}`), 0644))
	require.NoError(t, cache.Reload())

	assert.Equal(t, 1, cache.Size())
	_, ok := cache.Get("extra")
	assert.False(t, ok)
}

func TestVenueInfoCache_Fetch(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.fetchable["remote-1"] = &models.VenueInfo{Owner: "R"}

	cache, err := NewVenueInfoCache(writeBundle(t, testBundle), gw)
	require.NoError(t, err)

	info, err := cache.Fetch(ctx, "bar-2")
	require.NoError(t, err)
	assert.Equal(t, "Mama-san", info.Owner)
	assert.Zero(t, gw.fetchCalls)

	info, err = cache.Fetch(ctx, "remote-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "remote-1", info.ID)

	_, err = cache.Fetch(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.fetchCalls)

	info, err = cache.Fetch(ctx, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestSyncEvents(t *testing.T) {
	events := NewSyncEvents()
	ch, cancel := events.Subscribe(2)
	assert.Equal(t, 1, events.Count())

	for i := 1; i <= 3; i++ {
		events.Publish(models.SyncState{Status: models.SyncSyncing, Progress: float64(i) / 3})
	}

	first := <-ch
	second := <-ch
	assert.InDelta(t, 2.0/3, first.Progress, 1e-9, "oldest state is dropped")
	assert.InDelta(t, 1.0, second.Progress, 1e-9)

	cancel()
	cancel()
	assert.Zero(t, events.Count())
	_, open := <-ch
	assert.False(t, open)

	done := make(chan struct{})
	go func() {
		events.Publish(models.SyncState{Status: models.SyncIdle})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}
