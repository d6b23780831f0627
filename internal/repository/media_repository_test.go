package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestMedia(t *testing.T) *MediaRepository {
	t.Helper()
	repo, err := NewMediaRepository(filepath.Join(t.TempDir(), "VenueImages"), 5)
	require.NoError(t, err)
	return repo
}

func TestMediaRepository_SaveLoad(t *testing.T) {
	t.Run("saves and loads a blob", func(t *testing.T) {
		repo := setupTestMedia(t)

		n, err := repo.Save("bar-1", []byte("jpeg bytes"))
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)
		assert.True(t, repo.Exists("bar-1"))

		data, err := repo.Load("bar-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg bytes"), data)
	})

	t.Run("load of missing blob returns nil", func(t *testing.T) {
		repo := setupTestMedia(t)

		data, err := repo.Load("nothing")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("save replaces previous blob", func(t *testing.T) {
		repo := setupTestMedia(t)
		_, err := repo.Save("bar-1", []byte("old"))
		require.NoError(t, err)
		_, err = repo.Save("bar-1", []byte("newer"))
		require.NoError(t, err)

		data, err := repo.Load("bar-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("newer"), data)
	})

	t.Run("rejects oversized blob", func(t *testing.T) {
		repo := setupTestMedia(t)
		_, err := repo.Save("bar-1", make([]byte, 5*1024*1024+1))
		assert.ErrorIs(t, err, models.ErrFileTooLarge)
		assert.False(t, repo.Exists("bar-1"))
	})

	t.Run("encodes unsafe ids into the base directory", func(t *testing.T) {
		repo := setupTestMedia(t)
		_, err := repo.Save("../../etc/passwd", []byte("x"))
		require.NoError(t, err)

		entries, err := os.ReadDir(repo.BasePath())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, SanitizeBlobName("../../etc/passwd")+".jpg", entries[0].Name())

		blobs, err := repo.List()
		require.NoError(t, err)
		require.Len(t, blobs, 1)
		assert.Equal(t, "../../etc/passwd", blobs[0].VenueID)
	})

	t.Run("similar ids keep separate files", func(t *testing.T) {
		repo := setupTestMedia(t)
		_, err := repo.Save("a/b", []byte("slash"))
		require.NoError(t, err)
		_, err = repo.Save("a_b", []byte("underscore"))
		require.NoError(t, err)

		data, err := repo.Load("a/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("slash"), data)
		data, err = repo.Load("a_b")
		require.NoError(t, err)
		assert.Equal(t, []byte("underscore"), data)

		blobs, err := repo.List()
		require.NoError(t, err)
		require.Len(t, blobs, 2)
		assert.ElementsMatch(t, []string{"a/b", "a_b"}, []string{blobs[0].VenueID, blobs[1].VenueID})

		require.NoError(t, repo.Clear())
		assert.False(t, repo.Exists("a/b"))
		assert.False(t, repo.Exists("a_b"))
	})

	t.Run("rejects empty id", func(t *testing.T) {
		repo := setupTestMedia(t)
		_, err := repo.Save("  ", []byte("x"))
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestSanitizeBlobName(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"bar-1", "bar-1"},
		{"3f2b1c9e-7a5d-4e8f-9c1b-2d3e4f5a6b7c", "3f2b1c9e-7a5d-4e8f-9c1b-2d3e4f5a6b7c"},
		{"  spaced ", "spaced"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeBlobName(tc.id))
	}

	for _, id := range []string{"a/b", "..", ".hidden", "x:y", "=cHJl", "バー"} {
		name := SanitizeBlobName(id)
		assert.True(t, strings.HasPrefix(name, encodedPrefix), id)
		assert.NotContains(t, name, "/")
		assert.Equal(t, id, venueIDFromBlobName(name))
	}
	assert.NotEqual(t, SanitizeBlobName("a/b"), SanitizeBlobName("a_b"))
}

func TestMediaRepository_Inventory(t *testing.T) {
	repo := setupTestMedia(t)
	for id, body := range map[string]string{"a": "1", "b": "22", "c": "333"} {
		_, err := repo.Save(id, []byte(body))
		require.NoError(t, err)
	}

	size, err := repo.Size("b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	size, err = repo.Size("missing")
	require.NoError(t, err)
	assert.Zero(t, size)

	total, err := repo.TotalSize()
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	blobs, err := repo.List()
	require.NoError(t, err)
	require.Len(t, blobs, 3)
	assert.Equal(t, "a", blobs[0].VenueID)

	require.NoError(t, repo.Delete("a"))
	require.NoError(t, repo.Delete("a"))
	assert.False(t, repo.Exists("a"))

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(repo.BasePath(), "b.jpg"), old, old))

	removed, err := repo.ClearOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, repo.Exists("b"))
	assert.True(t, repo.Exists("c"))

	require.NoError(t, repo.Clear())
	total, err = repo.TotalSize()
	require.NoError(t, err)
	assert.Zero(t, total)
}
