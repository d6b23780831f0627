package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVenue(t *testing.T) {
	t.Run("creates venue with defaults", func(t *testing.T) {
		v, err := NewVenue("  Albatross ", "アルバトロス", GridPosition{Row: 2, Column: 3})

		require.NoError(t, err)
		assert.NotEmpty(t, v.ID)
		assert.Equal(t, "Albatross", v.Name)
		assert.Equal(t, "アルバトロス", v.NameLocalized)
		assert.Equal(t, 1, v.Grid.SpanRows)
		assert.Equal(t, 1, v.Grid.SpanColumns)
		assert.False(t, v.Visited)
		assert.Nil(t, v.VisitedAt)
		assert.Nil(t, v.LastSyncedAt)
	})

	t.Run("rejects negative grid position", func(t *testing.T) {
		_, err := NewVenue("x", "", GridPosition{Row: -1})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestVenueVisited(t *testing.T) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	t.Run("mark visited defaults to now", func(t *testing.T) {
		v := &Venue{ID: "v1"}
		v.MarkVisited(nil, now)

		assert.True(t, v.Visited)
		require.NotNil(t, v.VisitedAt)
		assert.Equal(t, now, *v.VisitedAt)
	})

	t.Run("mark visited honours explicit time", func(t *testing.T) {
		at := now.Add(-48 * time.Hour)
		v := &Venue{ID: "v1"}
		v.MarkVisited(&at, now)

		require.NotNil(t, v.VisitedAt)
		assert.Equal(t, at, *v.VisitedAt)
	})

	t.Run("clear visited drops the timestamp", func(t *testing.T) {
		v := &Venue{ID: "v1"}
		v.MarkVisited(nil, now)
		v.ClearVisited()

		assert.False(t, v.Visited)
		assert.Nil(t, v.VisitedAt)
	})

	t.Run("normalize strips stray timestamp", func(t *testing.T) {
		v := &Venue{ID: "v1", VisitedAt: &now}
		v.Normalize(now)

		assert.Nil(t, v.VisitedAt)
	})

	t.Run("normalize stamps visited venue missing a time", func(t *testing.T) {
		v := &Venue{ID: "v1", Visited: true}
		v.Normalize(now)

		require.NotNil(t, v.VisitedAt)
		assert.True(t, v.VisitedAt.Equal(now))
	})

	t.Run("normalize keeps an explicit visit time", func(t *testing.T) {
		earlier := now.Add(-time.Hour)
		v := &Venue{ID: "v1", Visited: true, VisitedAt: &earlier}
		v.Normalize(now)

		assert.True(t, v.VisitedAt.Equal(earlier))
	})
}

func TestRefSet(t *testing.T) {
	t.Run("add is idempotent and keeps order", func(t *testing.T) {
		var s RefSet
		assert.True(t, s.Add("b"))
		assert.True(t, s.Add("a"))
		assert.False(t, s.Add("b"))
		assert.False(t, s.Add("  "))

		assert.Equal(t, RefSet{"b", "a"}, s)
	})

	t.Run("remove", func(t *testing.T) {
		s := RefSet{"a", "b", "c"}
		assert.True(t, s.Remove("b"))
		assert.False(t, s.Remove("zzz"))
		assert.Equal(t, RefSet{"a", "c"}, s)
	})
}

func TestTagSet(t *testing.T) {
	s := NewTagSet("whisky", " jazz ", "whisky", "")

	assert.Equal(t, TagSet{"jazz", "whisky"}, s)
	assert.True(t, s.Contains("jazz"))
	assert.True(t, s.Remove("jazz"))
	assert.False(t, s.Contains("jazz"))
}

func TestVenueClone(t *testing.T) {
	now := time.Now().UTC()
	v := &Venue{ID: "v1", PhotoRefs: RefSet{"a"}, Tags: TagSet{"x"}, LastSyncedAt: &now}

	c := v.Clone()
	c.PhotoRefs.Add("b")
	c.Tags.Add("y")

	assert.Equal(t, RefSet{"a"}, v.PhotoRefs)
	assert.Equal(t, TagSet{"x"}, v.Tags)
	assert.NotSame(t, v.LastSyncedAt, c.LastSyncedAt)
}

func TestModifiedAfter(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	assert.True(t, (&Venue{}).ModifiedAfter(time.Time{}))
	assert.False(t, (&Venue{}).ModifiedAfter(earlier))
	assert.True(t, (&Venue{LastSyncedAt: &now}).ModifiedAfter(earlier))
	assert.False(t, (&Venue{LastSyncedAt: &earlier}).ModifiedAfter(now))
}

func TestErrors(t *testing.T) {
	t.Run("storage error matches sentinel and cause", func(t *testing.T) {
		cause := errors.New("disk full")
		err := NewStorageError("upsert venue", cause)

		assert.ErrorIs(t, err, ErrStorage)
		assert.ErrorIs(t, err, cause)
		assert.Nil(t, NewStorageError("noop", nil))
	})

	t.Run("not found matches sentinel", func(t *testing.T) {
		err := ErrVenueNotFound("abc")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "abc")
	})
}

func TestSyncOutcome(t *testing.T) {
	o := &SyncOutcome{Phases: []PhaseResult{
		{Phase: PhaseVenues, Requested: 10, Successful: 7, Failed: 3},
		{Phase: PhaseVenueInfo, Requested: 2, Successful: 2},
	}}

	ok, failed := o.Totals()
	assert.Equal(t, 9, ok)
	assert.Equal(t, 3, failed)
	assert.True(t, o.Partial())

	var partial *PartialSyncError
	require.ErrorAs(t, o.Err(), &partial)
	assert.Equal(t, PhaseVenues, partial.Phase)

	clean := &SyncOutcome{Phases: []PhaseResult{{Phase: PhaseMedia, Requested: 1, Successful: 1}}}
	assert.NoError(t, clean.Err())
}

func TestSyncStateText(t *testing.T) {
	assert.Equal(t, "never synced", SyncState{Status: SyncIdle}.StatusText())
	assert.Equal(t, "sync failed: boom", SyncState{Status: SyncFailed, Reason: "boom"}.StatusText())
	assert.Equal(t, "syncing: 2 of 5 photos synced",
		SyncState{Status: SyncSyncing, Phase: PhaseMedia, MediaDone: 2, MediaTotal: 5}.StatusText())

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Contains(t, SyncState{Status: SyncIdle, LastSyncedAt: &ts}.StatusText(), "last synced at")
}

func TestParseLanguage(t *testing.T) {
	lang, err := ParseLanguage("EN")
	require.NoError(t, err)
	assert.Equal(t, LanguageEnglish, lang)

	_, err = ParseLanguage("fr")
	assert.ErrorIs(t, err, ErrValidation)
}
