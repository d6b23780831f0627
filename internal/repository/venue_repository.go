package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

// timeLayout is fixed width so stored timestamps order lexicographically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const venueColumns = `id, name, name_localized, grid_row, grid_column, span_rows, span_columns,
	visited, visited_at, photo_refs, tags, last_synced_at`

// VenueRepository persists venues in SQLite. Writes are serialized.
type VenueRepository struct {
	db  DBTX
	mu  sync.Mutex
	now func() time.Time
}

// NewVenueRepository creates a new venue repository
func NewVenueRepository(db DBTX) *VenueRepository {
	return &VenueRepository{db: db, now: time.Now}
}

// WithClock overrides the time source used to stamp writes
func (r *VenueRepository) WithClock(now func() time.Time) *VenueRepository {
	r.now = now
	return r
}

// List returns all venues in the requested order
func (r *VenueRepository) List(ctx context.Context, sort models.VenueSort) ([]*models.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues ORDER BY ` + orderClause(sort)
	return r.query(ctx, "list venues", query)
}

// Get returns the venue or nil when no venue has that id
func (r *VenueRepository) Get(ctx context.Context, id string) (*models.Venue, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError(fmt.Sprintf("get venue[%s]", id), err)
	}
	return v, nil
}

// Upsert inserts or replaces the venue and stamps LastSyncedAt once the write committed
func (r *VenueRepository) Upsert(ctx context.Context, venue *models.Venue) error {
	if err := venue.Validate(); err != nil {
		return err
	}
	venue.Normalize(r.now())

	refs, err := json.Marshal(nonNil(venue.PhotoRefs))
	if err != nil {
		return models.NewStorageError("encode photo refs", err)
	}
	tags, err := json.Marshal(nonNil(venue.Tags))
	if err != nil {
		return models.NewStorageError("encode tags", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO venues (`+venueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_localized = excluded.name_localized,
			grid_row = excluded.grid_row,
			grid_column = excluded.grid_column,
			span_rows = excluded.span_rows,
			span_columns = excluded.span_columns,
			visited = excluded.visited,
			visited_at = excluded.visited_at,
			photo_refs = excluded.photo_refs,
			tags = excluded.tags,
			last_synced_at = excluded.last_synced_at
	`,
		venue.ID,
		venue.Name,
		venue.NameLocalized,
		venue.Grid.Row,
		venue.Grid.Column,
		venue.Grid.SpanRows,
		venue.Grid.SpanColumns,
		venue.Visited,
		formatTime(venue.VisitedAt),
		string(refs),
		string(tags),
		stamp.Format(timeLayout),
	)
	if err != nil {
		return models.NewStorageError(fmt.Sprintf("upsert venue[%s]", venue.ID), err)
	}

	venue.LastSyncedAt = &stamp
	return nil
}

// Delete removes a venue. Unknown ids yield a not-found error.
func (r *VenueRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM venues WHERE id = ?`, id)
	if err != nil {
		return models.NewStorageError(fmt.Sprintf("delete venue[%s]", id), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.NewStorageError(fmt.Sprintf("delete venue[%s]", id), err)
	}
	if affected == 0 {
		return models.ErrVenueNotFound(id)
	}
	return nil
}

// ListByTag returns venues carrying tag, ordered by name
func (r *VenueRepository) ListByTag(ctx context.Context, tag string) ([]*models.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues
		WHERE EXISTS (SELECT 1 FROM json_each(venues.tags) WHERE json_each.value = ?)
		ORDER BY ` + orderClause(models.SortByName)
	return r.query(ctx, fmt.Sprintf("list venues by tag[%s]", tag), query, tag)
}

// ListVisited returns visited venues, most recent visit first
func (r *VenueRepository) ListVisited(ctx context.Context) ([]*models.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE visited = 1 ORDER BY ` + orderClause(models.SortByVisitedAt)
	return r.query(ctx, "list visited venues", query)
}

// ListModifiedSince returns venues written after since. A zero since returns everything.
func (r *VenueRepository) ListModifiedSince(ctx context.Context, since time.Time) ([]*models.Venue, error) {
	if since.IsZero() {
		return r.List(ctx, models.SortByLastSynced)
	}
	query := `SELECT ` + venueColumns + ` FROM venues WHERE last_synced_at > ? ORDER BY ` + orderClause(models.SortByLastSynced)
	return r.query(ctx, "list modified venues", query, since.UTC().Format(timeLayout))
}

// Count returns the number of stored venues
func (r *VenueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n); err != nil {
		return 0, models.NewStorageError("count venues", err)
	}
	return n, nil
}

// DeleteAll removes every venue
func (r *VenueRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM venues`); err != nil {
		return models.NewStorageError("delete all venues", err)
	}
	return nil
}

func (r *VenueRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Venue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError(op, err)
	}
	defer rows.Close()

	venues := make([]*models.Venue, 0)
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, models.NewStorageError(op, err)
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError(op, err)
	}
	return venues, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVenue(s rowScanner) (*models.Venue, error) {
	var (
		v            models.Venue
		visitedAt    sql.NullString
		lastSyncedAt sql.NullString
		refs, tags   string
	)
	err := s.Scan(
		&v.ID,
		&v.Name,
		&v.NameLocalized,
		&v.Grid.Row,
		&v.Grid.Column,
		&v.Grid.SpanRows,
		&v.Grid.SpanColumns,
		&v.Visited,
		&visitedAt,
		&refs,
		&tags,
		&lastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(refs), &v.PhotoRefs); err != nil {
		return nil, fmt.Errorf("decode photo refs: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if v.VisitedAt, err = parseTime(visitedAt); err != nil {
		return nil, err
	}
	if v.LastSyncedAt, err = parseTime(lastSyncedAt); err != nil {
		return nil, err
	}
	fallback := time.Now()
	if v.LastSyncedAt != nil {
		fallback = *v.LastSyncedAt
	}
	v.Normalize(fallback)
	return &v, nil
}

func orderClause(sort models.VenueSort) string {
	switch sort {
	case models.SortByGrid:
		return "grid_row, grid_column, id"
	case models.SortByVisitedAt:
		return "visited_at DESC, name COLLATE NOCASE, id"
	case models.SortByLastSynced:
		return "last_synced_at DESC, id"
	default:
		return "name COLLATE NOCASE, id"
	}
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

func nonNil[T ~[]string](s T) T {
	if s == nil {
		return T{}
	}
	return s
}
