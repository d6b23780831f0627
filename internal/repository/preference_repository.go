package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

// PreferenceRepository is a SQLite backed key/value store
type PreferenceRepository struct {
	db DBTX
	mu sync.Mutex
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the stored value, or nil when the key is absent
func (r *PreferenceRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError(fmt.Sprintf("get preference[%s]", key), err)
	}
	return value, nil
}

// Set writes value under key
func (r *PreferenceRepository) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return models.NewStorageError(fmt.Sprintf("set preference[%s]", key), err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (r *PreferenceRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return models.NewStorageError(fmt.Sprintf("delete preference[%s]", key), err)
	}
	return nil
}

// List returns every stored pair
func (r *PreferenceRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return nil, models.NewStorageError("list preferences", err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, models.NewStorageError("list preferences", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("list preferences", err)
	}
	return result, nil
}

// Clear removes every key
func (r *PreferenceRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM preferences`); err != nil {
		return models.NewStorageError("clear preferences", err)
	}
	return nil
}
