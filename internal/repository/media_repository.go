package repository

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

const (
	blobExt = ".jpg"
	// encodedPrefix marks a file name holding a base64url encoded id
	encodedPrefix = "="
)

// MediaRepository keeps one JPEG per venue under a base directory
type MediaRepository struct {
	basePath string
	maxBytes int64
	mu       sync.Mutex
}

// NewMediaRepository creates the base directory when missing
func NewMediaRepository(basePath string, maxFileSizeMB int64) (*MediaRepository, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("media base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	return &MediaRepository{
		basePath: absPath,
		maxBytes: maxFileSizeMB * 1024 * 1024,
	}, nil
}

// BasePath returns the absolute blob directory
func (r *MediaRepository) BasePath() string {
	return r.basePath
}

// Save writes the blob for venueID, replacing any previous one
func (r *MediaRepository) Save(venueID string, data []byte) (int64, error) {
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return 0, models.ErrFileTooLarge
	}

	path, err := r.pathFor(venueID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(r.basePath, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
	}

	return int64(len(data)), nil
}

// Load returns the blob, or nil when none is stored
func (r *MediaRepository) Load(venueID string) ([]byte, error) {
	path, err := r.pathFor(venueID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRetrievalFailed, err)
	}
	return data, nil
}

// Exists reports whether a blob is stored for venueID
func (r *MediaRepository) Exists(venueID string) bool {
	path, err := r.pathFor(venueID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the blob. Missing blobs are not an error.
func (r *MediaRepository) Delete(venueID string) error {
	path, err := r.pathFor(venueID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
	}
	return nil
}

// Size returns the blob size in bytes, zero when absent
func (r *MediaRepository) Size(venueID string) (int64, error) {
	path, err := r.pathFor(venueID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrRetrievalFailed, err)
	}
	return info.Size(), nil
}

// TotalSize sums every stored blob
func (r *MediaRepository) TotalSize() (int64, error) {
	blobs, err := r.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range blobs {
		total += b.Size
	}
	return total, nil
}

// List returns the stored blobs sorted by venue id.
// Ids are decoded from their file names.
func (r *MediaRepository) List() ([]models.StoredBlob, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRetrievalFailed, err)
	}

	blobs := make([]models.StoredBlob, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), blobExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, models.StoredBlob{
			VenueID:    venueIDFromBlobName(strings.TrimSuffix(e.Name(), blobExt)),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].VenueID < blobs[j].VenueID })
	return blobs, nil
}

// Clear removes every stored blob
func (r *MediaRepository) Clear() error {
	_, err := r.removeWhere(func(models.StoredBlob) bool { return true })
	return err
}

// ClearOlderThan removes blobs not modified within age and returns how many went
func (r *MediaRepository) ClearOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	return r.removeWhere(func(b models.StoredBlob) bool { return b.ModifiedAt.Before(cutoff) })
}

func (r *MediaRepository) removeWhere(match func(models.StoredBlob) bool) (int, error) {
	blobs, err := r.List()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, b := range blobs {
		if !match(b) {
			continue
		}
		path, err := r.pathFor(b.VenueID)
		if err != nil {
			return removed, err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%w: %v", models.ErrStorageFailed, err)
		}
		removed++
	}
	return removed, nil
}

func (r *MediaRepository) pathFor(venueID string) (string, error) {
	name := SanitizeBlobName(venueID)
	if name == "" {
		return "", fmt.Errorf("%w: venue id cannot be empty", models.ErrValidation)
	}

	full := filepath.Join(r.basePath, name+blobExt)
	if !strings.HasPrefix(full, r.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}
	return full, nil
}

// SanitizeBlobName maps an id onto a file name inside the base directory.
// Plain ids are used as is. Anything else is base64url encoded behind
// encodedPrefix, so distinct ids never share a file.
func SanitizeBlobName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || isPlainBlobName(id) {
		return id
	}
	return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func venueIDFromBlobName(name string) string {
	encoded, ok := strings.CutPrefix(name, encodedPrefix)
	if !ok {
		return name
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return name
	}
	return string(raw)
}

func isPlainBlobName(id string) bool {
	if strings.HasPrefix(id, ".") {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
