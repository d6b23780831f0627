package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

const (
	keyLastSyncedAt = "sync.last_synced_at"
	keyLoggedIn     = "session.logged_in"
	keyUserEmail    = "session.user_email"
	keyUserID       = "session.user_id"
	keyUserToken    = "session.user_token"
	keyShowEnglish  = "display.show_english"
	keyBackground   = "display.background"

	pendingUploadPrefix = "media.pending."

	// DefaultBackground is the backdrop used until the user picks one
	DefaultBackground = "ContentBackground"
)

// Session holds the remote login bound to this device
type Session struct {
	Email  string
	UserID string
	Token  string
}

// Preferences exposes typed accessors over a PreferenceRepo
type Preferences struct {
	repo PreferenceRepo
}

// NewPreferences wraps a key/value repo
func NewPreferences(repo PreferenceRepo) *Preferences {
	return &Preferences{repo: repo}
}

// LastSyncedAt returns the sync watermark, nil when never synced
func (p *Preferences) LastSyncedAt(ctx context.Context) (*time.Time, error) {
	raw, err := p.repo.Get(ctx, keyLastSyncedAt)
	if err != nil || raw == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return nil, models.NewStorageError("decode last sync time", err)
	}
	return &t, nil
}

// SetLastSyncedAt stores the sync watermark
func (p *Preferences) SetLastSyncedAt(ctx context.Context, t time.Time) error {
	return p.repo.Set(ctx, keyLastSyncedAt, []byte(t.UTC().Format(time.RFC3339Nano)))
}

// ClearLastSyncedAt forgets the watermark so the next incremental sync starts from scratch
func (p *Preferences) ClearLastSyncedAt(ctx context.Context) error {
	return p.repo.Delete(ctx, keyLastSyncedAt)
}

// ShowEnglish reports whether English names are preferred
func (p *Preferences) ShowEnglish(ctx context.Context) (bool, error) {
	return p.getBool(ctx, keyShowEnglish)
}

// SetShowEnglish stores the display language toggle
func (p *Preferences) SetShowEnglish(ctx context.Context, v bool) error {
	return p.repo.Set(ctx, keyShowEnglish, []byte(strconv.FormatBool(v)))
}

// Background returns the selected backdrop
func (p *Preferences) Background(ctx context.Context) (string, error) {
	raw, err := p.repo.Get(ctx, keyBackground)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return DefaultBackground, nil
	}
	return string(raw), nil
}

// SetBackground stores the selected backdrop
func (p *Preferences) SetBackground(ctx context.Context, name string) error {
	return p.repo.Set(ctx, keyBackground, []byte(name))
}

// LoggedIn reports whether a remote session is stored
func (p *Preferences) LoggedIn(ctx context.Context) (bool, error) {
	return p.getBool(ctx, keyLoggedIn)
}

// Session returns the stored login, nil when logged out
func (p *Preferences) Session(ctx context.Context) (*Session, error) {
	ok, err := p.LoggedIn(ctx)
	if err != nil || !ok {
		return nil, err
	}
	var s Session
	for key, dst := range map[string]*string{keyUserEmail: &s.Email, keyUserID: &s.UserID, keyUserToken: &s.Token} {
		raw, err := p.repo.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		*dst = string(raw)
	}
	return &s, nil
}

// SetLogin stores a session and flags the device as logged in
func (p *Preferences) SetLogin(ctx context.Context, s Session) error {
	pairs := [][2]string{
		{keyUserEmail, s.Email},
		{keyUserID, s.UserID},
		{keyUserToken, s.Token},
		{keyLoggedIn, "true"},
	}
	for _, kv := range pairs {
		if err := p.repo.Set(ctx, kv[0], []byte(kv[1])); err != nil {
			return err
		}
	}
	return nil
}

// Logout drops the stored session
func (p *Preferences) Logout(ctx context.Context) error {
	for _, key := range []string{keyUserEmail, keyUserID, keyUserToken, keyLoggedIn} {
		if err := p.repo.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// MarkPendingUpload records a locally saved blob that has not reached the remote store
func (p *Preferences) MarkPendingUpload(ctx context.Context, venueID string) error {
	return p.repo.Set(ctx, pendingUploadPrefix+venueID, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
}

// ClearPendingUpload removes the pending marker for a venue
func (p *Preferences) ClearPendingUpload(ctx context.Context, venueID string) error {
	return p.repo.Delete(ctx, pendingUploadPrefix+venueID)
}

// PendingUploads lists venues whose blob still awaits upload, sorted by id
func (p *Preferences) PendingUploads(ctx context.Context) ([]string, error) {
	all, err := p.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for key := range all {
		if id, ok := strings.CutPrefix(key, pendingUploadPrefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ClearAll wipes every preference
func (p *Preferences) ClearAll(ctx context.Context) error {
	return p.repo.Clear(ctx)
}

func (p *Preferences) getBool(ctx context.Context, key string) (bool, error) {
	raw, err := p.repo.Get(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, models.NewStorageError(fmt.Sprintf("decode preference[%s]", key), err)
	}
	return v, nil
}
