package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/remote"
)

// VenueInfoCache is a thread-safe in-memory view of venue descriptions.
// Entries come from the bundled file with remote and local edits layered on
// top. Nothing here is persisted.
type VenueInfoCache struct {
	mu         sync.RWMutex
	bundle     map[string]*models.VenueInfo
	overlay    map[string]*models.VenueInfo
	bundlePath string
	gateway    remote.Gateway
}

// NewVenueInfoCache loads bundlePath. A missing bundle yields an empty cache.
func NewVenueInfoCache(bundlePath string, gateway remote.Gateway) (*VenueInfoCache, error) {
	c := &VenueInfoCache{
		bundle:     make(map[string]*models.VenueInfo),
		overlay:    make(map[string]*models.VenueInfo),
		bundlePath: bundlePath,
		gateway:    gateway,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rereads the bundle and drops the overlay
func (c *VenueInfoCache) Reload() error {
	bundle := make(map[string]*models.VenueInfo)
	if c.bundlePath != "" {
		f, err := os.Open(c.bundlePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			observability.WithField("path", c.bundlePath).Warn("Venue info bundle not found")
		case err != nil:
			return fmt.Errorf("failed to open venue info bundle: %w", err)
		default:
			defer f.Close()
			bundle, err = decodeBundle(f)
			if err != nil {
				return err
			}
			observability.Infof("Loaded %d venue info entries from bundle", len(bundle))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle = bundle
	c.overlay = make(map[string]*models.VenueInfo)
	return nil
}

// decodeBundle accepts {id: info} or the same map under a "venues" or "bars" key
func decodeBundle(r io.Reader) (map[string]*models.VenueInfo, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue info bundle: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return make(map[string]*models.VenueInfo), nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("failed to decode venue info bundle: %w", err)
	}
	if len(top) == 1 {
		for _, key := range []string{"venues", "bars"} {
			if inner, ok := top[key]; ok {
				raw = inner
			}
		}
	}

	var entries map[string]*models.VenueInfo
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode venue info bundle: %w", err)
	}
	out := make(map[string]*models.VenueInfo, len(entries))
	for id, info := range entries {
		if info == nil {
			continue
		}
		if info.ID == "" {
			info.ID = id
		}
		out[id] = info
	}
	return out, nil
}

// Get returns a copy of the info for id
func (c *VenueInfoCache) Get(id string) (*models.VenueInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := c.lookup(id)
	if info == nil {
		return nil, false
	}
	return info.Clone(), true
}

// All returns copies of every entry sorted by id
func (c *VenueInfoCache) All() []*models.VenueInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.VenueInfo, 0, len(c.bundle)+len(c.overlay))
	for _, info := range c.overlay {
		out = append(out, info.Clone())
	}
	for id, info := range c.bundle {
		if _, shadowed := c.overlay[id]; shadowed {
			continue
		}
		out = append(out, info.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Comments returns the comments for id in lang, newest first
func (c *VenueInfoCache) Comments(id string, lang models.Language) []models.Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := c.lookup(id)
	if info == nil {
		return []models.Comment{}
	}
	out := make([]models.Comment, 0, len(info.Comments))
	for _, cm := range info.Comments {
		if cm.Language == lang {
			out = append(out, cm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// AddComment appends to the venue's info, creating an empty entry when needed
func (c *VenueInfoCache) AddComment(venueID string, comment models.Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := c.editable(venueID)
	comment.VenueID = venueID
	info.Comments = append(info.Comments, comment)
}

// Update replaces the entry for info.ID
func (c *VenueInfoCache) Update(info models.VenueInfo) {
	if info.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlay[info.ID] = info.Clone()
}

// Merge ingests pulled entries, overwriting local ones, and returns how many were stored
func (c *VenueInfoCache) Merge(infos []models.VenueInfo) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := range infos {
		if infos[i].ID == "" {
			continue
		}
		c.overlay[infos[i].ID] = infos[i].Clone()
		n++
	}
	return n
}

// Fetch returns cached info, asking the gateway on a miss
func (c *VenueInfoCache) Fetch(ctx context.Context, id string) (*models.VenueInfo, error) {
	if info, ok := c.Get(id); ok {
		return info, nil
	}
	if c.gateway == nil {
		return nil, nil
	}

	info, err := c.gateway.FetchVenueInfo(ctx, id)
	if err != nil || info == nil {
		return nil, err
	}
	if info.ID == "" {
		info.ID = id
	}

	c.mu.Lock()
	c.overlay[id] = info.Clone()
	c.mu.Unlock()
	return info, nil
}

// Clear drops remote and local edits, keeping the bundle
func (c *VenueInfoCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlay = make(map[string]*models.VenueInfo)
}

// Size returns the number of distinct venues with info
func (c *VenueInfoCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.bundle)
	for id := range c.overlay {
		if _, ok := c.bundle[id]; !ok {
			n++
		}
	}
	return n
}

func (c *VenueInfoCache) lookup(id string) *models.VenueInfo {
	if info, ok := c.overlay[id]; ok {
		return info
	}
	return c.bundle[id]
}

// editable returns the overlay entry for id, copying from the bundle first
func (c *VenueInfoCache) editable(id string) *models.VenueInfo {
	if info, ok := c.overlay[id]; ok {
		return info
	}
	info := &models.VenueInfo{ID: id}
	if base, ok := c.bundle[id]; ok {
		info = base.Clone()
	}
	c.overlay[id] = info
	return info
}
