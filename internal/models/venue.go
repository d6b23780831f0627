package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GridPosition places a venue on the district map
type GridPosition struct {
	Row         int `json:"row"`
	Column      int `json:"column"`
	SpanRows    int `json:"spanRows"`
	SpanColumns int `json:"spanColumns"`
}

// Venue is a single establishment and the user's annotations on it
type Venue struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	NameLocalized string       `json:"nameLocalized"`
	Grid          GridPosition `json:"grid"`
	Visited       bool         `json:"visited"`
	VisitedAt     *time.Time   `json:"visitedAt,omitempty"`
	PhotoRefs     RefSet       `json:"photoRefs"`
	Tags          TagSet       `json:"tags"`
	LastSyncedAt  *time.Time   `json:"lastSyncedAt,omitempty"`
}

// NewVenue creates a venue with a fresh identifier
func NewVenue(name, nameLocalized string, grid GridPosition) (*Venue, error) {
	v := &Venue{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(name),
		NameLocalized: strings.TrimSpace(nameLocalized),
		Grid:          grid,
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.Normalize(time.Now())
	return v, nil
}

// Validate checks the fields a store refuses to persist
func (v *Venue) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("%w: venue id cannot be empty", ErrValidation)
	}
	if v.Grid.Row < 0 || v.Grid.Column < 0 {
		return fmt.Errorf("%w: grid position cannot be negative", ErrValidation)
	}
	if v.Grid.SpanRows < 0 || v.Grid.SpanColumns < 0 {
		return fmt.Errorf("%w: grid span cannot be negative", ErrValidation)
	}
	return nil
}

// Normalize applies defaults and enforces the visited/timestamp pairing.
// An unvisited venue never carries a visit time and a visited one without
// a time is stamped with now.
func (v *Venue) Normalize(now time.Time) {
	if v.Grid.SpanRows == 0 {
		v.Grid.SpanRows = 1
	}
	if v.Grid.SpanColumns == 0 {
		v.Grid.SpanColumns = 1
	}
	switch {
	case !v.Visited:
		v.VisitedAt = nil
	case v.VisitedAt == nil:
		ts := now.UTC()
		v.VisitedAt = &ts
	}
}

// MarkVisited flags the venue as visited at the given instant, or now when at is nil
func (v *Venue) MarkVisited(at *time.Time, now time.Time) {
	ts := now
	if at != nil {
		ts = *at
	}
	ts = ts.UTC()
	v.Visited = true
	v.VisitedAt = &ts
}

// ClearVisited resets the visited flag and its timestamp together
func (v *Venue) ClearVisited() {
	v.Visited = false
	v.VisitedAt = nil
}

// AddPhoto appends a photo reference unless it is already present
func (v *Venue) AddPhoto(ref string) bool {
	return v.PhotoRefs.Add(ref)
}

// Clone returns a deep copy so callers never share slices with a store
func (v *Venue) Clone() *Venue {
	if v == nil {
		return nil
	}
	c := *v
	c.PhotoRefs = append(RefSet(nil), v.PhotoRefs...)
	c.Tags = append(TagSet(nil), v.Tags...)
	if v.VisitedAt != nil {
		t := *v.VisitedAt
		c.VisitedAt = &t
	}
	if v.LastSyncedAt != nil {
		t := *v.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

// ModifiedAfter reports whether the last durable write happened after since
func (v *Venue) ModifiedAfter(since time.Time) bool {
	if since.IsZero() {
		return true
	}
	return v.LastSyncedAt != nil && v.LastSyncedAt.After(since)
}

// RefSet is an ordered set of photo references. Insertion order is kept.
type RefSet []string

// Add appends ref and reports whether the set changed
func (s *RefSet) Add(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || s.Contains(ref) {
		return false
	}
	*s = append(*s, ref)
	return true
}

// Remove drops ref and reports whether it was present
func (s *RefSet) Remove(ref string) bool {
	for i, r := range *s {
		if r == ref {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports membership
func (s RefSet) Contains(ref string) bool {
	for _, r := range s {
		if r == ref {
			return true
		}
	}
	return false
}

// TagSet is a sorted set of free-form labels
type TagSet []string

// Add inserts tag keeping the set sorted
func (s *TagSet) Add(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || s.Contains(tag) {
		return false
	}
	*s = append(*s, tag)
	sort.Strings(*s)
	return true
}

// Remove drops tag and reports whether it was present
func (s *TagSet) Remove(tag string) bool {
	tag = strings.TrimSpace(tag)
	for i, t := range *s {
		if t == tag {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports membership
func (s TagSet) Contains(tag string) bool {
	for _, t := range s {
		if t == tag {
			return true
		}
	}
	return false
}

// NewTagSet builds a set from arbitrary labels, dropping blanks and duplicates
func NewTagSet(tags ...string) TagSet {
	var s TagSet
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

// VenueSort selects the ordering of a venue listing
type VenueSort string

const (
	SortByName       VenueSort = "name"
	SortByGrid       VenueSort = "grid"
	SortByVisitedAt  VenueSort = "visited"
	SortByLastSynced VenueSort = "synced"
)

// ParseVenueSort maps a query value to a sort key, defaulting to name
func ParseVenueSort(s string) VenueSort {
	switch VenueSort(strings.ToLower(strings.TrimSpace(s))) {
	case SortByGrid:
		return SortByGrid
	case SortByVisitedAt:
		return SortByVisitedAt
	case SortByLastSynced:
		return SortByLastSynced
	default:
		return SortByName
	}
}
