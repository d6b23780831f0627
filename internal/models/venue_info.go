package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language of a comment
type Language string

const (
	LanguageJapanese Language = "ja"
	LanguageEnglish  Language = "en"
)

// ParseLanguage accepts "ja" or "en" in any case
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageJapanese:
		return LanguageJapanese, nil
	case LanguageEnglish:
		return LanguageEnglish, nil
	default:
		return "", fmt.Errorf("%w: unsupported language %q", ErrValidation, s)
	}
}

// VenueInfo is supplementary descriptive content keyed by venue id.
// Not every venue has one.
type VenueInfo struct {
	ID              string    `json:"id"`
	Description     string    `json:"description,omitempty"`
	History         string    `json:"history,omitempty"`
	Specialties     []string  `json:"specialties,omitempty"`
	PriceRange      string    `json:"priceRange,omitempty"`
	OpeningHours    string    `json:"openingHours,omitempty"`
	ClosingDay      string    `json:"closingDay,omitempty"`
	Capacity        *int      `json:"capacity,omitempty"`
	Owner           string    `json:"owner,omitempty"`
	YearEstablished *int      `json:"year_established,omitempty"`
	Features        []string  `json:"features,omitempty"`
	Comments        []Comment `json:"comments,omitempty"`
}

// Clone deep-copies the record
func (i *VenueInfo) Clone() *VenueInfo {
	if i == nil {
		return nil
	}
	c := *i
	c.Specialties = append([]string(nil), i.Specialties...)
	c.Features = append([]string(nil), i.Features...)
	c.Comments = append([]Comment(nil), i.Comments...)
	return &c
}

// Comment is a user note attached to a venue
type Comment struct {
	ID        string     `json:"id"`
	VenueID   string     `json:"bar_uuid"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	Language  Language   `json:"language"`
	Rating    *float64   `json:"rating,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NewComment validates input and stamps identity and creation time
func NewComment(venueID, author, content string, lang Language, rating *float64) (*Comment, error) {
	if strings.TrimSpace(venueID) == "" {
		return nil, fmt.Errorf("%w: comment needs a venue id", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: comment content cannot be empty", ErrValidation)
	}
	if _, err := ParseLanguage(string(lang)); err != nil {
		return nil, err
	}
	if rating != nil && (*rating < 0 || *rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 0 and 5", ErrValidation)
	}
	return &Comment{
		ID:        uuid.New().String(),
		VenueID:   venueID,
		Author:    strings.TrimSpace(author),
		Content:   strings.TrimSpace(content),
		Language:  lang,
		Rating:    rating,
		CreatedAt: time.Now().UTC(),
	}, nil
}
