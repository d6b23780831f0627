package models

import "time"

// VenueRequest is the body accepted when creating or replacing a venue
type VenueRequest struct {
	Name          string       `json:"name"`
	NameLocalized string       `json:"nameLocalized"`
	Grid          GridPosition `json:"grid"`
	Tags          []string     `json:"tags"`
}

// VisitRequest optionally carries an explicit visit time
type VisitRequest struct {
	VisitedAt *time.Time `json:"visitedAt"`
}

// TagRequest adds a label to a venue
type TagRequest struct {
	Tag string `json:"tag"`
}

// CommentRequest is the body for appending a comment
type CommentRequest struct {
	Author   string   `json:"author"`
	Content  string   `json:"content"`
	Language string   `json:"language"`
	Rating   *float64 `json:"rating"`
}

// VenueListResponse wraps a venue listing
type VenueListResponse struct {
	Venues []*Venue `json:"venues"`
	Count  int      `json:"count"`
}

// UploadResponse is the API view of an UploadResult
type UploadResponse struct {
	VenueID     string `json:"venueId"`
	LocalSaved  bool   `json:"localSaved"`
	Uploaded    bool   `json:"uploaded"`
	Ref         string `json:"ref,omitempty"`
	Size        int64  `json:"size"`
	UploadError string `json:"uploadError,omitempty"`
}

// UploadToResponse converts an UploadResult for the wire
func UploadToResponse(r *UploadResult) UploadResponse {
	resp := UploadResponse{
		VenueID:    r.VenueID,
		LocalSaved: r.LocalSaved,
		Uploaded:   r.Uploaded,
		Ref:        r.Ref,
		Size:       r.Size,
	}
	if r.UploadErr != nil {
		resp.UploadError = r.UploadErr.Error()
	}
	return resp
}

// SyncStateResponse is returned by the sync endpoints
type SyncStateResponse struct {
	SyncState
	Text string `json:"text"`
}

// MediaUsageResponse reports local blob usage
type MediaUsageResponse struct {
	TotalBytes int64    `json:"totalBytes"`
	VenueIDs   []string `json:"venueIds"`
	Pending    []string `json:"pending"`
}

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Remote    string    `json:"remote"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
