package models

import "time"

// UploadResult describes what happened to a submitted photo.
// LocalSaved without Uploaded means the blob waits for the next sync.
type UploadResult struct {
	VenueID    string `json:"venueId"`
	LocalSaved bool   `json:"localSaved"`
	Uploaded   bool   `json:"uploaded"`
	Ref        string `json:"ref,omitempty"`
	Size       int64  `json:"size"`
	UploadErr  error  `json:"-"`
}

// BatchResult counts an at-least-effort batch.
// Deferred items had no remote to go to and are not part of Requested.
type BatchResult struct {
	Requested  int      `json:"requested"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Deferred   int      `json:"deferred,omitempty"`
	FailedIDs  []string `json:"failedIds,omitempty"`
}

// DownloadItem pairs a venue with the remote ref to fetch
type DownloadItem struct {
	VenueID string
	Ref     string
}

// StoredBlob is a local media file
type StoredBlob struct {
	VenueID    string
	Size       int64
	ModifiedAt time.Time
}
