package models

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is
var (
	ErrStorage    = errors.New("storage failure")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// StorageError wraps a persistence failure of a store operation
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError returns nil when err is nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// NotFoundError names the missing entity
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ErrVenueNotFound builds the not-found error for a venue id
func ErrVenueNotFound(id string) error {
	return &NotFoundError{Kind: "venue", ID: id}
}

// MediaError is a media pipeline failure
type MediaError struct {
	Message string
}

func (e MediaError) Error() string {
	return e.Message
}

var (
	ErrInvalidFormat   = MediaError{"image could not be decoded or encoded"}
	ErrFileTooLarge    = MediaError{"encoded image exceeds maximum size"}
	ErrStorageFailed   = MediaError{"image could not be written to local storage"}
	ErrRetrievalFailed = MediaError{"image could not be read from local storage"}
	ErrPathTraversal   = MediaError{"path traversal detected"}
)

// SyncError is a failure reported by the remote gateway or the orchestrator
type SyncError struct {
	Message string
}

func (e SyncError) Error() string {
	return e.Message
}

var (
	ErrAuthenticationFailed = SyncError{"authentication with remote store failed"}
	ErrTimeout              = SyncError{"remote request timed out"}
	ErrNoConnectivity       = SyncError{"no network connectivity"}
	ErrInvalidResponse      = SyncError{"invalid response from remote store"}
	ErrOffline              = SyncError{"remote store is not configured"}
	ErrSyncInProgress       = SyncError{"a sync is already in progress"}
)

// PartialSyncError reports a phase that finished with some items rejected
type PartialSyncError struct {
	Phase      SyncPhase
	Successful int
	Failed     int
}

func (e *PartialSyncError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("partial sync: %d succeeded, %d failed", e.Successful, e.Failed)
	}
	return fmt.Sprintf("partial sync in %s: %d succeeded, %d failed", e.Phase, e.Successful, e.Failed)
}
