package models

import (
	"fmt"
	"time"
)

// SyncStatus is the coarse state of the orchestrator
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncFailed  SyncStatus = "failed"
)

// SyncMode selects full or incremental reconciliation
type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

// ParseSyncMode defaults to full
func ParseSyncMode(s string) SyncMode {
	if SyncMode(s) == SyncModeIncremental {
		return SyncModeIncremental
	}
	return SyncModeFull
}

// SyncPhase names a step of a sync run
type SyncPhase string

const (
	PhaseVenues    SyncPhase = "venues"
	PhaseVenueInfo SyncPhase = "venue_info"
	PhaseMedia     SyncPhase = "media"
)

// SyncPhases lists the phases in execution order
var SyncPhases = []SyncPhase{PhaseVenues, PhaseVenueInfo, PhaseMedia}

// SyncState is an observable snapshot of the orchestrator
type SyncState struct {
	Status       SyncStatus `json:"status"`
	Mode         SyncMode   `json:"mode,omitempty"`
	Phase        SyncPhase  `json:"phase,omitempty"`
	Progress     float64    `json:"progress"`
	Reason       string     `json:"reason,omitempty"`
	MediaDone    int        `json:"mediaDone"`
	MediaTotal   int        `json:"mediaTotal"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// StatusText renders the state for display
func (s SyncState) StatusText() string {
	switch s.Status {
	case SyncSyncing:
		if s.Phase == PhaseMedia && s.MediaTotal > 0 {
			return fmt.Sprintf("syncing: %d of %d photos synced", s.MediaDone, s.MediaTotal)
		}
		return fmt.Sprintf("syncing %s (%.0f%%)", s.Phase, s.Progress*100)
	case SyncFailed:
		return "sync failed: " + s.Reason
	}
	if s.LastSyncedAt == nil {
		return "never synced"
	}
	return "last synced at " + s.LastSyncedAt.Local().Format(time.RFC1123)
}

// PhaseResult counts the items handled by one phase
type PhaseResult struct {
	Phase      SyncPhase     `json:"phase"`
	Requested  int           `json:"requested"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"durationNs"`
}

// SyncOutcome aggregates a finished run
type SyncOutcome struct {
	Mode       SyncMode      `json:"mode"`
	Since      time.Time     `json:"since"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Phases     []PhaseResult `json:"phases"`
	State      SyncState     `json:"state"`
}

// Phase returns the result for p, if that phase ran
func (o *SyncOutcome) Phase(p SyncPhase) (PhaseResult, bool) {
	for _, r := range o.Phases {
		if r.Phase == p {
			return r, true
		}
	}
	return PhaseResult{}, false
}

// Totals sums successful and failed counts over all phases
func (o *SyncOutcome) Totals() (successful, failed int) {
	for _, r := range o.Phases {
		successful += r.Successful
		failed += r.Failed
	}
	return successful, failed
}

// Partial reports whether any phase rejected items
func (o *SyncOutcome) Partial() bool {
	_, failed := o.Totals()
	return failed > 0
}

// Err returns a PartialSyncError for partial outcomes and nil otherwise
func (o *SyncOutcome) Err() error {
	if !o.Partial() {
		return nil
	}
	var first SyncPhase
	for _, r := range o.Phases {
		if r.Failed > 0 {
			first = r.Phase
			break
		}
	}
	ok, failed := o.Totals()
	return &PartialSyncError{Phase: first, Successful: ok, Failed: failed}
}
