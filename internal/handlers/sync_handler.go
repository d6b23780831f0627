package handlers

import (
	"net/http"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/services"
)

// SyncHandler exposes the sync orchestrator
type SyncHandler struct {
	sync *services.SyncService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync *services.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

func stateResponse(state models.SyncState) models.SyncStateResponse {
	return models.SyncStateResponse{SyncState: state, Text: state.StatusText()}
}

// Trigger starts a background run. ?mode=incremental selects an incremental sync.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	mode := models.ParseSyncMode(r.URL.Query().Get("mode"))

	state, started := h.sync.Start(r.Context(), mode)
	if !started {
		respondJSON(w, http.StatusConflict, stateResponse(state))
		return
	}

	observability.WithContext(r.Context()).
		WithField("mode", string(mode)).
		Info("Sync triggered via API")
	respondJSON(w, http.StatusAccepted, stateResponse(state))
}

// State returns the current orchestrator snapshot
func (h *SyncHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, stateResponse(h.sync.State()))
}

// Reset forgets the sync watermark so the next run is a full one
func (h *SyncHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Reset(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stateResponse(h.sync.State()))
}
