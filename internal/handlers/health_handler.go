package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goldengai/venuesync/internal/models"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	remoteMode string
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(remoteMode string) *HealthHandler {
	return &HealthHandler{remoteMode: remoteMode}
}

// HealthCheck returns the engine health and whether a remote store is wired
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Remote:    h.remoteMode,
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
