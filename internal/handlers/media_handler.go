package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/services"
)

// maxUploadBody bounds the raw camera image accepted before re-encoding
const maxUploadBody = 50 << 20

// MediaHandler handles venue photo endpoints
type MediaHandler struct {
	media *services.MediaService
}

// NewMediaHandler creates a new MediaHandler
func NewMediaHandler(media *services.MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// Upload accepts a raw image body for a venue. The response is 200 when the
// photo reached the remote store and 202 when it only landed locally.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Image body is too large.")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "No image provided.")
		return
	}

	res, err := h.media.Upload(r.Context(), data, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if !res.Uploaded {
		status = http.StatusAccepted
	}
	respondJSON(w, status, models.UploadToResponse(res))
}

// Get streams the locally stored JPEG
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	data, err := h.media.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// Delete removes the local photo and any pending upload marker
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.media.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage reports local storage use
func (h *MediaHandler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.media.Usage(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, usage)
}
