package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/services"
)

// VenueInfoHandler serves supplementary venue content and comments
type VenueInfoHandler struct {
	info *services.VenueInfoCache
}

// NewVenueInfoHandler creates a new VenueInfoHandler
func NewVenueInfoHandler(info *services.VenueInfoCache) *VenueInfoHandler {
	return &VenueInfoHandler{info: info}
}

// Get returns the info record, fetching it from the remote store on a cache miss
func (h *VenueInfoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := h.info.Fetch(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if info == nil {
		respondServiceError(w, r, &models.NotFoundError{Kind: "venue info", ID: id})
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Comments lists comments in ?lang= (default ja), newest first
func (h *VenueInfoHandler) Comments(w http.ResponseWriter, r *http.Request) {
	lang := models.LanguageJapanese
	if raw := r.URL.Query().Get("lang"); raw != "" {
		parsed, err := models.ParseLanguage(raw)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		lang = parsed
	}
	respondJSON(w, http.StatusOK, h.info.Comments(chi.URLParam(r, "id"), lang))
}

// AddComment appends a comment to a venue
func (h *VenueInfoHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req models.CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	lang, err := models.ParseLanguage(req.Language)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	comment, err := models.NewComment(id, req.Author, req.Content, lang, req.Rating)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.info.AddComment(id, *comment)
	respondJSON(w, http.StatusCreated, comment)
}
