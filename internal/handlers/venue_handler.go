package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goldengai/venuesync/internal/models"
	"github.com/goldengai/venuesync/internal/services"
)

// VenueHandler handles venue endpoints
type VenueHandler struct {
	venues *services.VenueService
}

// NewVenueHandler creates a new VenueHandler
func NewVenueHandler(venues *services.VenueService) *VenueHandler {
	return &VenueHandler{venues: venues}
}

// List returns venues filtered by tag or visited flag, sorted by ?sort=
func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		venues []*models.Venue
		err    error
	)
	switch {
	case q.Get("tag") != "":
		venues, err = h.venues.ListByTag(r.Context(), q.Get("tag"))
	case q.Get("visited") != "":
		visited, perr := strconv.ParseBool(q.Get("visited"))
		if perr != nil {
			respondError(w, http.StatusBadRequest, "visited must be true or false.")
			return
		}
		if visited {
			venues, err = h.venues.ListVisited(r.Context())
		} else {
			venues, err = h.unvisited(r)
		}
	default:
		venues, err = h.venues.List(r.Context(), models.ParseVenueSort(q.Get("sort")))
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if venues == nil {
		venues = []*models.Venue{}
	}
	respondJSON(w, http.StatusOK, models.VenueListResponse{Venues: venues, Count: len(venues)})
}

func (h *VenueHandler) unvisited(r *http.Request) ([]*models.Venue, error) {
	all, err := h.venues.List(r.Context(), models.ParseVenueSort(r.URL.Query().Get("sort")))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Venue, 0, len(all))
	for _, v := range all {
		if !v.Visited {
			out = append(out, v)
		}
	}
	return out, nil
}

// Get returns one venue
func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.venues.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Create adds a venue with a generated id
func (h *VenueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.VenueRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "Venue name is required.")
		return
	}

	v, err := h.venues.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// Put updates a venue, creating it under the given id when it does not exist
func (h *VenueHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.VenueRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	v, err := h.venues.Update(r.Context(), id, req)
	if err == nil {
		respondJSON(w, http.StatusOK, v)
		return
	}
	if !errors.Is(err, models.ErrNotFound) {
		respondServiceError(w, r, err)
		return
	}

	v, err = models.NewVenue(req.Name, req.NameLocalized, req.Grid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	v.ID = id
	v.Tags = models.NewTagSet(req.Tags...)
	if err := h.venues.Save(r.Context(), v); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// Delete removes a venue and its local photo
func (h *VenueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.venues.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkVisited flags a venue as visited. The body may carry an explicit visitedAt.
func (h *VenueHandler) MarkVisited(w http.ResponseWriter, r *http.Request) {
	var req models.VisitRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
	}

	v, err := h.venues.MarkVisited(r.Context(), chi.URLParam(r, "id"), req.VisitedAt)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// ClearVisited resets the visited flag
func (h *VenueHandler) ClearVisited(w http.ResponseWriter, r *http.Request) {
	v, err := h.venues.ClearVisited(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// AddTag labels a venue
func (h *VenueHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	var req models.TagRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	v, err := h.venues.AddTag(r.Context(), chi.URLParam(r, "id"), req.Tag)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// RemoveTag drops a label from a venue
func (h *VenueHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	v, err := h.venues.RemoveTag(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tag"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
