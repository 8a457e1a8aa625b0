package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// maxParamLen limits path and query parameter length.
const maxParamLen = 100

// defaultListLimit and maxListLimit bound history listings.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// tourSummary is a tour as listed, without scene bodies.
type tourSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	PropertyID   *string  `json:"property_id,omitempty"`
	FloorAreaSqm *float64 `json:"floor_area_sqm,omitempty"`
	SceneCount   int      `json:"scene_count"`
	HasWorld     bool     `json:"has_world"`
}

func summarise(t *tour.Tour) tourSummary {
	return tourSummary{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		PropertyID:   t.PropertyID,
		FloorAreaSqm: t.FloorAreaSqm,
		SceneCount:   len(t.Scenes),
		HasWorld:     t.Neighborhood != nil,
	}
}

// handleListTours returns every tour in the catalogue.
//
// Query parameters:
//   - slug: return only the tour with this slug
func (s *Server) handleListTours(w http.ResponseWriter, r *http.Request) {
	if slug := r.URL.Query().Get("slug"); slug != "" {
		if len(slug) > maxParamLen {
			writeBadRequest(w, "slug exceeds maximum length")
			return
		}
		t, err := s.tours.GetTourBySlug(r.Context(), slug)
		if err != nil {
			if errors.Is(err, tour.ErrTourNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{"tours": []tourSummary{}, "count": 0})
				return
			}
			writeInternalError(w, "failed to look up tour")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tours": []tourSummary{summarise(t)}, "count": 1})
		return
	}

	tours := s.tours.ListTours(r.Context())
	out := make([]tourSummary, 0, len(tours))
	for i := range tours {
		out = append(out, summarise(&tours[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tours": out, "count": len(out)})
}

// handleGetTour returns a full tour document.
func (s *Server) handleGetTour(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "invalid tour ID")
	if !ok {
		return
	}

	t, err := s.tours.GetTour(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get tour")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tour":               t,
		"unresolved_targets": tour.UnresolvedTargets(t),
	})
}

// handleCreateTour adds a tour to the catalogue.
func (s *Server) handleCreateTour(w http.ResponseWriter, r *http.Request) {
	var t tour.Tour
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.tours.CreateTour(r.Context(), &t); err != nil {
		writeDomainError(w, err, "failed to create tour")
		return
	}

	s.logger.Info("tour created", "tour_id", t.ID, "scenes", len(t.Scenes), "by", subjectFrom(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]any{
		"tour":               t,
		"unresolved_targets": tour.UnresolvedTargets(&t),
	})
}

// handleUpdateTour applies a partial update. Fields present in the body
// replace the stored ones; the id cannot change.
func (s *Server) handleUpdateTour(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "invalid tour ID")
	if !ok {
		return
	}

	existing, err := s.tours.GetTour(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get tour")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id

	if err := s.tours.UpdateTour(r.Context(), existing); err != nil {
		writeDomainError(w, err, "failed to update tour")
		return
	}

	s.logger.Info("tour updated", "tour_id", id, "by", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"tour":               existing,
		"unresolved_targets": tour.UnresolvedTargets(existing),
	})
}

// handleDeleteTour removes a tour. Open sessions keep their copy.
func (s *Server) handleDeleteTour(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "invalid tour ID")
	if !ok {
		return
	}

	if err := s.tours.DeleteTour(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to delete tour")
		return
	}

	s.logger.Info("tour deleted", "tour_id", id, "by", subjectFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleListExports lists archived measurement exports for a tour.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeNotFound(w, "export archive is not enabled")
		return
	}
	id, ok := pathParam(w, r, "id", "invalid tour ID")
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	records, err := s.archive.ListByTour(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to list exports")
		return
	}
	if records == nil {
		records = []measurement.ExportRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": records, "count": len(records)})
}

// handleGetExport returns one archived export.
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeNotFound(w, "export archive is not enabled")
		return
	}
	id, ok := pathParam(w, r, "id", "invalid export ID")
	if !ok {
		return
	}

	rec, err := s.archive.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get export")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// pathParam reads a URL parameter, writing a 400 when it is empty or too long.
func pathParam(w http.ResponseWriter, r *http.Request, name, message string) (string, bool) {
	v := chi.URLParam(r, name)
	if v == "" || len(v) > maxParamLen {
		writeBadRequest(w, message)
		return "", false
	}
	return v, true
}

// limitParam parses the optional "limit" query parameter.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxListLimit {
		writeBadRequest(w, "limit must be between 1 and 500")
		return 0, false
	}
	return n, true
}
