package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/session"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// maxLookAtDuration caps animated camera moves.
const maxLookAtDuration = 10 * time.Second

// decodeBody decodes a JSON request body into v. An empty body leaves v
// unchanged. Writes a 400 and returns false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeBadRequest(w, "invalid JSON body")
	return false
}

// session resolves the {id} path parameter to an open session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := pathParam(w, r, "id", "invalid session ID")
	if !ok {
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeDomainError(w, err, "failed to get session")
		return nil, false
	}
	return sess, true
}

// respondView writes a view or maps the error.
func respondView(w http.ResponseWriter, v session.View, err error) {
	if err != nil {
		writeDomainError(w, err, "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- lifecycle ---

type createSessionRequest struct {
	TourID string `json:"tour_id"`
	Slug   string `json:"slug"`
}

// handleCreateSession opens a viewing session on a tour, by id or slug.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TourID == "" && req.Slug == "" {
		writeBadRequest(w, "tour_id or slug is required")
		return
	}
	if len(req.TourID) > maxParamLen || len(req.Slug) > maxParamLen {
		writeBadRequest(w, "tour reference exceeds maximum length")
		return
	}

	tourID := req.TourID
	if tourID == "" {
		t, err := s.tours.GetTourBySlug(r.Context(), req.Slug)
		if err != nil {
			writeDomainError(w, err, "failed to look up tour")
			return
		}
		tourID = t.ID
	}

	_, view, err := s.sessions.Create(r.Context(), tourID)
	if err != nil {
		writeDomainError(w, err, "failed to open session")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetSession returns the current view.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v, err := sess.View()
	respondView(w, v, err)
}

// handleDeleteSession closes a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "invalid session ID")
	if !ok {
		return
	}
	if err := s.sessions.Close(id); err != nil {
		writeDomainError(w, err, "failed to close session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- orientation ---

func (s *Server) handleDragStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var p orientation.Point
	if !decodeBody(w, r, &p) {
		return
	}
	v, err := sess.DragStart(p)
	respondView(w, v, err)
}

func (s *Server) handleDragMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var p orientation.Point
	if !decodeBody(w, r, &p) {
		return
	}
	v, err := sess.DragMove(p)
	respondView(w, v, err)
}

func (s *Server) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v, err := sess.DragEnd()
	respondView(w, v, err)
}

func (s *Server) handleWheel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Delta float64 `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := sess.Wheel(req.Delta)
	respondView(w, v, err)
}

func (s *Server) handleAutoRotate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}
	v, err := sess.SetAutoRotate(*req.Enabled)
	respondView(w, v, err)
}

// handleLookAt animates the camera to a pitch and yaw in degrees.
// duration_ms of zero jumps immediately.
func (s *Server) handleLookAt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Pitch      float64 `json:"pitch"`
		Yaw        float64 `json:"yaw"`
		DurationMs int     `json:"duration_ms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d := time.Duration(req.DurationMs) * time.Millisecond
	if d < 0 || d > maxLookAtDuration {
		writeBadRequest(w, "duration_ms must be between 0 and 10000")
		return
	}
	v, err := sess.LookAt(req.Pitch, req.Yaw, d)
	respondView(w, v, err)
}

// --- navigation ---

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v, err := sess.Next()
	respondView(w, v, err)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v, err := sess.Previous()
	respondView(w, v, err)
}

func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		SceneID string `json:"scene_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SceneID == "" || len(req.SceneID) > maxParamLen {
		writeBadRequest(w, "scene_id is required")
		return
	}
	v, err := sess.JumpTo(req.SceneID)
	respondView(w, v, err)
}

func (s *Server) handleHotspot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		HotspotID string `json:"hotspot_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HotspotID == "" || len(req.HotspotID) > maxParamLen {
		writeBadRequest(w, "hotspot_id is required")
		return
	}
	res, err := sess.ActivateHotspot(req.HotspotID)
	if err != nil {
		writeDomainError(w, err, "failed to activate hotspot")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- display ---

// handleDisplay requests a display mode. The client reports what its
// browser supports; unsupported modes degrade rather than fail.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode         session.DisplayMode  `json:"mode"`
		Capabilities session.Capabilities `json:"capabilities"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := sess.RequestDisplay(req.Mode, req.Capabilities)
	if err != nil {
		writeDomainError(w, err, "failed to change display mode")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- assets ---

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sceneID, ok := pathParam(w, r, "sceneId", "invalid scene ID")
	if !ok {
		return
	}
	st, err := sess.Asset(sceneID)
	if err != nil {
		writeDomainError(w, err, "failed to get asset status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRetryAsset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sceneID, ok := pathParam(w, r, "sceneId", "invalid scene ID")
	if !ok {
		return
	}
	st, err := sess.RetryAsset(sceneID)
	if err != nil {
		writeDomainError(w, err, "failed to retry asset")
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// --- measurements ---

func respondMeasurements(w http.ResponseWriter, st session.MeasurementState, err error) {
	if err != nil {
		writeDomainError(w, err, "failed to update measurements")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetMeasurements(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.Measurements()
	respondMeasurements(w, st, err)
}

// handleMeasurementClick records a click at percent coordinates (0-100)
// within the scene frame.
func (s *Server) handleMeasurementClick(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		writeBadRequest(w, "x and y are required")
		return
	}
	res, err := sess.Click(*req.X, *req.Y)
	if err != nil {
		writeDomainError(w, err, "failed to record click")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ReferenceMeters float64 `json:"reference_meters"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := sess.StartCalibration(req.ReferenceMeters)
	respondMeasurements(w, st, err)
}

func (s *Server) handleCancelCalibration(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.CancelCalibration()
	respondMeasurements(w, st, err)
}

func (s *Server) handleClearMeasurements(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.ClearMeasurements()
	respondMeasurements(w, st, err)
}

// handleExportMeasurements downloads the current scene's measurements.
func (s *Server) handleExportMeasurements(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	exp, err := sess.ExportMeasurements(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to export measurements")
		return
	}
	body, err := exp.Document.MarshalIndented()
	if err != nil {
		s.logger.Error("encoding measurement export", "error", err)
		writeInternalError(w, "failed to encode export")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "measurements-"+exp.SceneID+".json"))
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck // Best effort write to client
}

func (s *Server) handleDeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	mid, ok := pathParam(w, r, "mid", "invalid measurement ID")
	if !ok {
		return
	}
	st, err := sess.DeleteMeasurement(mid)
	respondMeasurements(w, st, err)
}

func (s *Server) handleLabelMeasurement(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	mid, ok := pathParam(w, r, "mid", "invalid measurement ID")
	if !ok {
		return
	}
	var req struct {
		Label string `json:"label"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := sess.LabelMeasurement(mid, req.Label)
	respondMeasurements(w, st, err)
}

func (s *Server) handleSelectMeasurement(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	mid, ok := pathParam(w, r, "mid", "invalid measurement ID")
	if !ok {
		return
	}
	st, err := sess.SelectMeasurement(mid)
	respondMeasurements(w, st, err)
}

// --- staging ---

type stagingRequest struct {
	SceneID string `json:"scene_id"`
	staging.Options
}

// handleRequestStaging accepts a virtual staging job. The result arrives
// over the session channel.
func (s *Server) handleRequestStaging(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req stagingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.SceneID) > maxParamLen {
		writeBadRequest(w, "scene_id exceeds maximum length")
		return
	}
	ticket, err := sess.RequestStaging(req.SceneID, req.Options)
	if err != nil {
		writeDomainError(w, err, "failed to request staging")
		return
	}
	writeJSON(w, http.StatusAccepted, ticket)
}

func (s *Server) handleGetStaging(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sceneID, ok := pathParam(w, r, "sceneId", "invalid scene ID")
	if !ok {
		return
	}
	st, err := sess.StagingStatus(sceneID)
	if err != nil {
		writeDomainError(w, err, "failed to get staging status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDiscardStaging(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sceneID, ok := pathParam(w, r, "sceneId", "invalid scene ID")
	if !ok {
		return
	}
	st, err := sess.DiscardStaging(sceneID)
	if err != nil {
		writeDomainError(w, err, "failed to discard staging")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleShowOriginal toggles between the staged and original image.
func (s *Server) handleShowOriginal(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sceneID, ok := pathParam(w, r, "sceneId", "invalid scene ID")
	if !ok {
		return
	}
	var req struct {
		Show *bool `json:"show"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Show == nil {
		writeBadRequest(w, "show is required")
		return
	}
	st, err := sess.ShowOriginal(sceneID, *req.Show)
	if err != nil {
		writeDomainError(w, err, "failed to toggle original")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStagingHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sceneID, ok := pathParam(w, r, "sceneId", "invalid scene ID")
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	reqs, err := sess.StagingHistory(r.Context(), sceneID, limit)
	if err != nil {
		writeDomainError(w, err, "failed to list staging history")
		return
	}
	if reqs == nil {
		reqs = []staging.Request{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs, "count": len(reqs)})
}

// --- world ---

// handleWorldMarkers lists neighborhood markers with their distance labels.
//
// Query parameters:
//   - category: filter by category; repeat or comma-separate for several
func (s *Server) handleWorldMarkers(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var cats []tour.MarkerCategory
	for _, raw := range r.URL.Query()["category"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cats = append(cats, tour.MarkerCategory(c))
			}
		}
	}

	markers, err := sess.WorldMarkers(cats...)
	if err != nil {
		writeDomainError(w, err, "failed to list markers")
		return
	}
	anchor, label, err := sess.WorldAnchor()
	if err != nil {
		writeDomainError(w, err, "failed to get world anchor")
		return
	}
	categories, err := sess.WorldCategories()
	if err != nil {
		writeDomainError(w, err, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"anchor":       anchor,
		"anchor_label": label,
		"categories":   categories,
		"markers":      markers,
		"count":        len(markers),
	})
}

type markerRequest struct {
	MarkerID string `json:"marker_id"`
}

// handleWorldHover sets the hovered marker; an empty id clears it.
func (s *Server) handleWorldHover(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req markerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.HoverMarker(req.MarkerID); err != nil {
		writeDomainError(w, err, "failed to hover marker")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWorldSelect selects a marker; an empty id deselects.
func (s *Server) handleWorldSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req markerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mv, err := sess.SelectMarker(req.MarkerID)
	if err != nil {
		writeDomainError(w, err, "failed to select marker")
		return
	}
	if req.MarkerID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"selected": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": mv})
}

type vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v vector) r3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// handleWorldPick casts a ray from the camera and selects the first marker
// it hits.
func (s *Server) handleWorldPick(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Origin    vector `json:"origin"`
		Direction vector `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	dir := req.Direction.r3()
	if dir.Norm() == 0 {
		writeBadRequest(w, "direction must be non-zero")
		return
	}

	mv, hit, err := sess.PickMarker(req.Origin.r3(), dir)
	if err != nil {
		writeDomainError(w, err, "failed to pick marker")
		return
	}
	if !hit {
		writeJSON(w, http.StatusOK, map[string]any{"hit": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hit": true, "marker": mv})
}
