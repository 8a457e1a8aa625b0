package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/navigation"
	"github.com/nerrad567/gray-logic-tour/internal/session"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
	"github.com/nerrad567/gray-logic-tour/internal/world"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorMapping pairs a domain sentinel with its HTTP rendering.
type errorMapping struct {
	err    error
	status int
	code   string
}

// domainErrors is checked in order; the first errors.Is match wins.
var domainErrors = []errorMapping{
	{tour.ErrTourNotFound, http.StatusNotFound, ErrCodeNotFound},
	{session.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
	{session.ErrSessionClosed, http.StatusNotFound, ErrCodeNotFound},
	{session.ErrSceneNotFound, http.StatusNotFound, ErrCodeNotFound},
	{session.ErrNoWorld, http.StatusNotFound, ErrCodeNotFound},
	{navigation.ErrUnknownScene, http.StatusNotFound, ErrCodeNotFound},
	{navigation.ErrHotspotNotFound, http.StatusNotFound, ErrCodeNotFound},
	{measurement.ErrMeasurementNotFound, http.StatusNotFound, ErrCodeNotFound},
	{measurement.ErrExportNotFound, http.StatusNotFound, ErrCodeNotFound},
	{world.ErrMarkerNotFound, http.StatusNotFound, ErrCodeNotFound},

	{tour.ErrTourExists, http.StatusConflict, ErrCodeConflict},

	{tour.ErrInvalidTour, http.StatusBadRequest, ErrCodeValidation},
	{tour.ErrInvalidName, http.StatusBadRequest, ErrCodeValidation},
	{tour.ErrInvalidSlug, http.StatusBadRequest, ErrCodeValidation},
	{tour.ErrNoScenes, http.StatusBadRequest, ErrCodeValidation},
	{tour.ErrInvalidScene, http.StatusBadRequest, ErrCodeValidation},
	{tour.ErrInvalidHotspot, http.StatusBadRequest, ErrCodeValidation},
	{tour.ErrInvalidMarker, http.StatusBadRequest, ErrCodeValidation},
	{measurement.ErrInvalidReference, http.StatusBadRequest, ErrCodeValidation},
	{measurement.ErrDegenerateCalibration, http.StatusBadRequest, ErrCodeValidation},
	{measurement.ErrInvalidPoint, http.StatusBadRequest, ErrCodeValidation},
	{measurement.ErrInvalidLabel, http.StatusBadRequest, ErrCodeValidation},
	{staging.ErrInvalidStyle, http.StatusBadRequest, ErrCodeValidation},
	{staging.ErrInvalidRoomType, http.StatusBadRequest, ErrCodeValidation},
	{staging.ErrNoSourceImage, http.StatusBadRequest, ErrCodeValidation},
	{session.ErrInvalidDisplay, http.StatusBadRequest, ErrCodeValidation},

	{session.ErrTooManySessions, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{staging.ErrDisabled, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{staging.ErrGenerationFailed, http.StatusBadGateway, ErrCodeUnavailable},
}

// writeDomainError renders err using domainErrors, falling back to a 500
// with fallback as the message.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	writeInternalError(w, fallback)
}
