package tour

import "errors"

// Domain errors for the tour catalogue. Check with errors.Is.
var (
	ErrTourNotFound = errors.New("tour: not found")
	ErrTourExists   = errors.New("tour: already exists")

	// ErrInvalidTour wraps every structural validation failure.
	ErrInvalidTour = errors.New("tour: invalid")

	ErrInvalidName    = errors.New("tour: invalid name")
	ErrInvalidSlug    = errors.New("tour: invalid slug")
	ErrNoScenes       = errors.New("tour: no scenes")
	ErrInvalidScene   = errors.New("tour: invalid scene")
	ErrInvalidHotspot = errors.New("tour: invalid hotspot")
	ErrInvalidMarker  = errors.New("tour: invalid marker")
)
