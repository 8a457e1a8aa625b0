package measurement

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPixelsPerMeter is the assumed scale before the user calibrates.
const DefaultPixelsPerMeter = 100.0

// maxLabelLength bounds measurement labels.
const maxLabelLength = 80

// Errors returned by the engine.
var (
	ErrInvalidReference      = errors.New("measurement: reference distance must be a positive number of meters")
	ErrDegenerateCalibration = errors.New("measurement: calibration points coincide")
	ErrInvalidPoint          = errors.New("measurement: point coordinates must be finite")
	ErrMeasurementNotFound   = errors.New("measurement: not found")
	ErrInvalidLabel          = errors.New("measurement: invalid label")
	ErrExportNotFound        = errors.New("measurement: export not found")
)

// Mode selects what a click does.
type Mode int

const (
	// ModeMeasure pairs clicks into measurements.
	ModeMeasure Mode = iota
	// ModeCalibrate pairs clicks into a reference length.
	ModeCalibrate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeMeasure:
		return "measure"
	case ModeCalibrate:
		return "calibrate"
	default:
		return "unknown"
	}
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name written by MarshalText.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "measure":
		*m = ModeMeasure
	case "calibrate":
		*m = ModeCalibrate
	default:
		return fmt.Errorf("measurement: unknown mode %q", b)
	}
	return nil
}

// Point is a click position in percent of image width and height.
type Point struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Measurement is a committed distance between two points. Its scale is
// fixed when it is created; later calibration does not change it.
type Measurement struct {
	ID             string    `json:"id"`
	Start          Point     `json:"start_point"`
	End            Point     `json:"end_point"`
	DistancePixels float64   `json:"distance_pixels"`
	DistanceMeters float64   `json:"distance_meters"`
	PixelsPerMeter float64   `json:"pixels_per_meter"`
	Label          string    `json:"label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Calibration is the current scale and the reference length used to set it.
type Calibration struct {
	PixelsPerMeter  float64 `json:"pixels_per_meter"`
	ReferenceMeters float64 `json:"reference_meters,omitempty"`
	Calibrated      bool    `json:"calibrated"`
}

// ClickOutcome says what a click produced.
type ClickOutcome string

const (
	// OutcomePending means the click was stored as the first point of a pair.
	OutcomePending ClickOutcome = "pending"
	// OutcomeMeasured means the click completed a measurement.
	OutcomeMeasured ClickOutcome = "measured"
	// OutcomeCalibrated means the click completed a calibration.
	OutcomeCalibrated ClickOutcome = "calibrated"
)

// ClickResult reports the effect of Click.
type ClickResult struct {
	Outcome     ClickOutcome `json:"outcome"`
	Point       Point        `json:"point"`
	Measurement *Measurement `json:"measurement,omitempty"`
	Calibration *Calibration `json:"calibration,omitempty"`
}

// Snapshot is a read-only view of the engine state.
type Snapshot struct {
	Mode         Mode          `json:"mode"`
	Pending      *Point        `json:"pending,omitempty"`
	Calibration  Calibration   `json:"calibration"`
	Measurements []Measurement `json:"measurements"`
	SelectedID   string        `json:"selected_id,omitempty"`
}
