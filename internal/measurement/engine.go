package measurement

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Engine runs the two-click calibration and measurement protocol for one
// scene. Clicks pair up in arrival order; only one pending point is held.
//
// Engine is not safe for concurrent use.
type Engine struct {
	frameW float64
	frameH float64

	mode      Mode
	pending   *Point
	reference float64

	calibration  Calibration
	measurements []Measurement
	selected     string

	now func() time.Time
}

// NewEngine creates an engine for an image whose nominal frame is
// frameW × frameH pixels. Point percentages are converted to pixels in that
// frame for both calibration and measurement. A non-positive
// pixelsPerMeter uses DefaultPixelsPerMeter.
func NewEngine(frameW, frameH, pixelsPerMeter float64) *Engine {
	if !(frameW > 0) {
		frameW = 1000
	}
	if !(frameH > 0) {
		frameH = 1000
	}
	if !(pixelsPerMeter > 0) || math.IsInf(pixelsPerMeter, 0) {
		pixelsPerMeter = DefaultPixelsPerMeter
	}
	return &Engine{
		frameW:      frameW,
		frameH:      frameH,
		calibration: Calibration{PixelsPerMeter: pixelsPerMeter},
		now:         time.Now,
	}
}

// Mode returns the current click mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Pending returns the first point of an incomplete pair.
func (e *Engine) Pending() (Point, bool) {
	if e.pending == nil {
		return Point{}, false
	}
	return *e.pending, true
}

// Calibration returns the current scale.
func (e *Engine) Calibration() Calibration {
	return e.calibration
}

// Measurements returns the committed measurements in creation order.
func (e *Engine) Measurements() []Measurement {
	out := make([]Measurement, len(e.measurements))
	copy(out, e.measurements)
	return out
}

// Selected returns the id of the selected measurement, if any.
func (e *Engine) Selected() (string, bool) {
	return e.selected, e.selected != ""
}

// Snapshot returns a copy of the full engine state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Mode:         e.mode,
		Calibration:  e.calibration,
		Measurements: e.Measurements(),
		SelectedID:   e.selected,
	}
	if e.pending != nil {
		p := *e.pending
		s.Pending = &p
	}
	return s
}

// StartCalibration switches to calibrate mode with the given reference
// length. Any pending point is dropped.
func (e *Engine) StartCalibration(referenceMeters float64) error {
	if !(referenceMeters > 0) || math.IsInf(referenceMeters, 0) {
		return ErrInvalidReference
	}
	e.mode = ModeCalibrate
	e.reference = referenceMeters
	e.pending = nil
	return nil
}

// CancelCalibration returns to measure mode without changing the scale.
func (e *Engine) CancelCalibration() {
	if e.mode != ModeCalibrate {
		return
	}
	e.mode = ModeMeasure
	e.reference = 0
	e.pending = nil
}

// Click places a point at (x, y) percent. Coordinates are clamped to the
// image. The first click of a pair is held as pending; the second completes
// a calibration or a measurement depending on the mode.
func (e *Engine) Click(x, y float64) (ClickResult, error) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return ClickResult{}, ErrInvalidPoint
	}
	p := Point{ID: uuid.NewString(), X: clampPercent(x), Y: clampPercent(y)}

	if e.pending == nil {
		e.pending = &p
		return ClickResult{Outcome: OutcomePending, Point: p}, nil
	}

	start := *e.pending
	e.pending = nil
	d := e.PixelDistance(start, p)

	if e.mode == ModeCalibrate {
		if d == 0 {
			return ClickResult{}, ErrDegenerateCalibration
		}
		e.calibration = Calibration{
			PixelsPerMeter:  d / e.reference,
			ReferenceMeters: e.reference,
			Calibrated:      true,
		}
		e.mode = ModeMeasure
		e.reference = 0
		cal := e.calibration
		return ClickResult{Outcome: OutcomeCalibrated, Point: p, Calibration: &cal}, nil
	}

	m := Measurement{
		ID:             uuid.NewString(),
		Start:          start,
		End:            p,
		DistancePixels: d,
		DistanceMeters: d / e.calibration.PixelsPerMeter,
		PixelsPerMeter: e.calibration.PixelsPerMeter,
		CreatedAt:      e.now().UTC(),
	}
	e.measurements = append(e.measurements, m)
	return ClickResult{Outcome: OutcomeMeasured, Point: p, Measurement: &m}, nil
}

// PixelDistance converts two percentage points to a distance in the
// engine's nominal frame.
func (e *Engine) PixelDistance(a, b Point) float64 {
	dx := (b.X - a.X) * e.frameW / 100
	dy := (b.Y - a.Y) * e.frameH / 100
	return math.Hypot(dx, dy)
}

// SetLabel sets or clears the label of a measurement.
func (e *Engine) SetLabel(id, label string) error {
	label = strings.TrimSpace(label)
	if len(label) > maxLabelLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidLabel, maxLabelLength)
	}
	i := e.find(id)
	if i < 0 {
		return ErrMeasurementNotFound
	}
	e.measurements[i].Label = label
	return nil
}

// Select marks a measurement as selected.
func (e *Engine) Select(id string) error {
	if e.find(id) < 0 {
		return ErrMeasurementNotFound
	}
	e.selected = id
	return nil
}

// Deselect clears the selection.
func (e *Engine) Deselect() {
	e.selected = ""
}

// Delete removes a measurement. A selection pointing at it is cleared.
func (e *Engine) Delete(id string) error {
	i := e.find(id)
	if i < 0 {
		return ErrMeasurementNotFound
	}
	e.measurements = append(e.measurements[:i], e.measurements[i+1:]...)
	if e.selected == id {
		e.selected = ""
	}
	return nil
}

// Clear removes every measurement and returns to idle measure mode. The
// calibrated scale is kept.
func (e *Engine) Clear() {
	e.measurements = nil
	e.selected = ""
	e.pending = nil
	e.mode = ModeMeasure
	e.reference = 0
}

// TotalMeters sums the committed measurements.
func (e *Engine) TotalMeters() float64 {
	var total float64
	for _, m := range e.measurements {
		total += m.DistanceMeters
	}
	return total
}

func (e *Engine) find(id string) int {
	for i := range e.measurements {
		if e.measurements[i].ID == id {
			return i
		}
	}
	return -1
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
