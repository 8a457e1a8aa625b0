package orientation

import (
	"math"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Viewing envelope.
const (
	MinPitch = -60.0
	MaxPitch = 60.0
	MinZoom  = 1.0
	MaxZoom  = 2.5
)

// Defaults used when a Config field is zero.
const (
	DefaultDragSensitivity  = 0.3   // degrees per pixel
	DefaultWheelSensitivity = 0.001 // zoom per wheel unit
	DefaultAutoRotateRate   = 3.0   // degrees per second
)

// Point is a pointer position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is the view orientation. Yaw is kept unwrapped so continuous
// rotation never jumps; use WrappedYaw when rendering.
type State struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Zoom  float64 `json:"zoom"`
}

// WrappedYaw returns yaw reduced to [0, 360).
func (s State) WrappedYaw() float64 {
	return WrapDegrees(s.Yaw)
}

// WrapDegrees reduces an angle to [0, 360).
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	if w >= 360 {
		w = 0
	}
	return w
}

// Config tunes input response.
type Config struct {
	DragSensitivity  float64
	WheelSensitivity float64
	AutoRotateRate   float64

	// AutoRotate is the initial auto-rotate setting.
	AutoRotate bool
}

// DefaultConfig returns the stock tuning with auto-rotate on.
func DefaultConfig() Config {
	return Config{
		DragSensitivity:  DefaultDragSensitivity,
		WheelSensitivity: DefaultWheelSensitivity,
		AutoRotateRate:   DefaultAutoRotateRate,
		AutoRotate:       true,
	}
}

// lookAnim eases the view from a start orientation toward a target.
// A single 0..1 progress tween drives both axes so large unwrapped yaw
// values keep float64 precision.
type lookAnim struct {
	progress   *gween.Tween
	from       State
	pitchDelta float64
	yawDelta   float64
}

// Controller owns the orientation of one panorama view. It is driven by
// pointer and wheel input plus a periodic Tick.
//
// Controller is not safe for concurrent use; the owning session serialises
// access.
type Controller struct {
	cfg   Config
	state State

	dragging bool
	last     Point
	paused   bool

	look *lookAnim
}

// New creates a Controller looking at pitch 0, yaw 0 with no zoom.
func New(cfg Config) *Controller {
	if cfg.DragSensitivity <= 0 {
		cfg.DragSensitivity = DefaultDragSensitivity
	}
	if cfg.WheelSensitivity <= 0 {
		cfg.WheelSensitivity = DefaultWheelSensitivity
	}
	if cfg.AutoRotateRate <= 0 {
		cfg.AutoRotateRate = DefaultAutoRotateRate
	}
	return &Controller{
		cfg:    cfg,
		state:  State{Zoom: MinZoom},
		paused: !cfg.AutoRotate,
	}
}

// State returns the current orientation.
func (c *Controller) State() State {
	return c.state
}

// Dragging reports whether a drag gesture is in progress.
func (c *Controller) Dragging() bool {
	return c.dragging
}

// AutoRotating reports whether auto-rotate is enabled (it may still be
// suspended by a drag).
func (c *Controller) AutoRotating() bool {
	return !c.paused
}

// Animating reports whether a LookAt animation is in progress.
func (c *Controller) Animating() bool {
	return c.look != nil
}

// DragStart begins a drag gesture at p. Any LookAt animation is abandoned.
func (c *Controller) DragStart(p Point) {
	if !finite(p.X) || !finite(p.Y) {
		return
	}
	c.dragging = true
	c.last = p
	c.look = nil
}

// DragMove applies the movement since the previous pointer position.
// Dragging right turns the view left (the image follows the pointer) and
// dragging down tilts the view up.
func (c *Controller) DragMove(p Point) State {
	if !c.dragging || !finite(p.X) || !finite(p.Y) {
		return c.state
	}

	dx := p.X - c.last.X
	dy := p.Y - c.last.Y
	c.last = p

	c.state.Yaw -= dx * c.cfg.DragSensitivity
	c.state.Pitch = clamp(c.state.Pitch+dy*c.cfg.DragSensitivity, MinPitch, MaxPitch)
	return c.state
}

// DragEnd finishes the drag gesture. Auto-rotate resumes on the next Tick.
func (c *Controller) DragEnd() {
	c.dragging = false
}

// Wheel zooms in for negative deltas and out for positive ones.
func (c *Controller) Wheel(delta float64) State {
	if !finite(delta) {
		return c.state
	}
	c.state.Zoom = clamp(c.state.Zoom-delta*c.cfg.WheelSensitivity, MinZoom, MaxZoom)
	return c.state
}

// Tick advances time by dt. A running LookAt animation takes precedence;
// otherwise auto-rotate turns the view while idle.
func (c *Controller) Tick(dt time.Duration) State {
	if dt <= 0 {
		return c.state
	}

	if c.look != nil {
		progress, done := c.look.progress.Update(float32(dt.Seconds()))
		f := float64(progress)
		c.state.Pitch = clamp(c.look.from.Pitch+c.look.pitchDelta*f, MinPitch, MaxPitch)
		c.state.Yaw = c.look.from.Yaw + c.look.yawDelta*f
		if done {
			c.state.Pitch = clamp(c.look.from.Pitch+c.look.pitchDelta, MinPitch, MaxPitch)
			c.state.Yaw = c.look.from.Yaw + c.look.yawDelta
			c.look = nil
		}
		return c.state
	}

	if !c.dragging && !c.paused {
		c.state.Yaw += c.cfg.AutoRotateRate * dt.Seconds()
	}
	return c.state
}

// SetAutoRotate enables or pauses auto-rotation.
func (c *Controller) SetAutoRotate(enabled bool) {
	c.paused = !enabled
}

// LookAt turns the view toward the given angle over duration, taking the
// short way round. Pitch is clamped to the viewing envelope. A zero
// duration jumps immediately. A nil easeFn uses ease.InOutCubic.
func (c *Controller) LookAt(pitch, yaw float64, duration time.Duration, easeFn ease.TweenFunc) State {
	if !finite(pitch) || !finite(yaw) {
		return c.state
	}

	target := clamp(pitch, MinPitch, MaxPitch)
	yawDelta := ShortestDelta(c.state.Yaw, yaw)

	if duration <= 0 {
		c.look = nil
		c.state.Pitch = target
		c.state.Yaw += yawDelta
		return c.state
	}
	if easeFn == nil {
		easeFn = ease.InOutCubic
	}

	c.look = &lookAnim{
		progress:   gween.New(0, 1, float32(duration.Seconds()), easeFn),
		from:       c.state,
		pitchDelta: target - c.state.Pitch,
		yawDelta:   yawDelta,
	}
	return c.state
}

// Reset returns to the initial framing and stops any gesture or animation.
// The auto-rotate setting is kept.
func (c *Controller) Reset() {
	c.state = State{Zoom: MinZoom}
	c.dragging = false
	c.look = nil
}

// ShortestDelta returns the signed rotation in (-180, 180] that takes
// angle from to angle to.
func ShortestDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
