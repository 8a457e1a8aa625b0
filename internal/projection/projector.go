// Package projection maps hotspot angles onto the viewer's screen.
//
// The mapping is a linear approximation: yaw and pitch offsets from the
// view direction scale directly to screen percentages. It is tuned for
// placing anchors, not for measuring.
package projection

import (
	"math"

	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// CullThreshold is the largest yaw offset, in degrees, that still renders.
// Anything further round is behind the viewer.
const CullThreshold = 80.0

// degreesPerHalfScreen is the angular offset that reaches the screen edge
// at zoom 1.
const degreesPerHalfScreen = 90.0

// ScreenPoint is a position in percent of the viewport, origin top-left.
// Values can fall outside [0, 100] near the edges.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Anchor is a hotspot placed on screen.
type Anchor struct {
	HotspotID string           `json:"hotspot_id"`
	Kind      tour.HotspotKind `json:"kind"`
	Title     string           `json:"title"`
	Position  ScreenPoint      `json:"position"`
}

// Project returns the screen position of pos under view o, or false when
// pos is behind the viewer.
func Project(pos tour.AngularPosition, o orientation.State) (ScreenPoint, bool) {
	if !finite(pos.Pitch) || !finite(pos.Yaw) || !finite(o.Pitch) || !finite(o.Yaw) || !finite(o.Zoom) {
		return ScreenPoint{}, false
	}

	yawOffset := NormalizeOffset(pos.Yaw - o.Yaw)
	if math.Abs(yawOffset) > CullThreshold {
		return ScreenPoint{}, false
	}
	pitchOffset := pos.Pitch - o.Pitch

	scale := 50 * o.Zoom / degreesPerHalfScreen
	return ScreenPoint{
		X: 50 + yawOffset*scale,
		Y: 50 - pitchOffset*scale,
	}, true
}

// ProjectAll projects every visible hotspot, keeping input order.
func ProjectAll(hotspots []tour.Hotspot, o orientation.State) []Anchor {
	anchors := make([]Anchor, 0, len(hotspots))
	for _, h := range hotspots {
		p, ok := Project(h.Position, o)
		if !ok {
			continue
		}
		anchors = append(anchors, Anchor{
			HotspotID: h.ID,
			Kind:      h.Kind,
			Title:     h.Title,
			Position:  p,
		})
	}
	return anchors
}

// NormalizeOffset reduces an angle difference to (-180, 180].
func NormalizeOffset(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
