package world

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"

	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// ErrMarkerNotFound is returned when a marker id is unknown.
var ErrMarkerNotFound = errors.New("world: marker not found")

// DefaultPickRadius is the hit radius of a marker, in metres.
const DefaultPickRadius = 6.0

// MarkerView is a marker as the viewer draws it.
type MarkerView struct {
	tour.Marker
	DistanceMeters float64 `json:"distance_meters"`
	Hovered        bool    `json:"hovered"`
	Selected       bool    `json:"selected"`
}

// Scene is the static neighbourhood: a property anchor and labelled markers
// around it. Nothing moves; interaction is hover and select.
//
// Scene is not safe for concurrent use.
type Scene struct {
	anchor      r3.Vector
	anchorLabel string
	markers     []tour.Marker
	radius      float64

	hovered  string
	selected string
}

// New builds a scene from a tour's layout. A nil layout gives an empty
// scene anchored at the origin.
func New(layout *tour.WorldLayout) *Scene {
	s := &Scene{radius: DefaultPickRadius}
	if layout == nil {
		return s
	}
	s.anchor = toVector(layout.Anchor)
	s.anchorLabel = layout.AnchorLabel
	s.markers = append([]tour.Marker(nil), layout.Markers...)
	return s
}

// SetPickRadius sets the marker hit radius used by Pick.
func (s *Scene) SetPickRadius(r float64) {
	if r > 0 && !math.IsInf(r, 0) {
		s.radius = r
	}
}

// Anchor returns the property position and label.
func (s *Scene) Anchor() (tour.Point3, string) {
	return fromVector(s.anchor), s.anchorLabel
}

// Len returns the number of markers.
func (s *Scene) Len() int {
	return len(s.markers)
}

// Markers returns markers in layout order. With categories given, only
// markers in those categories are returned.
func (s *Scene) Markers(categories ...tour.MarkerCategory) []MarkerView {
	out := make([]MarkerView, 0, len(s.markers))
	for _, m := range s.markers {
		if len(categories) > 0 && !slices.Contains(categories, m.Category) {
			continue
		}
		out = append(out, s.view(m))
	}
	return out
}

// Categories returns the categories present, in canonical order.
func (s *Scene) Categories() []tour.MarkerCategory {
	var out []tour.MarkerCategory
	for _, c := range tour.AllMarkerCategories() {
		for _, m := range s.markers {
			if m.Category == c {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Hover highlights a marker.
func (s *Scene) Hover(id string) error {
	if _, ok := s.find(id); !ok {
		return fmt.Errorf("%w: %q", ErrMarkerNotFound, id)
	}
	s.hovered = id
	return nil
}

// ClearHover removes the highlight.
func (s *Scene) ClearHover() {
	s.hovered = ""
}

// Hovered returns the highlighted marker id.
func (s *Scene) Hovered() (string, bool) {
	return s.hovered, s.hovered != ""
}

// Select marks a marker as selected and returns it for the detail panel.
func (s *Scene) Select(id string) (MarkerView, error) {
	m, ok := s.find(id)
	if !ok {
		return MarkerView{}, fmt.Errorf("%w: %q", ErrMarkerNotFound, id)
	}
	s.selected = id
	return s.view(m), nil
}

// Deselect clears the selection.
func (s *Scene) Deselect() {
	s.selected = ""
}

// Selected returns the selected marker id.
func (s *Scene) Selected() (string, bool) {
	return s.selected, s.selected != ""
}

// Pick casts a ray from origin along dir and returns the nearest marker it
// passes through. Markers are spheres of the pick radius.
func (s *Scene) Pick(origin, dir r3.Vector) (MarkerView, bool) {
	if dir.Norm2() == 0 || !finiteVector(origin) || !finiteVector(dir) {
		return MarkerView{}, false
	}
	dir = dir.Normalize()

	best := math.Inf(1)
	var hit tour.Marker
	found := false
	for _, m := range s.markers {
		t, ok := raySphere(origin, dir, toVector(m.Position), s.radius)
		if ok && t < best {
			best, hit, found = t, m, true
		}
	}
	if !found {
		return MarkerView{}, false
	}
	return s.view(hit), true
}

// DistanceLabel returns the marker's own label, or one derived from its
// straight-line distance to the anchor.
func (s *Scene) DistanceLabel(m tour.Marker) string {
	if m.DistanceLabel != "" {
		return m.DistanceLabel
	}
	return FormatDistance(s.anchor.Distance(toVector(m.Position)))
}

// FormatDistance renders metres as "350 m" or "1.2 km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func (s *Scene) view(m tour.Marker) MarkerView {
	v := MarkerView{
		Marker:         m,
		DistanceMeters: s.anchor.Distance(toVector(m.Position)),
		Hovered:        m.ID == s.hovered,
		Selected:       m.ID == s.selected,
	}
	v.DistanceLabel = s.DistanceLabel(m)
	return v
}

func (s *Scene) find(id string) (tour.Marker, bool) {
	for _, m := range s.markers {
		if m.ID == id {
			return m, true
		}
	}
	return tour.Marker{}, false
}

// raySphere returns the distance along a unit ray to the first point inside
// the sphere. A ray starting inside the sphere hits at 0.
func raySphere(origin, dir, center r3.Vector, radius float64) (float64, bool) {
	oc := center.Sub(origin)
	along := oc.Dot(dir)
	perp2 := oc.Norm2() - along*along
	r2 := radius * radius
	if perp2 > r2 {
		return 0, false
	}
	half := math.Sqrt(r2 - perp2)
	enter, exit := along-half, along+half
	if exit < 0 {
		return 0, false
	}
	if enter < 0 {
		return 0, true
	}
	return enter, true
}

func toVector(p tour.Point3) r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

func fromVector(v r3.Vector) tour.Point3 {
	return tour.Point3{X: v.X, Y: v.Y, Z: v.Z}
}

func finiteVector(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
