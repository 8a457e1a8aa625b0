package tour

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength     = 100
	maxSlugLength     = 50
	maxScenes         = 200
	maxHotspots       = 100
	maxMarkers        = 200
	maxTitleLength    = 120
	maxDescriptionLen = 1000
	maxFrameSize      = 100000
	minHotspotPitch   = -90
	maxHotspotPitch   = 90
	slugPattern       = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

var (
	validKinds            = toSet(AllHotspotKinds())
	validRoomCategories   = toSet(AllRoomCategories())
	validMarkerCategories = toSet(AllMarkerCategories())
)

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// DanglingTarget is a navigation hotspot whose target scene does not exist.
type DanglingTarget struct {
	SceneID       string `json:"scene_id"`
	HotspotID     string `json:"hotspot_id"`
	TargetSceneID string `json:"target_scene_id"`
}

// ValidateTour checks the structure of a tour and returns the first problem
// found. Navigation targets that name an unknown scene are not rejected here;
// see UnresolvedTargets.
func ValidateTour(t *Tour) error {
	if t == nil {
		return ErrInvalidTour
	}
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if t.Slug != "" {
		if err := ValidateSlug(t.Slug); err != nil {
			return err
		}
	}
	if t.FloorAreaSqm != nil && (!isFinite(*t.FloorAreaSqm) || *t.FloorAreaSqm <= 0) {
		return fmt.Errorf("%w: floor_area_sqm must be positive", ErrInvalidTour)
	}

	if len(t.Scenes) == 0 {
		return ErrNoScenes
	}
	if len(t.Scenes) > maxScenes {
		return fmt.Errorf("%w: exceeds maximum of %d scenes", ErrInvalidTour, maxScenes)
	}

	seen := make(map[string]struct{}, len(t.Scenes))
	for i := range t.Scenes {
		s := &t.Scenes[i]
		if err := ValidateScene(s); err != nil {
			return fmt.Errorf("scene[%d]: %w", i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("scene[%d]: %w: duplicate id %q", i, ErrInvalidScene, s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	if t.Neighborhood != nil {
		if err := ValidateWorldLayout(t.Neighborhood); err != nil {
			return err
		}
	}
	return nil
}

// ValidateScene checks a single scene and its hotspots.
func ValidateScene(s *Scene) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidScene)
	}
	if len(s.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidScene, maxTitleLength)
	}
	if strings.TrimSpace(s.ImageURL) == "" {
		return fmt.Errorf("%w: image_url is required", ErrInvalidScene)
	}
	if s.RoomCategory != "" {
		if _, ok := validRoomCategories[s.RoomCategory]; !ok {
			return fmt.Errorf("%w: invalid room category %q", ErrInvalidScene, s.RoomCategory)
		}
	}
	if s.ImageWidth < 0 || s.ImageWidth > maxFrameSize || s.ImageHeight < 0 || s.ImageHeight > maxFrameSize {
		return fmt.Errorf("%w: image dimensions must be 0-%d", ErrInvalidScene, maxFrameSize)
	}
	if len(s.Hotspots) > maxHotspots {
		return fmt.Errorf("%w: exceeds maximum of %d hotspots", ErrInvalidScene, maxHotspots)
	}

	seen := make(map[string]struct{}, len(s.Hotspots))
	for i, h := range s.Hotspots {
		if err := ValidateHotspot(h); err != nil {
			return fmt.Errorf("hotspot[%d]: %w", i, err)
		}
		if _, dup := seen[h.ID]; dup {
			return fmt.Errorf("hotspot[%d]: %w: duplicate id %q", i, ErrInvalidHotspot, h.ID)
		}
		seen[h.ID] = struct{}{}
	}
	return nil
}

// ValidateHotspot checks a hotspot in isolation.
func ValidateHotspot(h Hotspot) error {
	if strings.TrimSpace(h.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidHotspot)
	}
	if _, ok := validKinds[h.Kind]; !ok {
		return fmt.Errorf("%w: invalid kind %q", ErrInvalidHotspot, h.Kind)
	}
	if !isFinite(h.Position.Pitch) || h.Position.Pitch < minHotspotPitch || h.Position.Pitch > maxHotspotPitch {
		return fmt.Errorf("%w: pitch must be %d to %d", ErrInvalidHotspot, minHotspotPitch, maxHotspotPitch)
	}
	if !isFinite(h.Position.Yaw) {
		return fmt.Errorf("%w: yaw must be finite", ErrInvalidHotspot)
	}
	if h.Kind == KindNavigation && (h.TargetSceneID == nil || *h.TargetSceneID == "") {
		return fmt.Errorf("%w: navigation hotspot requires target_scene_id", ErrInvalidHotspot)
	}
	if len(h.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidHotspot, maxTitleLength)
	}
	if h.Description != nil && len(*h.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidHotspot, maxDescriptionLen)
	}
	return nil
}

// ValidateWorldLayout checks the neighbourhood markers.
func ValidateWorldLayout(w *WorldLayout) error {
	if !finitePoint(w.Anchor) {
		return fmt.Errorf("%w: anchor position must be finite", ErrInvalidMarker)
	}
	if len(w.Markers) > maxMarkers {
		return fmt.Errorf("%w: exceeds maximum of %d markers", ErrInvalidMarker, maxMarkers)
	}

	seen := make(map[string]struct{}, len(w.Markers))
	for i, m := range w.Markers {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("marker[%d]: %w: id is required", i, ErrInvalidMarker)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("marker[%d]: %w: duplicate id %q", i, ErrInvalidMarker, m.ID)
		}
		seen[m.ID] = struct{}{}
		if _, ok := validMarkerCategories[m.Category]; !ok {
			return fmt.Errorf("marker[%d]: %w: invalid category %q", i, ErrInvalidMarker, m.Category)
		}
		if !finitePoint(m.Position) {
			return fmt.Errorf("marker[%d]: %w: position must be finite", i, ErrInvalidMarker)
		}
	}
	return nil
}

// UnresolvedTargets lists navigation hotspots pointing at scenes that are not
// part of the tour. These are configuration errors: the tour still loads and
// activating such a hotspot does nothing.
func UnresolvedTargets(t *Tour) []DanglingTarget {
	known := make(map[string]struct{}, len(t.Scenes))
	for _, s := range t.Scenes {
		known[s.ID] = struct{}{}
	}

	var dangling []DanglingTarget
	for _, s := range t.Scenes {
		for _, h := range s.Hotspots {
			if h.Kind != KindNavigation || h.TargetSceneID == nil {
				continue
			}
			if _, ok := known[*h.TargetSceneID]; !ok {
				dangling = append(dangling, DanglingTarget{
					SceneID:       s.ID,
					HotspotID:     h.ID,
					TargetSceneID: *h.TargetSceneID,
				})
			}
		}
	}
	return dangling
}

// ValidateName checks a tour name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks a slug format.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// GenerateSlug derives a URL-safe slug from a tour name.
func GenerateSlug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateID returns a new random identifier.
func GenerateID() string {
	return uuid.New().String()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePoint(p Point3) bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}
