package tour

import "time"

// Tour is an ordered set of panoramic scenes for one property, plus an
// optional neighbourhood layout for the 3D world view.
type Tour struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	PropertyID   *string  `json:"property_id,omitempty"`
	FloorAreaSqm *float64 `json:"floor_area_sqm,omitempty"`

	// Scenes in presentation order. The first scene is shown when a session opens.
	Scenes []Scene `json:"scenes"`

	Neighborhood *WorldLayout `json:"neighborhood,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scene is a single panorama. Scenes are read-only once a tour is loaded;
// staged images are tracked outside the scene.
type Scene struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	ImageURL     string       `json:"image_url"`
	ThumbnailURL *string      `json:"thumbnail_url,omitempty"`
	RoomCategory RoomCategory `json:"room_category,omitempty"`
	Hotspots     []Hotspot    `json:"hotspots"`

	// ImageWidth and ImageHeight give the nominal frame used for on-image
	// measurement. Zero means DefaultFrameSize.
	ImageWidth  int `json:"image_width,omitempty"`
	ImageHeight int `json:"image_height,omitempty"`
}

// DefaultFrameSize is the nominal panorama frame, in pixels, used when a
// scene does not declare its dimensions.
const DefaultFrameSize = 1000

// FrameSize returns the nominal measurement frame of the scene.
func (s *Scene) FrameSize() (width, height float64) {
	width, height = DefaultFrameSize, DefaultFrameSize
	if s.ImageWidth > 0 {
		width = float64(s.ImageWidth)
	}
	if s.ImageHeight > 0 {
		height = float64(s.ImageHeight)
	}
	return width, height
}

// Hotspot returns the hotspot with the given id.
func (s *Scene) Hotspot(id string) (Hotspot, bool) {
	for _, h := range s.Hotspots {
		if h.ID == id {
			return h, true
		}
	}
	return Hotspot{}, false
}

// AngularPosition locates a hotspot on the panorama sphere, in degrees.
// Pitch is in [-90, 90]; yaw may be any value and wraps.
type AngularPosition struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Hotspot is an interactive anchor on a scene.
type Hotspot struct {
	ID       string          `json:"id"`
	Kind     HotspotKind     `json:"kind"`
	Position AngularPosition `json:"position"`

	// TargetSceneID is required for navigation hotspots.
	TargetSceneID *string `json:"target_scene_id,omitempty"`

	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// HotspotKind determines what activating a hotspot does.
type HotspotKind string

const (
	KindNavigation  HotspotKind = "navigation"
	KindInfo        HotspotKind = "info"
	KindFurniture   HotspotKind = "furniture"
	KindMeasurement HotspotKind = "measurement"
)

// AllHotspotKinds returns every valid hotspot kind.
func AllHotspotKinds() []HotspotKind {
	return []HotspotKind{KindNavigation, KindInfo, KindFurniture, KindMeasurement}
}

// RoomCategory classifies a scene for thumbnails and staging defaults.
type RoomCategory string

const (
	RoomLiving   RoomCategory = "living"
	RoomKitchen  RoomCategory = "kitchen"
	RoomBedroom  RoomCategory = "bedroom"
	RoomBathroom RoomCategory = "bathroom"
	RoomDining   RoomCategory = "dining"
	RoomOffice   RoomCategory = "office"
	RoomHallway  RoomCategory = "hallway"
	RoomExterior RoomCategory = "exterior"
	RoomGarage   RoomCategory = "garage"
	RoomOther    RoomCategory = "other"
)

// AllRoomCategories returns every valid room category.
func AllRoomCategories() []RoomCategory {
	return []RoomCategory{
		RoomLiving, RoomKitchen, RoomBedroom, RoomBathroom, RoomDining,
		RoomOffice, RoomHallway, RoomExterior, RoomGarage, RoomOther,
	}
}

// WorldLayout is the static neighbourhood scene: the property anchor plus
// points of interest at fixed offsets. Units are metres, Y up.
type WorldLayout struct {
	Anchor      Point3   `json:"anchor"`
	AnchorLabel string   `json:"anchor_label,omitempty"`
	Markers     []Marker `json:"markers"`
}

// Point3 is a world-space position.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Marker is a labelled point of interest in the world layout.
type Marker struct {
	ID       string         `json:"id"`
	Category MarkerCategory `json:"category"`
	Label    string         `json:"label"`

	// DistanceLabel is shown as-is when set, e.g. "5 min walk".
	// Otherwise it is derived from the distance to the anchor.
	DistanceLabel string `json:"distance_label,omitempty"`

	Position Point3 `json:"position"`
}

// MarkerCategory groups markers for filtering.
type MarkerCategory string

const (
	MarkerSchool     MarkerCategory = "school"
	MarkerTransit    MarkerCategory = "transit"
	MarkerShopping   MarkerCategory = "shopping"
	MarkerPark       MarkerCategory = "park"
	MarkerDining     MarkerCategory = "dining"
	MarkerHealthcare MarkerCategory = "healthcare"
	MarkerOther      MarkerCategory = "other"
)

// AllMarkerCategories returns every valid marker category.
func AllMarkerCategories() []MarkerCategory {
	return []MarkerCategory{
		MarkerSchool, MarkerTransit, MarkerShopping, MarkerPark,
		MarkerDining, MarkerHealthcare, MarkerOther,
	}
}

// SceneIndex returns the position of the scene with the given id, or -1.
func (t *Tour) SceneIndex(id string) int {
	for i := range t.Scenes {
		if t.Scenes[i].ID == id {
			return i
		}
	}
	return -1
}

// DeepCopy returns an independent copy of the tour. The registry hands out
// copies so callers cannot corrupt its cache.
func (t *Tour) DeepCopy() *Tour {
	if t == nil {
		return nil
	}

	cpy := *t
	cpy.PropertyID = cloneStringPtr(t.PropertyID)
	if t.FloorAreaSqm != nil {
		v := *t.FloorAreaSqm
		cpy.FloorAreaSqm = &v
	}

	if t.Scenes != nil {
		cpy.Scenes = make([]Scene, len(t.Scenes))
		for i := range t.Scenes {
			cpy.Scenes[i] = t.Scenes[i].deepCopy()
		}
	}

	if t.Neighborhood != nil {
		n := *t.Neighborhood
		if t.Neighborhood.Markers != nil {
			n.Markers = append([]Marker(nil), t.Neighborhood.Markers...)
		}
		cpy.Neighborhood = &n
	}

	return &cpy
}

func (s Scene) deepCopy() Scene {
	cpy := s
	cpy.ThumbnailURL = cloneStringPtr(s.ThumbnailURL)
	if s.Hotspots != nil {
		cpy.Hotspots = make([]Hotspot, len(s.Hotspots))
		for i, h := range s.Hotspots {
			h.TargetSceneID = cloneStringPtr(h.TargetSceneID)
			h.Description = cloneStringPtr(h.Description)
			cpy.Hotspots[i] = h
		}
	}
	return cpy
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
