package staging

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// Errors returned by the staging manager.
var (
	// ErrGenerationFailed wraps every failure of the external generator.
	// The original image stays in place and the caller may try again.
	ErrGenerationFailed = errors.New("staging: generation failed")

	ErrInvalidStyle    = errors.New("staging: invalid style")
	ErrInvalidRoomType = errors.New("staging: invalid room type")
	ErrNoSourceImage   = errors.New("staging: scene has no image")
	ErrRequestNotFound = errors.New("staging: request not found")

	// ErrDisabled is returned when no generator is configured.
	ErrDisabled = errors.New("staging: no generator configured")
)

// Style is the furnishing style asked of the generator.
type Style string

const (
	StyleModern       Style = "modern"
	StyleScandinavian Style = "scandinavian"
	StyleIndustrial   Style = "industrial"
	StyleTraditional  Style = "traditional"
	StyleMinimalist   Style = "minimalist"
	StyleCoastal      Style = "coastal"
	StyleBohemian     Style = "bohemian"
	StyleLuxury       Style = "luxury"
)

// AllStyles returns every accepted style.
func AllStyles() []Style {
	return []Style{
		StyleModern, StyleScandinavian, StyleIndustrial, StyleTraditional,
		StyleMinimalist, StyleCoastal, StyleBohemian, StyleLuxury,
	}
}

// RoomType tells the generator what furniture belongs in the room.
type RoomType string

const (
	RoomLiving   RoomType = "living_room"
	RoomBedroom  RoomType = "bedroom"
	RoomKitchen  RoomType = "kitchen"
	RoomDining   RoomType = "dining_room"
	RoomOffice   RoomType = "office"
	RoomBathroom RoomType = "bathroom"
)

// AllRoomTypes returns every accepted room type.
func AllRoomTypes() []RoomType {
	return []RoomType{RoomLiving, RoomBedroom, RoomKitchen, RoomDining, RoomOffice, RoomBathroom}
}

// RoomTypeFor suggests a room type for a scene category. Categories with
// no furnished equivalent fall back to living room.
func RoomTypeFor(c tour.RoomCategory) RoomType {
	switch c {
	case tour.RoomBedroom:
		return RoomBedroom
	case tour.RoomKitchen:
		return RoomKitchen
	case tour.RoomDining:
		return RoomDining
	case tour.RoomOffice:
		return RoomOffice
	case tour.RoomBathroom:
		return RoomBathroom
	default:
		return RoomLiving
	}
}

// Options selects what to generate.
type Options struct {
	Style          Style    `json:"style"`
	RoomType       RoomType `json:"room_type"`
	RemoveExisting bool     `json:"remove_existing"`
}

// Validate checks style and room type against the known sets.
func (o Options) Validate() error {
	if _, ok := validStyles[o.Style]; !ok {
		return ErrInvalidStyle
	}
	if _, ok := validRoomTypes[o.RoomType]; !ok {
		return ErrInvalidRoomType
	}
	return nil
}

var (
	validStyles    = toSet(AllStyles())
	validRoomTypes = toSet(AllRoomTypes())
)

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Variant is the staged replacement image for a scene.
type Variant struct {
	SceneID        string    `json:"scene_id"`
	StagedImageURL string    `json:"staged_image_url"`
	Style          Style     `json:"style"`
	RoomType       RoomType  `json:"room_type"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// State summarises staging activity for a scene.
type State string

const (
	StateNone    State = "none"
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// SceneStatus is what the viewer needs to draw the staging controls.
type SceneStatus struct {
	SceneID      string   `json:"scene_id"`
	State        State    `json:"state"`
	InFlight     int      `json:"in_flight"`
	Variant      *Variant `json:"variant,omitempty"`
	ShowOriginal bool     `json:"show_original"`
	LastError    string   `json:"last_error,omitempty"`
}

// RequestStatus is the lifecycle of a persisted staging request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestSucceeded RequestStatus = "succeeded"
	RequestFailed    RequestStatus = "failed"
)

// Request is the history record of one generation call.
type Request struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	TourID         string        `json:"tour_id"`
	SceneID        string        `json:"scene_id"`
	Style          Style         `json:"style"`
	RoomType       RoomType      `json:"room_type"`
	RemoveExisting bool          `json:"remove_existing"`
	Status         RequestStatus `json:"status"`
	StagedImageURL *string       `json:"staged_image_url,omitempty"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
	RequestedAt    time.Time     `json:"requested_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	DurationMS     *int          `json:"duration_ms,omitempty"`
}
