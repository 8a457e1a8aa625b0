package session

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-tour/internal/navigation"
	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/projection"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// Errors returned by sessions and the manager.
var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionClosed   = errors.New("session: closed")
	ErrTooManySessions = errors.New("session: too many active sessions")
	ErrSceneNotFound   = errors.New("session: scene not found")
	ErrInvalidDisplay  = errors.New("session: invalid display mode")
)

// Logger is the logging interface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broadcaster pushes events to connected viewers. The API's WebSocket hub
// satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// EventPublisher puts session events on the message bus.
type EventPublisher interface {
	PublishSessionEvent(tourID, sessionID, event string, payload any) error
}

// Metrics records viewing analytics.
type Metrics interface {
	WriteSceneView(tourID, sceneID, roomCategory string, dwell time.Duration)
	WriteMeasurement(tourID, sceneID string, meters, pixelsPerMeter float64)
	WriteStagingOutcome(tourID, sceneID, style string, ok bool, took time.Duration)
	WriteActiveSessions(siteID string, count int)
}

// TourSource loads tours by id. The tour registry satisfies it.
type TourSource interface {
	GetTour(ctx context.Context, id string) (*tour.Tour, error)
}

// Preloader checks panorama images in the background.
type Preloader interface {
	Preload(ctx context.Context, rawURL string, done func(error))
}

// Event names.
const (
	EventSessionOpened      = "session.opened"
	EventSessionClosed      = "session.closed"
	EventViewUpdated        = "view.updated"
	EventSceneChanged       = "scene.changed"
	EventHotspotActivated   = "hotspot.activated"
	EventMeasurementCreated = "measurement.created"
	EventMeasurementDeleted = "measurement.deleted"
	EventMeasurementCleared = "measurement.cleared"
	EventCalibrationUpdated = "calibration.updated"
	EventStagingRequested   = "staging.requested"
	EventStagingCompleted   = "staging.completed"
	EventStagingFailed      = "staging.failed"
	EventAssetReady         = "asset.ready"
	EventAssetFailed        = "asset.failed"
	EventDisplayChanged     = "display.changed"
	EventMarkerSelected     = "marker.selected"
)

// Channel returns the WebSocket channel carrying a session's events.
func Channel(sessionID string) string {
	return "session." + sessionID
}

// Envelope is the WebSocket payload for session events.
type Envelope struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data,omitempty"`
}

// DisplayMode is how the viewer is presented.
type DisplayMode string

const (
	DisplayWindowed   DisplayMode = "windowed"
	DisplayFullscreen DisplayMode = "fullscreen"
	DisplayImmersive  DisplayMode = "immersive"
)

// Capabilities are what the viewer's device reports it can do.
type Capabilities struct {
	Fullscreen bool `json:"fullscreen"`
	Immersive  bool `json:"immersive"`
}

// DisplayResult reports the outcome of a display request.
type DisplayResult struct {
	Requested DisplayMode `json:"requested"`
	Mode      DisplayMode `json:"mode"`
	Degraded  bool        `json:"degraded"`
}

// AssetState tracks whether a scene's panorama is usable.
type AssetState string

const (
	AssetLoading AssetState = "loading"
	AssetReady   AssetState = "ready"
	AssetFailed  AssetState = "failed"
)

// AssetStatus is the load state of one scene's image.
type AssetStatus struct {
	SceneID  string     `json:"scene_id"`
	State    AssetState `json:"state"`
	Error    string     `json:"error,omitempty"`
	Attempts int        `json:"attempts"`
}

// ViewOrientation is the orientation as rendered: yaw wrapped to [0, 360).
type ViewOrientation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Zoom  float64 `json:"zoom"`
}

// View is everything the viewer needs to draw the current frame.
type View struct {
	SessionID   string              `json:"session_id"`
	TourID      string              `json:"tour_id"`
	SceneID     string              `json:"scene_id"`
	SceneTitle  string              `json:"scene_title"`
	SceneIndex  int                 `json:"scene_index"`
	SceneCount  int                 `json:"scene_count"`
	Image       string              `json:"image"`
	Orientation ViewOrientation     `json:"orientation"`
	Anchors     []projection.Anchor `json:"anchors"`
	AutoRotate  bool                `json:"auto_rotate"`
	Display     DisplayMode         `json:"display"`
	Asset       AssetStatus         `json:"asset"`
	Staging     staging.SceneStatus `json:"staging"`
}

// HotspotResult is returned by ActivateHotspot.
type HotspotResult struct {
	Activation navigation.Activation `json:"activation"`
	View       View                  `json:"view"`
}

// StagingTicket acknowledges an accepted staging request.
type StagingTicket struct {
	SceneID string          `json:"scene_id"`
	Options staging.Options `json:"options"`
}

// Config tunes sessions.
type Config struct {
	Orientation orientation.Config

	// PixelsPerMeter is the scale assumed before calibration.
	PixelsPerMeter float64

	// TTL is how long a session may sit idle before it is closed.
	TTL time.Duration

	// TickInterval is the auto-rotate and view broadcast period.
	TickInterval time.Duration

	// MaxSessions caps concurrent sessions. Zero means no limit.
	MaxSessions int

	// SiteID tags the active-sessions metric.
	SiteID string
}

// DefaultConfig returns the stock session tuning.
func DefaultConfig() Config {
	return Config{
		Orientation:    orientation.DefaultConfig(),
		PixelsPerMeter: 100,
		TTL:            time.Hour,
		TickInterval:   50 * time.Millisecond,
		MaxSessions:    100,
	}
}
