package navigation

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// Errors returned by the navigator.
var (
	ErrNoScenes         = errors.New("navigation: no scenes")
	ErrDuplicateScene   = errors.New("navigation: duplicate scene id")
	ErrUnknownScene     = errors.New("navigation: unknown scene")
	ErrHotspotNotFound  = errors.New("navigation: hotspot not found on current scene")
	ErrUnresolvedTarget = errors.New("navigation: hotspot target does not resolve")
)

// Logger is the logging interface used by the navigator.
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

// Outcome describes what activating a hotspot did.
type Outcome string

const (
	// OutcomeNavigated means the current scene changed.
	OutcomeNavigated Outcome = "navigated"
	// OutcomeDetail means the hotspot opens a detail surface; the scene is unchanged.
	OutcomeDetail Outcome = "detail"
	// OutcomeIgnored means the hotspot could not act, e.g. an unresolved target.
	OutcomeIgnored Outcome = "ignored"
)

// Activation is the result of ActivateHotspot.
type Activation struct {
	Outcome Outcome `json:"outcome"`

	// SceneID is the current scene after activation.
	SceneID string `json:"scene_id"`

	// Detail is set for OutcomeDetail.
	Detail *tour.Hotspot `json:"detail,omitempty"`
}

// Navigator holds the ordered scene list and the current position in it.
// The current index is always valid.
//
// Navigator is not safe for concurrent use.
type Navigator struct {
	scenes  []tour.Scene
	index   map[string]int
	current int
	logger  Logger
}

// New creates a Navigator positioned on the first scene. Scenes must be
// non-empty with unique ids.
func New(scenes []tour.Scene, logger Logger) (*Navigator, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	if logger == nil {
		logger = noopLogger{}
	}

	index := make(map[string]int, len(scenes))
	for i, s := range scenes {
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateScene, s.ID)
		}
		index[s.ID] = i
	}

	return &Navigator{
		scenes: scenes,
		index:  index,
		logger: logger,
	}, nil
}

// Len returns the number of scenes.
func (n *Navigator) Len() int {
	return len(n.scenes)
}

// Index returns the current scene position.
func (n *Navigator) Index() int {
	return n.current
}

// Current returns the current scene.
func (n *Navigator) Current() *tour.Scene {
	return &n.scenes[n.current]
}

// Scenes returns the scene list in order. Callers must not modify it.
func (n *Navigator) Scenes() []tour.Scene {
	return n.scenes
}

// Scene returns the scene with the given id.
func (n *Navigator) Scene(id string) (*tour.Scene, bool) {
	i, ok := n.index[id]
	if !ok {
		return nil, false
	}
	return &n.scenes[i], true
}

// IndexOf returns the position of the scene with the given id, or -1.
func (n *Navigator) IndexOf(id string) int {
	if i, ok := n.index[id]; ok {
		return i
	}
	return -1
}

// Next moves forward one scene, wrapping to the first.
func (n *Navigator) Next() *tour.Scene {
	n.current = (n.current + 1) % len(n.scenes)
	return n.Current()
}

// Previous moves back one scene, wrapping to the last.
func (n *Navigator) Previous() *tour.Scene {
	n.current = (n.current - 1 + len(n.scenes)) % len(n.scenes)
	return n.Current()
}

// JumpTo makes the scene with the given id current. On error the current
// scene is unchanged.
func (n *Navigator) JumpTo(id string) error {
	i, ok := n.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}
	n.current = i
	return nil
}

// ActivateHotspot acts on h. Navigation hotspots jump to their target;
// an unresolved target is logged and ignored. Other kinds return the
// hotspot as detail for the caller to present.
func (n *Navigator) ActivateHotspot(h tour.Hotspot) Activation {
	if h.Kind != tour.KindNavigation {
		detail := h
		return Activation{Outcome: OutcomeDetail, SceneID: n.Current().ID, Detail: &detail}
	}

	if h.TargetSceneID == nil {
		n.logger.Warn("navigation hotspot has no target",
			"scene_id", n.Current().ID,
			"hotspot_id", h.ID,
		)
		return Activation{Outcome: OutcomeIgnored, SceneID: n.Current().ID}
	}

	if err := n.JumpTo(*h.TargetSceneID); err != nil {
		n.logger.Warn("navigation hotspot target does not resolve",
			"scene_id", n.Current().ID,
			"hotspot_id", h.ID,
			"target_scene_id", *h.TargetSceneID,
		)
		return Activation{Outcome: OutcomeIgnored, SceneID: n.Current().ID}
	}

	n.logger.Debug("hotspot navigation",
		"hotspot_id", h.ID,
		"scene_id", n.Current().ID,
	)
	return Activation{Outcome: OutcomeNavigated, SceneID: n.Current().ID}
}

// ActivateHotspotByID looks the hotspot up on the current scene and
// activates it.
func (n *Navigator) ActivateHotspotByID(id string) (Activation, error) {
	h, ok := n.Current().Hotspot(id)
	if !ok {
		return Activation{}, fmt.Errorf("%w: %q", ErrHotspotNotFound, id)
	}
	return n.ActivateHotspot(h), nil
}
