package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/tanema/gween/ease"

	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/navigation"
	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/projection"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
	"github.com/nerrad567/gray-logic-tour/internal/world"
)

// ErrNoWorld is returned by world operations on tours without a
// neighbourhood layout.
var ErrNoWorld = errors.New("session: tour has no neighbourhood layout")

// event is a side effect collected while the session lock is held and run
// after it is released.
type event struct {
	name string
	data any

	// bus also publishes the event to MQTT.
	bus bool

	// run is called after the lock is released.
	run func()
}

// deps are the collaborators a Manager hands to each session.
type deps struct {
	cfg       Config
	logger    Logger
	hub       Broadcaster
	events    EventPublisher
	metrics   Metrics
	preloader Preloader
	archive   measurement.Archive
	generator staging.Generator
	history   staging.Repository

	// bg outlives individual requests; cancelled when the manager stops.
	bg  context.Context
	wg  *sync.WaitGroup
	now func() time.Time
}

// Session is one viewer's walk through one tour. It owns the navigator,
// orientation controller, per-scene measurement engines, staging manager,
// world scene, display mode and asset states for that tour.
//
// All operations are serialised by the session mutex, so events apply in
// arrival order. Side effects (broadcasts, bus events, metrics) run after
// the mutex is released.
type Session struct {
	id   string
	tour *tour.Tour
	d    deps

	mu         sync.Mutex
	nav        *navigation.Navigator
	orient     *orientation.Controller
	engines    map[string]*measurement.Engine
	staging    *staging.Manager
	world      *world.Scene
	display    DisplayMode
	assets     map[string]*AssetStatus
	enteredAt  time.Time
	createdAt  time.Time
	lastActive time.Time
	lastState  orientation.State
	closed     bool
}

func newSession(id string, t *tour.Tour, d deps) (*Session, error) {
	nav, err := navigation.New(t.Scenes, d.logger)
	if err != nil {
		return nil, fmt.Errorf("building navigator: %w", err)
	}

	sm := staging.NewManager(d.generator, staging.Owner{SessionID: id, TourID: t.ID})
	sm.SetLogger(d.logger)
	if d.history != nil {
		sm.SetRepository(d.history)
	}

	now := d.now()
	s := &Session{
		id:         id,
		tour:       t,
		d:          d,
		nav:        nav,
		orient:     orientation.New(d.cfg.Orientation),
		engines:    make(map[string]*measurement.Engine),
		staging:    sm,
		display:    DisplayWindowed,
		assets:     make(map[string]*AssetStatus),
		enteredAt:  now,
		createdAt:  now,
		lastActive: now,
	}
	if t.Neighborhood != nil {
		s.world = world.New(t.Neighborhood)
	}
	s.lastState = s.orient.State()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// TourID returns the id of the tour being viewed.
func (s *Session) TourID() string {
	return s.tour.ID
}

// start loads the first scene. Called once by the manager.
func (s *Session) start() View {
	s.mu.Lock()
	evs := s.loadAssetLocked(s.nav.Current())
	evs = append(evs, event{
		name: EventSessionOpened,
		data: map[string]any{"tour_id": s.tour.ID, "scene_id": s.nav.Current().ID},
		bus:  true,
	})
	v := s.viewLocked()
	s.mu.Unlock()

	s.emit(evs)
	return v
}

// close marks the session closed and records the final scene's dwell time.
// It reports false if the session was already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	evs := []event{s.dwellLocked(s.nav.Current())}
	evs = append(evs, event{name: EventSessionClosed, bus: true})
	s.mu.Unlock()

	s.emit(evs)
	return true
}

// idleSince reports when the session was last used.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// View returns the current view.
func (s *Session) View() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrSessionClosed
	}
	return s.viewLocked(), nil
}

// update runs fn under the lock, then emits its events and broadcasts the
// resulting view.
func (s *Session) update(fn func() ([]event, error)) (View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	s.lastActive = s.d.now()
	evs, err := fn()
	if err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	v := s.viewLocked()
	s.lastState = s.orient.State()
	s.mu.Unlock()

	s.emit(evs)
	s.broadcast(EventViewUpdated, v)
	return v, nil
}

// --- orientation ---

// DragStart begins a drag at p.
func (s *Session) DragStart(p orientation.Point) (View, error) {
	return s.update(func() ([]event, error) {
		s.orient.DragStart(p)
		return nil, nil
	})
}

// DragMove continues a drag. Moves without a DragStart are ignored.
func (s *Session) DragMove(p orientation.Point) (View, error) {
	return s.update(func() ([]event, error) {
		s.orient.DragMove(p)
		return nil, nil
	})
}

// DragEnd finishes a drag.
func (s *Session) DragEnd() (View, error) {
	return s.update(func() ([]event, error) {
		s.orient.DragEnd()
		return nil, nil
	})
}

// Wheel zooms by a wheel delta.
func (s *Session) Wheel(delta float64) (View, error) {
	return s.update(func() ([]event, error) {
		s.orient.Wheel(delta)
		return nil, nil
	})
}

// SetAutoRotate enables or pauses the idle rotation.
func (s *Session) SetAutoRotate(enabled bool) (View, error) {
	return s.update(func() ([]event, error) {
		s.orient.SetAutoRotate(enabled)
		return nil, nil
	})
}

// LookAt animates the camera to pitch and yaw over duration.
func (s *Session) LookAt(pitch, yaw float64, duration time.Duration) (View, error) {
	return s.update(func() ([]event, error) {
		s.orient.LookAt(pitch, yaw, duration, ease.InOutCubic)
		return nil, nil
	})
}

// Tick advances animation by dt. It returns the view and true when the
// orientation changed. Ticks do not count as activity.
func (s *Session) Tick(dt time.Duration) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, false
	}
	st := s.orient.Tick(dt)
	if st == s.lastState {
		return View{}, false
	}
	s.lastState = st
	return s.viewLocked(), true
}

// --- navigation ---

// Next moves to the following scene, wrapping at the end.
func (s *Session) Next() (View, error) {
	return s.update(func() ([]event, error) {
		prev := s.nav.Current()
		return s.sceneChangedLocked(prev, s.nav.Next()), nil
	})
}

// Previous moves to the preceding scene, wrapping at the start.
func (s *Session) Previous() (View, error) {
	return s.update(func() ([]event, error) {
		prev := s.nav.Current()
		return s.sceneChangedLocked(prev, s.nav.Previous()), nil
	})
}

// JumpTo makes the scene with sceneID current.
func (s *Session) JumpTo(sceneID string) (View, error) {
	return s.update(func() ([]event, error) {
		prev := s.nav.Current()
		if err := s.nav.JumpTo(sceneID); err != nil {
			return nil, err
		}
		return s.sceneChangedLocked(prev, s.nav.Current()), nil
	})
}

// ActivateHotspot acts on a hotspot of the current scene. Navigation
// hotspots change scene; info and feature hotspots return their content.
func (s *Session) ActivateHotspot(hotspotID string) (HotspotResult, error) {
	var act navigation.Activation
	v, err := s.update(func() ([]event, error) {
		prev := s.nav.Current()
		a, err := s.nav.ActivateHotspotByID(hotspotID)
		if err != nil {
			return nil, err
		}
		act = a
		evs := []event{{
			name: EventHotspotActivated,
			data: map[string]any{"hotspot_id": hotspotID, "outcome": a.Outcome},
			bus:  true,
		}}
		if a.Outcome == navigation.OutcomeNavigated {
			evs = append(evs, s.sceneChangedLocked(prev, s.nav.Current())...)
		}
		return evs, nil
	})
	if err != nil {
		return HotspotResult{}, err
	}
	return HotspotResult{Activation: act, View: v}, nil
}

// sceneChangedLocked records the move from prev to next. Orientation is
// kept across scenes.
func (s *Session) sceneChangedLocked(prev, next *tour.Scene) []event {
	if prev.ID == next.ID {
		return nil
	}
	evs := []event{s.dwellLocked(prev)}
	s.enteredAt = s.d.now()
	evs = append(evs, event{
		name: EventSceneChanged,
		data: map[string]any{"from": prev.ID, "to": next.ID, "index": s.nav.Index()},
		bus:  true,
	})
	return append(evs, s.loadAssetLocked(next)...)
}

func (s *Session) dwellLocked(sc *tour.Scene) event {
	tourID, sceneID, category := s.tour.ID, sc.ID, string(sc.RoomCategory)
	dwell := s.d.now().Sub(s.enteredAt)
	return event{run: func() {
		if s.d.metrics != nil {
			s.d.metrics.WriteSceneView(tourID, sceneID, category, dwell)
		}
	}}
}

// --- display ---

// RequestFullscreen asks for fullscreen. Without the capability the viewer
// stays windowed; that is not an error.
func (s *Session) RequestFullscreen(caps Capabilities) (DisplayResult, error) {
	return s.requestDisplay(DisplayFullscreen, caps)
}

// RequestImmersive asks for immersive mode, falling back to fullscreen and
// then windowed as capabilities allow.
func (s *Session) RequestImmersive(caps Capabilities) (DisplayResult, error) {
	return s.requestDisplay(DisplayImmersive, caps)
}

// ExitFullscreen returns to windowed mode.
func (s *Session) ExitFullscreen() (DisplayResult, error) {
	return s.requestDisplay(DisplayWindowed, Capabilities{})
}

// RequestDisplay dispatches on mode.
func (s *Session) RequestDisplay(mode DisplayMode, caps Capabilities) (DisplayResult, error) {
	switch mode {
	case DisplayWindowed, DisplayFullscreen, DisplayImmersive:
		return s.requestDisplay(mode, caps)
	default:
		return DisplayResult{}, ErrInvalidDisplay
	}
}

func (s *Session) requestDisplay(mode DisplayMode, caps Capabilities) (DisplayResult, error) {
	res := DisplayResult{Requested: mode}
	_, err := s.update(func() ([]event, error) {
		granted := resolveDisplay(mode, caps)
		res.Mode = granted
		res.Degraded = granted != mode
		if granted == s.display {
			return nil, nil
		}
		s.display = granted
		return []event{{name: EventDisplayChanged, data: res}}, nil
	})
	if err != nil {
		return DisplayResult{}, err
	}
	if res.Degraded {
		s.d.logger.Debug("display capability unavailable",
			"session_id", s.id, "requested", mode, "mode", res.Mode)
	}
	return res, nil
}

func resolveDisplay(mode DisplayMode, caps Capabilities) DisplayMode {
	switch mode {
	case DisplayImmersive:
		if caps.Immersive {
			return DisplayImmersive
		}
		if caps.Fullscreen {
			return DisplayFullscreen
		}
	case DisplayFullscreen:
		if caps.Fullscreen {
			return DisplayFullscreen
		}
	}
	return DisplayWindowed
}

// --- assets ---

// loadAssetLocked starts checking sc's panorama unless it is already known.
func (s *Session) loadAssetLocked(sc *tour.Scene) []event {
	if _, ok := s.assets[sc.ID]; ok {
		return nil
	}
	return s.startAssetLocked(sc)
}

func (s *Session) startAssetLocked(sc *tour.Scene) []event {
	st := &AssetStatus{SceneID: sc.ID, State: AssetLoading}
	if prev, ok := s.assets[sc.ID]; ok {
		st.Attempts = prev.Attempts
	}
	st.Attempts++
	s.assets[sc.ID] = st

	if s.d.preloader == nil {
		st.State = AssetReady
		return nil
	}

	sceneID, url, attempt := sc.ID, sc.ImageURL, st.Attempts
	return []event{{run: func() {
		s.d.preloader.Preload(s.d.bg, url, func(err error) {
			s.assetDone(sceneID, attempt, err)
		})
	}}}
}

func (s *Session) assetDone(sceneID string, attempt int, err error) {
	s.mu.Lock()
	st, ok := s.assets[sceneID]
	if s.closed || !ok || st.Attempts != attempt {
		s.mu.Unlock()
		return
	}
	name := EventAssetReady
	if err != nil {
		st.State = AssetFailed
		st.Error = err.Error()
		name = EventAssetFailed
	} else {
		st.State = AssetReady
		st.Error = ""
	}
	status := *st
	current := s.nav.Current().ID == sceneID
	var v View
	if current {
		v = s.viewLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.d.logger.Warn("scene image unavailable",
			"session_id", s.id, "scene_id", sceneID, "attempt", attempt, "error", err)
	}
	s.emit([]event{{name: name, data: status, bus: err != nil}})
	if current {
		s.broadcast(EventViewUpdated, v)
	}
}

// Asset returns the load state of a scene's image.
func (s *Session) Asset(sceneID string) (AssetStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nav.Scene(sceneID); !ok {
		return AssetStatus{}, ErrSceneNotFound
	}
	if st, ok := s.assets[sceneID]; ok {
		return *st, nil
	}
	return AssetStatus{SceneID: sceneID, State: AssetLoading}, nil
}

// RetryAsset reloads a scene's image. Navigation and measurement state are
// untouched whatever the outcome.
func (s *Session) RetryAsset(sceneID string) (AssetStatus, error) {
	var status AssetStatus
	_, err := s.update(func() ([]event, error) {
		sc, ok := s.nav.Scene(sceneID)
		if !ok {
			return nil, ErrSceneNotFound
		}
		evs := s.startAssetLocked(sc)
		status = *s.assets[sceneID]
		return evs, nil
	})
	return status, err
}

// --- measurement ---

// engineLocked returns the measurement engine for the current scene,
// creating it on first use.
func (s *Session) engineLocked() (*tour.Scene, *measurement.Engine) {
	sc := s.nav.Current()
	e, ok := s.engines[sc.ID]
	if !ok {
		w, h := sc.FrameSize()
		e = measurement.NewEngine(w, h, s.d.cfg.PixelsPerMeter)
		s.engines[sc.ID] = e
	}
	return sc, e
}

// MeasurementState is the measurement state of the current scene.
type MeasurementState struct {
	SceneID string               `json:"scene_id"`
	State   measurement.Snapshot `json:"state"`
}

// Measurements returns the current scene's measurement state.
func (s *Session) Measurements() (MeasurementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return MeasurementState{}, ErrSessionClosed
	}
	sc, e := s.engineLocked()
	return MeasurementState{SceneID: sc.ID, State: e.Snapshot()}, nil
}

// measure runs fn against the current scene's engine and returns the
// resulting state.
func (s *Session) measure(fn func(sc *tour.Scene, e *measurement.Engine) ([]event, error)) (MeasurementState, error) {
	var ms MeasurementState
	_, err := s.update(func() ([]event, error) {
		sc, e := s.engineLocked()
		evs, err := fn(sc, e)
		if err != nil {
			return nil, err
		}
		ms = MeasurementState{SceneID: sc.ID, State: e.Snapshot()}
		return evs, nil
	})
	return ms, err
}

// Click places a measurement or calibration point on the current scene at
// (x, y) percent of the image.
func (s *Session) Click(x, y float64) (measurement.ClickResult, error) {
	var res measurement.ClickResult
	_, err := s.measure(func(sc *tour.Scene, e *measurement.Engine) ([]event, error) {
		r, err := e.Click(x, y)
		if err != nil {
			return nil, err
		}
		res = r
		switch r.Outcome {
		case measurement.OutcomeMeasured:
			m := *r.Measurement
			tourID, sceneID := s.tour.ID, sc.ID
			return []event{{
				name: EventMeasurementCreated,
				data: map[string]any{"scene_id": sc.ID, "measurement": m},
				bus:  true,
				run: func() {
					if s.d.metrics != nil {
						s.d.metrics.WriteMeasurement(tourID, sceneID, m.DistanceMeters, m.PixelsPerMeter)
					}
				},
			}}, nil
		case measurement.OutcomeCalibrated:
			return []event{{
				name: EventCalibrationUpdated,
				data: map[string]any{"scene_id": sc.ID, "calibration": *r.Calibration},
				bus:  true,
			}}, nil
		}
		return nil, nil
	})
	return res, err
}

// StartCalibration switches the current scene to calibration mode. The next
// two clicks mark a reference of referenceMeters.
func (s *Session) StartCalibration(referenceMeters float64) (MeasurementState, error) {
	return s.measure(func(_ *tour.Scene, e *measurement.Engine) ([]event, error) {
		return nil, e.StartCalibration(referenceMeters)
	})
}

// CancelCalibration leaves calibration mode without changing the scale.
func (s *Session) CancelCalibration() (MeasurementState, error) {
	return s.measure(func(_ *tour.Scene, e *measurement.Engine) ([]event, error) {
		e.CancelCalibration()
		return nil, nil
	})
}

// ClearMeasurements removes all measurements from the current scene.
func (s *Session) ClearMeasurements() (MeasurementState, error) {
	return s.measure(func(sc *tour.Scene, e *measurement.Engine) ([]event, error) {
		e.Clear()
		return []event{{name: EventMeasurementCleared, data: map[string]any{"scene_id": sc.ID}}}, nil
	})
}

// DeleteMeasurement removes one measurement from the current scene.
func (s *Session) DeleteMeasurement(id string) (MeasurementState, error) {
	return s.measure(func(sc *tour.Scene, e *measurement.Engine) ([]event, error) {
		if err := e.Delete(id); err != nil {
			return nil, err
		}
		return []event{{
			name: EventMeasurementDeleted,
			data: map[string]any{"scene_id": sc.ID, "measurement_id": id},
		}}, nil
	})
}

// LabelMeasurement sets a measurement's label.
func (s *Session) LabelMeasurement(id, label string) (MeasurementState, error) {
	return s.measure(func(_ *tour.Scene, e *measurement.Engine) ([]event, error) {
		return nil, e.SetLabel(id, label)
	})
}

// SelectMeasurement highlights a measurement. An empty id clears the selection.
func (s *Session) SelectMeasurement(id string) (MeasurementState, error) {
	return s.measure(func(_ *tour.Scene, e *measurement.Engine) ([]event, error) {
		if id == "" {
			e.Deselect()
			return nil, nil
		}
		return nil, e.Select(id)
	})
}

// MeasurementExport is a downloadable export of one scene's measurements.
type MeasurementExport struct {
	SceneID  string
	Document measurement.ExportDocument
}

// ExportMeasurements builds the current scene's export and archives it when
// an archive is configured. Archive failures are logged; the export is
// still returned.
func (s *Session) ExportMeasurements(ctx context.Context) (MeasurementExport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return MeasurementExport{}, ErrSessionClosed
	}
	s.lastActive = s.d.now()
	sc, e := s.engineLocked()
	doc := e.Export()
	var rec *measurement.ExportRecord
	var recErr error
	if s.d.archive != nil {
		rec, recErr = measurement.NewExportRecord(s.id, s.tour.ID, sc.ID, e, doc)
	}
	s.mu.Unlock()

	if recErr != nil {
		s.d.logger.Warn("building export record", "session_id", s.id, "error", recErr)
	} else if rec != nil {
		if err := s.d.archive.Save(context.WithoutCancel(ctx), rec); err != nil {
			s.d.logger.Warn("archiving measurement export",
				"session_id", s.id, "scene_id", sc.ID, "error", err)
		}
	}
	return MeasurementExport{SceneID: sc.ID, Document: doc}, nil
}

// --- staging ---

// RequestStaging starts generating a staged image for sceneID (the current
// scene when empty). It returns once the request is accepted; the result
// arrives as a staging.completed or staging.failed event and is applied to
// the scene it was requested for, wherever the viewer is by then.
func (s *Session) RequestStaging(sceneID string, opts staging.Options) (StagingTicket, error) {
	if s.d.generator == nil {
		return StagingTicket{}, staging.ErrDisabled
	}
	if err := opts.Validate(); err != nil {
		return StagingTicket{}, err
	}

	var sc tour.Scene
	_, err := s.update(func() ([]event, error) {
		target := s.nav.Current()
		if sceneID != "" {
			found, ok := s.nav.Scene(sceneID)
			if !ok {
				return nil, ErrSceneNotFound
			}
			target = found
		}
		if target.ImageURL == "" {
			return nil, staging.ErrNoSourceImage
		}
		sc = *target
		// Counted while the session is known open: close takes this lock,
		// so Shutdown always waits for the request.
		s.d.wg.Add(1)
		return []event{{
			name: EventStagingRequested,
			data: map[string]any{"scene_id": sc.ID, "style": opts.Style, "room_type": opts.RoomType},
		}}, nil
	})
	if err != nil {
		return StagingTicket{}, err
	}

	go func() {
		defer s.d.wg.Done()
		res, err := s.staging.RequestStaging(s.d.bg, sc, opts)
		s.stagingDone(sc.ID, opts, res, err)
	}()

	return StagingTicket{SceneID: sc.ID, Options: opts}, nil
}

func (s *Session) stagingDone(sceneID string, opts staging.Options, res staging.Result, err error) {
	if s.d.metrics != nil {
		s.d.metrics.WriteStagingOutcome(s.tour.ID, sceneID, string(opts.Style), err == nil, res.Duration)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	current := s.nav.Current().ID == sceneID
	var v View
	if current {
		v = s.viewLocked()
	}
	s.mu.Unlock()

	status := s.staging.Status(sceneID)
	if err != nil {
		s.emit([]event{{name: EventStagingFailed, data: status, bus: true}})
	} else {
		s.emit([]event{{name: EventStagingCompleted, data: status, bus: true}})
	}
	if current {
		s.broadcast(EventViewUpdated, v)
	}
}

// StagingStatus reports staging activity for a scene.
func (s *Session) StagingStatus(sceneID string) (staging.SceneStatus, error) {
	s.mu.Lock()
	_, ok := s.nav.Scene(sceneID)
	s.mu.Unlock()
	if !ok {
		return staging.SceneStatus{}, ErrSceneNotFound
	}
	return s.staging.Status(sceneID), nil
}

// ShowOriginal toggles between the original and the staged image of a scene.
func (s *Session) ShowOriginal(sceneID string, show bool) (staging.SceneStatus, error) {
	_, err := s.update(func() ([]event, error) {
		if _, ok := s.nav.Scene(sceneID); !ok {
			return nil, ErrSceneNotFound
		}
		s.staging.ShowOriginal(sceneID, show)
		return nil, nil
	})
	if err != nil {
		return staging.SceneStatus{}, err
	}
	return s.staging.Status(sceneID), nil
}

// DiscardStaging drops a scene's staged variant.
func (s *Session) DiscardStaging(sceneID string) (staging.SceneStatus, error) {
	_, err := s.update(func() ([]event, error) {
		if _, ok := s.nav.Scene(sceneID); !ok {
			return nil, ErrSceneNotFound
		}
		s.staging.Discard(sceneID)
		return nil, nil
	})
	if err != nil {
		return staging.SceneStatus{}, err
	}
	return s.staging.Status(sceneID), nil
}

// StagingHistory lists persisted staging requests for a scene, newest first.
func (s *Session) StagingHistory(ctx context.Context, sceneID string, limit int) ([]staging.Request, error) {
	return s.staging.History(ctx, sceneID, limit)
}

// --- world ---

// WorldAnchor returns the property position and label.
func (s *Session) WorldAnchor() (tour.Point3, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return tour.Point3{}, "", ErrNoWorld
	}
	p, label := s.world.Anchor()
	return p, label, nil
}

// WorldMarkers lists markers, optionally filtered by category.
func (s *Session) WorldMarkers(categories ...tour.MarkerCategory) ([]world.MarkerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return nil, ErrNoWorld
	}
	return s.world.Markers(categories...), nil
}

// WorldCategories lists the marker categories present.
func (s *Session) WorldCategories() ([]tour.MarkerCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return nil, ErrNoWorld
	}
	return s.world.Categories(), nil
}

// HoverMarker highlights a marker. An empty id clears the hover.
func (s *Session) HoverMarker(id string) error {
	_, err := s.update(func() ([]event, error) {
		if s.world == nil {
			return nil, ErrNoWorld
		}
		if id == "" {
			s.world.ClearHover()
			return nil, nil
		}
		return nil, s.world.Hover(id)
	})
	return err
}

// SelectMarker opens a marker's detail. An empty id deselects.
func (s *Session) SelectMarker(id string) (world.MarkerView, error) {
	var mv world.MarkerView
	_, err := s.update(func() ([]event, error) {
		if s.world == nil {
			return nil, ErrNoWorld
		}
		if id == "" {
			s.world.Deselect()
			return nil, nil
		}
		v, err := s.world.Select(id)
		if err != nil {
			return nil, err
		}
		mv = v
		return []event{{name: EventMarkerSelected, data: v}}, nil
	})
	return mv, err
}

// PickMarker selects the nearest marker hit by a ray. It reports false
// when nothing is hit; the selection is then unchanged.
func (s *Session) PickMarker(origin, dir r3.Vector) (world.MarkerView, bool, error) {
	var (
		mv  world.MarkerView
		hit bool
	)
	_, err := s.update(func() ([]event, error) {
		if s.world == nil {
			return nil, ErrNoWorld
		}
		mv, hit = s.world.Pick(origin, dir)
		if !hit {
			return nil, nil
		}
		v, err := s.world.Select(mv.ID)
		if err != nil {
			return nil, err
		}
		mv = v
		return []event{{name: EventMarkerSelected, data: v}}, nil
	})
	return mv, hit, err
}

// --- view and events ---

func (s *Session) viewLocked() View {
	sc := s.nav.Current()
	st := s.orient.State()
	asset := AssetStatus{SceneID: sc.ID, State: AssetLoading}
	if a, ok := s.assets[sc.ID]; ok {
		asset = *a
	}
	return View{
		SessionID:  s.id,
		TourID:     s.tour.ID,
		SceneID:    sc.ID,
		SceneTitle: sc.Title,
		SceneIndex: s.nav.Index(),
		SceneCount: s.nav.Len(),
		Image:      s.staging.CurrentImage(*sc),
		Orientation: ViewOrientation{
			Pitch: st.Pitch,
			Yaw:   st.WrappedYaw(),
			Zoom:  st.Zoom,
		},
		Anchors:    projection.ProjectAll(sc.Hotspots, st),
		AutoRotate: s.orient.AutoRotating(),
		Display:    s.display,
		Asset:      asset,
		Staging:    s.staging.Status(sc.ID),
	}
}

func (s *Session) emit(evs []event) {
	for _, ev := range evs {
		if ev.run != nil {
			ev.run()
		}
		if ev.name == "" {
			continue
		}
		s.broadcast(ev.name, ev.data)
		if ev.bus && s.d.events != nil {
			if err := s.d.events.PublishSessionEvent(s.tour.ID, s.id, ev.name, ev.data); err != nil {
				s.d.logger.Warn("publishing session event",
					"session_id", s.id, "event", ev.name, "error", err)
			}
		}
	}
}

func (s *Session) broadcast(name string, data any) {
	if s.d.hub == nil {
		return
	}
	s.d.hub.Broadcast(Channel(s.id), Envelope{Event: name, SessionID: s.id, Data: data})
}
