package staging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

var errEmptyResult = errors.New("generator returned no image")

// GenerateRequest is sent to the external generator.
type GenerateRequest struct {
	ImageURL       string   `json:"imageUrl"`
	RoomType       RoomType `json:"roomType"`
	Style          Style    `json:"style"`
	RemoveExisting bool     `json:"removeExisting"`
}

// Generator produces a staged image for a panorama.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (stagedImageURL string, err error)
}

// Repository records staging request history.
type Repository interface {
	CreateRequest(ctx context.Context, req *Request) error
	UpdateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, tourID, sceneID string, limit int) ([]Request, error)
}

// Logger is the logging interface used by the manager.
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

// Owner identifies the session a manager belongs to, for history records.
type Owner struct {
	SessionID string
	TourID    string
}

// Result is a successful generation.
type Result struct {
	RequestID      string        `json:"request_id"`
	SceneID        string        `json:"scene_id"`
	StagedImageURL string        `json:"staged_image_url"`
	Duration       time.Duration `json:"duration"`
}

// sceneState is the per-scene bookkeeping.
type sceneState struct {
	variant      *Variant
	inFlight     int
	showOriginal bool
	lastErr      string
	lastFailed   bool
}

// Manager keeps at most one staged variant per scene and decides which image
// a scene currently shows. Requests may overlap; whichever resolves last
// for a scene wins, regardless of start order.
//
// Manager is safe for concurrent use.
type Manager struct {
	gen    Generator
	owner  Owner
	repo   Repository
	logger Logger

	mu     sync.Mutex
	scenes map[string]*sceneState
}

// NewManager creates a manager that delegates generation to gen.
func NewManager(gen Generator, owner Owner) *Manager {
	return &Manager{
		gen:    gen,
		owner:  owner,
		logger: noopLogger{},
		scenes: make(map[string]*sceneState),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetRepository enables request history.
func (m *Manager) SetRepository(repo Repository) {
	m.repo = repo
}

// RequestStaging generates a staged version of scene and, on success, makes
// it the scene's variant. The result is always stored against the scene
// passed in, even if the viewer has moved on by the time it resolves.
//
// Generator failures return an error wrapping ErrGenerationFailed and leave
// any existing image in place. Nothing is retried.
func (m *Manager) RequestStaging(ctx context.Context, scene tour.Scene, opts Options) (Result, error) {
	if m.gen == nil {
		return Result{}, ErrDisabled
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if scene.ImageURL == "" {
		return Result{}, ErrNoSourceImage
	}

	sceneID := scene.ID
	started := time.Now().UTC()
	rec := &Request{
		ID:             uuid.NewString(),
		SessionID:      m.owner.SessionID,
		TourID:         m.owner.TourID,
		SceneID:        sceneID,
		Style:          opts.Style,
		RoomType:       opts.RoomType,
		RemoveExisting: opts.RemoveExisting,
		Status:         RequestPending,
		RequestedAt:    started,
	}
	m.record(ctx, rec, true)

	m.mu.Lock()
	m.state(sceneID).inFlight++
	m.mu.Unlock()

	m.logger.Info("staging requested",
		"scene_id", sceneID,
		"request_id", rec.ID,
		"style", opts.Style,
		"room_type", opts.RoomType,
	)

	url, genErr := m.gen.Generate(ctx, GenerateRequest{
		ImageURL:       scene.ImageURL,
		RoomType:       opts.RoomType,
		Style:          opts.Style,
		RemoveExisting: opts.RemoveExisting,
	})
	if genErr == nil && url == "" {
		genErr = errEmptyResult
	}

	completed := time.Now().UTC()
	took := completed.Sub(started)
	durationMS := int(took.Milliseconds())
	rec.CompletedAt = &completed
	rec.DurationMS = &durationMS

	m.mu.Lock()
	st := m.state(sceneID)
	st.inFlight--
	if genErr != nil {
		st.lastErr = genErr.Error()
		st.lastFailed = true
	} else {
		st.variant = &Variant{
			SceneID:        sceneID,
			StagedImageURL: url,
			Style:          opts.Style,
			RoomType:       opts.RoomType,
			ResolvedAt:     completed,
		}
		st.showOriginal = false
		st.lastErr = ""
		st.lastFailed = false
	}
	m.mu.Unlock()

	if genErr != nil {
		msg := genErr.Error()
		rec.Status = RequestFailed
		rec.ErrorMessage = &msg
		m.record(ctx, rec, false)
		m.logger.Warn("staging failed",
			"scene_id", sceneID,
			"request_id", rec.ID,
			"duration_ms", durationMS,
			"error", genErr,
		)
		return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
	}

	rec.Status = RequestSucceeded
	rec.StagedImageURL = &url
	m.record(ctx, rec, false)
	m.logger.Info("staging complete",
		"scene_id", sceneID,
		"request_id", rec.ID,
		"duration_ms", durationMS,
	)

	return Result{RequestID: rec.ID, SceneID: sceneID, StagedImageURL: url, Duration: took}, nil
}

// CurrentImage returns the URL the viewer should display for scene: the
// staged variant unless there is none or the user chose the original.
func (m *Manager) CurrentImage(scene tour.Scene) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.scenes[scene.ID]
	if !ok || st.variant == nil || st.showOriginal {
		return scene.ImageURL
	}
	return st.variant.StagedImageURL
}

// Variant returns the staged variant of a scene.
func (m *Manager) Variant(sceneID string) (Variant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.scenes[sceneID]
	if !ok || st.variant == nil {
		return Variant{}, false
	}
	return *st.variant, true
}

// Status reports staging state for a scene.
func (m *Manager) Status(sceneID string) SceneStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := SceneStatus{SceneID: sceneID, State: StateNone}
	st, ok := m.scenes[sceneID]
	if !ok {
		return status
	}

	status.InFlight = st.inFlight
	status.ShowOriginal = st.showOriginal
	status.LastError = st.lastErr
	if st.variant != nil {
		v := *st.variant
		status.Variant = &v
	}

	switch {
	case st.inFlight > 0:
		status.State = StatePending
	case st.lastFailed:
		status.State = StateFailed
	case st.variant != nil:
		status.State = StateReady
	}
	return status
}

// ShowOriginal toggles between the original and staged image for a scene.
// It has no effect on scenes without a variant.
func (m *Manager) ShowOriginal(sceneID string, show bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.scenes[sceneID]; ok && st.variant != nil {
		st.showOriginal = show
	}
}

// Discard drops the staged variant of a scene. A request still in flight
// may install a new one when it resolves.
func (m *Manager) Discard(sceneID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.scenes[sceneID]; ok {
		st.variant = nil
		st.showOriginal = false
		st.lastErr = ""
		st.lastFailed = false
	}
}

// History lists persisted requests for a scene of this manager's tour.
func (m *Manager) History(ctx context.Context, sceneID string, limit int) ([]Request, error) {
	if m.repo == nil {
		return nil, nil
	}
	return m.repo.ListRequests(ctx, m.owner.TourID, sceneID, limit)
}

// state returns the bookkeeping for sceneID, creating it. Callers hold mu.
func (m *Manager) state(sceneID string) *sceneState {
	st, ok := m.scenes[sceneID]
	if !ok {
		st = &sceneState{}
		m.scenes[sceneID] = st
	}
	return st
}

// record persists rec. History is best effort and never fails a request.
func (m *Manager) record(ctx context.Context, rec *Request, create bool) {
	if m.repo == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	if create {
		err = m.repo.CreateRequest(ctx, rec)
	} else {
		err = m.repo.UpdateRequest(ctx, rec)
	}
	if err != nil {
		m.logger.Error("failed to record staging request", "request_id", rec.ID, "error", err)
	}
}
