package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

func strPtr(s string) *string { return &s }

func sampleTour() *tour.Tour {
	return &tour.Tour{
		ID:   "tour-1",
		Name: "12 Harbour View",
		Scenes: []tour.Scene{
			{
				ID:           "living",
				Title:        "Living Room",
				ImageURL:     "https://cdn.example.com/living.jpg",
				RoomCategory: tour.RoomLiving,
				Hotspots: []tour.Hotspot{
					{ID: "to-kitchen", Kind: tour.KindNavigation, Position: tour.AngularPosition{Yaw: 30}, TargetSceneID: strPtr("kitchen"), Title: "Kitchen"},
					{ID: "sofa", Kind: tour.KindFurniture, Position: tour.AngularPosition{Pitch: -20, Yaw: 10}, Title: "Sofa", Description: strPtr("Three-seat linen")},
				},
			},
			{
				ID:           "kitchen",
				Title:        "Kitchen",
				ImageURL:     "https://cdn.example.com/kitchen.jpg",
				RoomCategory: tour.RoomKitchen,
				Hotspots: []tour.Hotspot{
					{ID: "to-cellar", Kind: tour.KindNavigation, Position: tour.AngularPosition{Yaw: 180}, TargetSceneID: strPtr("cellar"), Title: "Cellar"},
				},
			},
			{
				ID:       "bedroom",
				Title:    "Bedroom",
				ImageURL: "https://cdn.example.com/bedroom.jpg",
			},
		},
		Neighborhood: &tour.WorldLayout{
			AnchorLabel: "Property",
			Markers: []tour.Marker{
				{ID: "school", Category: tour.MarkerSchool, Label: "Primary School", Position: tour.Point3{X: 120}},
				{ID: "park", Category: tour.MarkerPark, Label: "Harbour Park", Position: tour.Point3{Z: 300}},
			},
		},
	}
}

// fakeTours serves tours from a map.
type fakeTours struct {
	tours map[string]*tour.Tour
}

func (f *fakeTours) GetTour(_ context.Context, id string) (*tour.Tour, error) {
	t, ok := f.tours[id]
	if !ok {
		return nil, tour.ErrTourNotFound
	}
	return t.DeepCopy(), nil
}

// recordingHub captures broadcasts.
type recordingHub struct {
	mu   sync.Mutex
	msgs []Envelope
}

func (h *recordingHub) Broadcast(_ string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if env, ok := payload.(Envelope); ok {
		h.msgs = append(h.msgs, env)
	}
}

func (h *recordingHub) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

// recordingBus captures published session events.
type recordingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBus) PublishSessionEvent(_, _, event string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) has(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == event {
			return true
		}
	}
	return false
}

// recordingMetrics captures analytics writes.
type recordingMetrics struct {
	mu           sync.Mutex
	sceneViews   []string
	measurements []float64
	staging      []bool
	active       []int
}

func (m *recordingMetrics) WriteSceneView(_, sceneID, _ string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sceneViews = append(m.sceneViews, sceneID)
}

func (m *recordingMetrics) WriteMeasurement(_, _ string, meters, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.measurements = append(m.measurements, meters)
}

func (m *recordingMetrics) WriteStagingOutcome(_, _, _ string, ok bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staging = append(m.staging, ok)
}

func (m *recordingMetrics) WriteActiveSessions(_ string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, count)
}

// manualPreloader holds preload callbacks until the test completes them.
type manualPreloader struct {
	mu      sync.Mutex
	pending map[string][]func(error)
}

func newManualPreloader() *manualPreloader {
	return &manualPreloader{pending: make(map[string][]func(error))}
}

func (p *manualPreloader) Preload(_ context.Context, rawURL string, done func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[rawURL] = append(p.pending[rawURL], done)
}

// complete resolves every outstanding preload of rawURL.
func (p *manualPreloader) complete(rawURL string, err error) int {
	p.mu.Lock()
	calls := p.pending[rawURL]
	delete(p.pending, rawURL)
	p.mu.Unlock()
	for _, done := range calls {
		done(err)
	}
	return len(calls)
}

// gatedGenerator blocks each request until the test releases it.
type gatedGenerator struct {
	started chan string
	release chan genResult
}

type genResult struct {
	url string
	err error
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		started: make(chan string, 8),
		release: make(chan genResult),
	}
}

func (g *gatedGenerator) Generate(ctx context.Context, req staging.GenerateRequest) (string, error) {
	g.started <- req.ImageURL
	select {
	case r := <-g.release:
		return r.url, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// memoryArchive stores export records in a slice.
type memoryArchive struct {
	mu      sync.Mutex
	records []measurement.ExportRecord
}

func (a *memoryArchive) Save(_ context.Context, rec *measurement.ExportRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *rec)
	return nil
}

func (a *memoryArchive) GetByID(_ context.Context, id string) (*measurement.ExportRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, measurement.ErrExportNotFound
}

func (a *memoryArchive) ListByTour(_ context.Context, tourID string, _ int) ([]measurement.ExportRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []measurement.ExportRecord
	for _, r := range a.records {
		if r.TourID == tourID {
			out = append(out, r)
		}
	}
	return out, nil
}

// fixture bundles a manager with its recording collaborators.
type fixture struct {
	mgr       *Manager
	hub       *recordingHub
	bus       *recordingBus
	metrics   *recordingMetrics
	preloader *manualPreloader
	gen       *gatedGenerator
	archive   *memoryArchive
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, tours ...*tour.Tour) *fixture {
	t.Helper()
	if len(tours) == 0 {
		tours = []*tour.Tour{sampleTour()}
	}
	src := &fakeTours{tours: make(map[string]*tour.Tour)}
	for _, tr := range tours {
		src.tours[tr.ID] = tr
	}

	f := &fixture{
		hub:       &recordingHub{},
		bus:       &recordingBus{},
		metrics:   &recordingMetrics{},
		preloader: newManualPreloader(),
		gen:       newGatedGenerator(),
		archive:   &memoryArchive{},
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	cfg := DefaultConfig()
	cfg.Orientation = orientation.Config{AutoRotate: false}
	cfg.MaxSessions = 3
	f.mgr = NewManager(cfg, src, Deps{
		Broadcaster: f.hub,
		Events:      f.bus,
		Metrics:     f.metrics,
		Preloader:   f.preloader,
		Archive:     f.archive,
		Generator:   f.gen,
	})
	f.mgr.d.now = f.clock.Now
	t.Cleanup(f.mgr.Shutdown)
	return f
}

func (f *fixture) open(t *testing.T) (*Session, View) {
	t.Helper()
	s, v, err := f.mgr.Create(context.Background(), "tour-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s, v
}

func stagingOpts() staging.Options {
	return staging.Options{Style: staging.StyleModern, RoomType: staging.RoomLiving}
}
