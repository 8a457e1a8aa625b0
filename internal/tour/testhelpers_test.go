package tour

import (
	"context"
	"sync"
)

func strPtr(s string) *string { return &s }

// sampleTour returns a valid three-scene tour with one unresolved navigation target.
func sampleTour() *Tour {
	return &Tour{
		Name: "12 Harbour View",
		Scenes: []Scene{
			{
				ID:           "living",
				Title:        "Living Room",
				ImageURL:     "https://cdn.example.com/living.jpg",
				RoomCategory: RoomLiving,
				Hotspots: []Hotspot{
					{ID: "to-kitchen", Kind: KindNavigation, Position: AngularPosition{Pitch: 0, Yaw: 90}, TargetSceneID: strPtr("kitchen"), Title: "Kitchen"},
					{ID: "sofa", Kind: KindFurniture, Position: AngularPosition{Pitch: -20, Yaw: 10}, Title: "Sofa", Description: strPtr("Three-seat linen")},
				},
			},
			{
				ID:           "kitchen",
				Title:        "Kitchen",
				ImageURL:     "https://cdn.example.com/kitchen.jpg",
				RoomCategory: RoomKitchen,
				Hotspots: []Hotspot{
					{ID: "to-living", Kind: KindNavigation, Position: AngularPosition{Yaw: 270}, TargetSceneID: strPtr("living"), Title: "Living"},
					{ID: "to-cellar", Kind: KindNavigation, Position: AngularPosition{Yaw: 180}, TargetSceneID: strPtr("cellar"), Title: "Cellar"},
				},
			},
			{
				ID:          "bedroom",
				Title:       "Bedroom",
				ImageURL:    "https://cdn.example.com/bedroom.jpg",
				ImageWidth:  4000,
				ImageHeight: 2000,
				Hotspots:    []Hotspot{},
			},
		},
		Neighborhood: &WorldLayout{
			AnchorLabel: "Property",
			Markers: []Marker{
				{ID: "school", Category: MarkerSchool, Label: "Primary School", Position: Point3{X: 120, Z: -40}},
			},
		},
	}
}

// mockRepository is an in-memory Repository.
type mockRepository struct {
	tours map[string]*Tour
	mu    sync.RWMutex
}

func newMockRepository() *mockRepository {
	return &mockRepository{tours: make(map[string]*Tour)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tours[id]
	if !ok {
		return nil, ErrTourNotFound
	}
	return t.DeepCopy(), nil
}

func (m *mockRepository) GetBySlug(_ context.Context, slug string) (*Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tours {
		if t.Slug == slug {
			return t.DeepCopy(), nil
		}
	}
	return nil, ErrTourNotFound
}

func (m *mockRepository) List(_ context.Context) ([]Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tours := make([]Tour, 0, len(m.tours))
	for _, t := range m.tours {
		tours = append(tours, *t.DeepCopy())
	}
	return tours, nil
}

func (m *mockRepository) Create(_ context.Context, t *Tour) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tours[t.ID]; exists {
		return ErrTourExists
	}
	for _, existing := range m.tours {
		if existing.Slug == t.Slug {
			return ErrTourExists
		}
	}
	m.tours[t.ID] = t.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, t *Tour) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tours[t.ID]; !exists {
		return ErrTourNotFound
	}
	m.tours[t.ID] = t.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tours[id]; !exists {
		return ErrTourNotFound
	}
	delete(m.tours, id)
	return nil
}

// recordingLogger captures warnings.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

type notification struct {
	id, change string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *mockNotifier) PublishTourChanged(id, change string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{id, change})
	return n.err
}
