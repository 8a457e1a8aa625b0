package tour

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger is the logging interface used across the engine's packages.
// *logging.Logger satisfies it.
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

// ChangeNotifier is told about catalogue edits so other engine instances can
// refresh their caches.
type ChangeNotifier interface {
	PublishTourChanged(tourID, change string) error
}

// Change kinds passed to ChangeNotifier.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Registry caches the tour catalogue in memory on top of a Repository.
// Tours handed out are deep copies. All methods are safe for concurrent use.
type Registry struct {
	repo     Repository
	cache    map[string]*Tour
	cacheMu  sync.RWMutex
	logger   Logger
	notifier ChangeNotifier
}

// NewRegistry creates a registry over repo. Call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Tour),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier sets where catalogue edits are announced.
func (r *Registry) SetNotifier(n ChangeNotifier) {
	r.notifier = n
}

// RefreshCache reloads every tour from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	tours, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading tours: %w", err)
	}

	cache := make(map[string]*Tour, len(tours))
	for i := range tours {
		cache[tours[i].ID] = tours[i].DeepCopy()
		r.warnDangling(&tours[i])
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("tour cache refreshed", "count", len(tours))
	return nil
}

// Reload refreshes a single tour from the repository, dropping it from the
// cache if it no longer exists. Used when another instance edits the catalogue.
func (r *Registry) Reload(ctx context.Context, id string) error {
	t, err := r.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTourNotFound) {
			r.cacheMu.Lock()
			delete(r.cache, id)
			r.cacheMu.Unlock()
			r.logger.Debug("tour evicted from cache", "id", id)
			return nil
		}
		return fmt.Errorf("reloading tour %s: %w", id, err)
	}

	r.cacheMu.Lock()
	r.cache[id] = t.DeepCopy()
	r.cacheMu.Unlock()
	r.logger.Debug("tour reloaded", "id", id)
	return nil
}

// GetTour returns a copy of the tour with the given id.
func (r *Registry) GetTour(_ context.Context, id string) (*Tour, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if !ok {
		return nil, ErrTourNotFound
	}
	return cached.DeepCopy(), nil
}

// GetTourBySlug returns a copy of the tour with the given slug.
func (r *Registry) GetTourBySlug(_ context.Context, slug string) (*Tour, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, t := range r.cache {
		if t.Slug == slug {
			return t.DeepCopy(), nil
		}
	}
	return nil, ErrTourNotFound
}

// ListTours returns copies of all tours sorted by name.
func (r *Registry) ListTours(_ context.Context) []Tour {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	tours := make([]Tour, 0, len(r.cache))
	for _, t := range r.cache {
		tours = append(tours, *t.DeepCopy())
	}
	sort.Slice(tours, func(i, j int) bool {
		if tours[i].Name != tours[j].Name {
			return tours[i].Name < tours[j].Name
		}
		return tours[i].ID < tours[j].ID
	})
	return tours
}

// CreateTour assigns an id and slug when missing, validates, persists and caches.
func (r *Registry) CreateTour(ctx context.Context, t *Tour) error {
	if t.ID == "" {
		t.ID = GenerateID()
	}
	if t.Slug == "" {
		t.Slug = GenerateSlug(t.Name)
	}
	if err := ValidateTour(t); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, t); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[t.ID] = t.DeepCopy()
	r.cacheMu.Unlock()

	r.warnDangling(t)
	r.logger.Info("tour created", "id", t.ID, "name", t.Name, "scenes", len(t.Scenes))
	r.notify(t.ID, ChangeCreated)
	return nil
}

// UpdateTour validates, persists and re-caches an existing tour.
func (r *Registry) UpdateTour(ctx context.Context, t *Tour) error {
	if err := ValidateTour(t); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, t); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[t.ID] = t.DeepCopy()
	r.cacheMu.Unlock()

	r.warnDangling(t)
	r.logger.Info("tour updated", "id", t.ID, "name", t.Name)
	r.notify(t.ID, ChangeUpdated)
	return nil
}

// DeleteTour removes a tour from persistence and cache.
func (r *Registry) DeleteTour(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("tour deleted", "id", id)
	r.notify(id, ChangeDeleted)
	return nil
}

// Count returns the number of cached tours.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) warnDangling(t *Tour) {
	for _, d := range UnresolvedTargets(t) {
		r.logger.Warn("navigation hotspot targets unknown scene",
			"tour_id", t.ID,
			"scene_id", d.SceneID,
			"hotspot_id", d.HotspotID,
			"target_scene_id", d.TargetSceneID,
		)
	}
}

func (r *Registry) notify(id, change string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.PublishTourChanged(id, change); err != nil {
		r.logger.Warn("failed to announce tour change", "id", id, "change", change, "error", err)
	}
}
