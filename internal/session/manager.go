package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
)

// metricsEvery is how often Run reports the active session count.
const metricsEvery = time.Minute

// Manager owns every live session. It opens sessions against tours from
// a TourSource, expires idle ones, and drives the animation tick.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	cfg   Config
	tours TourSource
	d     deps

	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Deps are the optional collaborators of a Manager. Nil fields disable the
// corresponding feature.
type Deps struct {
	Logger      Logger
	Broadcaster Broadcaster
	Events      EventPublisher
	Metrics     Metrics
	Preloader   Preloader
	Archive     measurement.Archive
	Generator   staging.Generator
	History     staging.Repository
}

// NewManager creates a manager. Zero fields of cfg take their defaults.
func NewManager(cfg Config, tours TourSource, opts Deps) *Manager {
	def := DefaultConfig()
	if cfg.PixelsPerMeter <= 0 {
		cfg.PixelsPerMeter = def.PixelsPerMeter
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxSessions < 0 {
		cfg.MaxSessions = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	bg, stop := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		tours:    tours,
		stop:     stop,
		sessions: make(map[string]*Session),
	}
	m.d = newDeps(bg, &m.wg, cfg, logger, opts)
	return m
}

func newDeps(bg context.Context, wg *sync.WaitGroup, cfg Config, logger Logger, in Deps) deps {
	return deps{
		cfg:       cfg,
		logger:    logger,
		hub:       in.Broadcaster,
		events:    in.Events,
		metrics:   in.Metrics,
		preloader: in.Preloader,
		archive:   in.Archive,
		generator: in.Generator,
		history:   in.History,
		bg:        bg,
		wg:        wg,
		now:       time.Now,
	}
}

// Create opens a session on tourID, starting at its first scene.
func (m *Manager) Create(ctx context.Context, tourID string) (*Session, View, error) {
	t, err := m.tours.GetTour(ctx, tourID)
	if err != nil {
		return nil, View{}, err
	}

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, View{}, ErrTooManySessions
	}
	s, err := newSession(uuid.NewString(), t, m.d)
	if err != nil {
		m.mu.Unlock()
		return nil, View{}, fmt.Errorf("opening session on tour %s: %w", tourID, err)
	}
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.d.logger.Info("session opened",
		"session_id", s.id,
		"tour_id", t.ID,
		"scenes", len(t.Scenes),
		"active", count,
	)
	return s, s.start(), nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if s.close() {
		m.d.logger.Info("session closed", "session_id", id, "tour_id", s.TourID())
	}
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CountByTour returns the number of live sessions per tour.
func (m *Manager) CountByTour() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, s := range m.sessions {
		counts[s.TourID()]++
	}
	return counts
}

// Run advances every session on each tick, broadcasting views whose
// orientation changed, and closes sessions idle for longer than the TTL.
// It blocks until ctx is cancelled, then closes all sessions.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	last := m.d.now()
	lastReport := last
	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			now := m.d.now()
			m.tick(now.Sub(last))
			m.ExpireIdle(now)
			if now.Sub(lastReport) >= metricsEvery {
				m.reportActive()
				lastReport = now
			}
			last = now
		}
	}
}

func (m *Manager) tick(dt time.Duration) {
	for _, s := range m.snapshot() {
		if v, changed := s.Tick(dt); changed {
			s.broadcast(EventViewUpdated, v)
		}
	}
}

// ExpireIdle closes sessions idle since before now minus the TTL and
// returns how many were closed.
func (m *Manager) ExpireIdle(now time.Time) int {
	cutoff := now.Add(-m.cfg.TTL)
	closed := 0
	for _, s := range m.snapshot() {
		if !s.idleSince().Before(cutoff) {
			continue
		}
		if err := m.Close(s.id); err == nil {
			closed++
			m.d.logger.Info("session expired", "session_id", s.id, "ttl", m.cfg.TTL)
		}
	}
	return closed
}

func (m *Manager) reportActive() {
	if m.d.metrics == nil {
		return
	}
	m.d.metrics.WriteActiveSessions(m.cfg.SiteID, m.Count())
}

// Shutdown closes all sessions, cancels in-flight staging and asset checks,
// and waits for their goroutines.
func (m *Manager) Shutdown() {
	for _, s := range m.snapshot() {
		_ = m.Close(s.id) //nolint:errcheck // Already removed sessions are fine
	}
	m.stop()
	m.wg.Wait()
}

// wait blocks until background staging work has finished. Used by tests.
func (m *Manager) wait() {
	m.wg.Wait()
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
