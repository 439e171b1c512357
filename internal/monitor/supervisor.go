package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"livewatch/internal/metrics"
	"livewatch/internal/source"
)

// DefaultStopTimeout bounds how long a stop waits for one monitor.
const DefaultStopTimeout = 5 * time.Second

// ErrNotRunning is returned by operations that need a started supervisor.
var ErrNotRunning = errors.New("supervisor is not running")

// ErrStopTimeout reports a monitor whose recording outlived the stop timeout.
var ErrStopTimeout = errors.New("monitor did not stop in time")

// Status is a point-in-time view of one running monitor.
type Status struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	State     State     `json:"state"`
	LastCheck time.Time `json:"last_check,omitempty"`
	LiveURL   string    `json:"live_url,omitempty"`
	LiveTitle string    `json:"live_title,omitempty"`
}

// Supervisor owns the registry of running monitors. Only its methods
// mutate the registry.
type Supervisor struct {
	checker     Checker
	recorder    Recorder
	log         *slog.Logger
	metrics     *metrics.Metrics
	StopTimeout time.Duration

	settings atomic.Pointer[source.Settings]

	mu       sync.Mutex
	ctx      context.Context
	running  bool
	monitors map[string]*Monitor
	// draining holds stopped monitors whose loop has not exited yet. A new
	// monitor for the same id waits for the old one before its first cycle.
	draining map[string]*Monitor
}

// NewSupervisor creates an idle supervisor. m may be nil.
func NewSupervisor(checker Checker, recorder Recorder, log *slog.Logger, m *metrics.Metrics) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		checker:     checker,
		recorder:    recorder,
		log:         log,
		metrics:     m,
		StopTimeout: DefaultStopTimeout,
		monitors:    make(map[string]*Monitor),
		draining:    make(map[string]*Monitor),
	}
	def := source.DefaultSettings()
	s.settings.Store(&def)
	return s
}

// Start validates settings and starts a monitor for every enabled source
// before returning. With no enabled sources it logs a warning and does
// nothing. ctx bounds every monitor and recording started from now on.
func (s *Supervisor) Start(ctx context.Context, sources []source.Source, settings source.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.settings.Store(&settings)

	enabled := source.Enabled(sources)
	if len(enabled) == 0 {
		s.log.Warn("no enabled sources to monitor")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	s.running = true
	for _, src := range enabled {
		if _, ok := s.monitors[src.ID]; ok {
			continue
		}
		s.startLocked(src)
	}
	s.log.Info("supervisor started", "monitors", len(s.monitors))
	s.metrics.SetActiveMonitors(len(s.monitors))
	return nil
}

// AddAndStart starts a monitor for src while the supervisor runs. A
// duplicate id, a disabled source or a stopped supervisor is a no-op.
func (s *Supervisor) AddAndStart(src source.Source) {
	if !src.Enabled {
		s.log.Debug("ignoring disabled source", "source_id", src.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.log.Debug("supervisor not running, source not started", "source_id", src.ID)
		return
	}
	if _, ok := s.monitors[src.ID]; ok {
		s.log.Info("source already monitored", "source_id", src.ID, "source", src.Name)
		return
	}
	s.startLocked(src)
	s.metrics.SetActiveMonitors(len(s.monitors))
}

// RemoveAndStop stops and deregisters one monitor. Unknown ids are a no-op.
func (s *Supervisor) RemoveAndStop(id string) {
	s.mu.Lock()
	m, ok := s.monitors[id]
	if ok {
		delete(s.monitors, id)
		s.draining[id] = m
		s.metrics.SetActiveMonitors(len(s.monitors))
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.stopMonitor(m); err != nil {
		s.log.Warn("leaving monitor to finish its recording", "error", err)
	}
}

// StopAll stops every monitor and clears the registry. It is safe to call
// when nothing runs. The returned error wraps ErrStopTimeout when a monitor
// was still recording after StopTimeout; it keeps running until the
// broadcast ends or the context passed to Start is cancelled.
func (s *Supervisor) StopAll() error {
	s.mu.Lock()
	stopping := s.monitors
	s.monitors = make(map[string]*Monitor)
	for id, m := range stopping {
		s.draining[id] = m
	}
	s.running = false
	s.ctx = nil
	s.metrics.SetActiveMonitors(0)
	s.mu.Unlock()

	var g errgroup.Group
	for _, m := range stopping {
		g.Go(func() error {
			return s.stopMonitor(m)
		})
	}
	err := g.Wait()

	if len(stopping) > 0 {
		s.log.Info("supervisor stopped", "monitors", len(stopping))
	}
	return err
}

// Reconcile makes the running set match the enabled sources: new ones are
// started and removed or disabled ones are stopped. It returns
// ErrNotRunning when the supervisor has not been started.
func (s *Supervisor) Reconcile(sources []source.Source) error {
	want := make(map[string]source.Source)
	for _, src := range source.Enabled(sources) {
		want[src.ID] = src
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	var stale []string
	for id, m := range s.monitors {
		src, ok := want[id]
		if !ok || src.Address != m.src.Address || src.Name != m.src.Name || src.Format != m.src.Format {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.RemoveAndStop(id)
	}
	for _, src := range want {
		s.AddAndStart(src)
	}
	return nil
}

// UpdateSettings replaces the settings snapshot read by every monitor at
// the start of its next cycle.
func (s *Supervisor) UpdateSettings(settings source.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.settings.Store(&settings)
	return nil
}

// Settings returns the current settings snapshot.
func (s *Supervisor) Settings() source.Settings { return *s.settings.Load() }

// Running reports whether the supervisor has been started and not stopped.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Has reports whether id has a registered monitor.
func (s *Supervisor) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[id]
	return ok
}

// Len returns the number of registered monitors.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}

// Statuses returns a snapshot of every registered monitor, sorted by name.
func (s *Supervisor) Statuses() []Status {
	s.mu.Lock()
	out := make([]Status, 0, len(s.monitors))
	for _, m := range s.monitors {
		st := Status{
			ID:        m.src.ID,
			Name:      m.src.Name,
			URL:       m.src.Address,
			State:     m.State(),
			LastCheck: m.LastCheck(),
		}
		if res := m.LastLive(); res != nil {
			st.LiveURL = res.URL
			st.LiveTitle = res.Title
		}
		out = append(out, st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// State returns the state of the monitor for id and whether it exists.
func (s *Supervisor) State(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return Idle, false
	}
	return m.State(), true
}

func (s *Supervisor) startLocked(src source.Source) {
	m := NewMonitor(src, s.checker, s.recorder, s.Settings, s.log)
	if prev, ok := s.draining[src.ID]; ok {
		s.log.Info("waiting for previous recording to finish", "source_id", src.ID, "source", src.Name)
		m.after = prev.Done()
	}
	m.Start(s.ctx)
	s.monitors[src.ID] = m
}

// stopMonitor stops m and drops it from the draining set once its loop has
// exited, which may be after stopMonitor returns.
func (s *Supervisor) stopMonitor(m *Monitor) error {
	if m.Stop(s.StopTimeout) {
		s.drained(m)
		return nil
	}
	go func() {
		<-m.Done()
		s.drained(m)
	}()
	return fmt.Errorf("%w: %s (%s) still %s after %s",
		ErrStopTimeout, m.src.Name, m.src.ID, m.State(), s.StopTimeout)
}

func (s *Supervisor) drained(m *Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining[m.src.ID] == m {
		delete(s.draining, m.src.ID)
	}
}

// Draining reports whether a stopped monitor for id is still finishing a
// recording.
func (s *Supervisor) Draining(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.draining[id]
	return ok
}
