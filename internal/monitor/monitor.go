// Package monitor runs one polling worker per source and the supervisor
// that owns the set of running workers.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"livewatch/internal/detect"
	"livewatch/internal/httputil"
	"livewatch/internal/record"
	"livewatch/internal/source"
)

// State is the in-memory lifecycle state of one source.
type State int32

const (
	Idle State = iota
	Checking
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "checking":
		*s = Checking
	case "recording":
		*s = Recording
	default:
		return fmt.Errorf("unknown monitor state %q", b)
	}
	return nil
}

// Checker reports whether a source address is broadcasting.
type Checker interface {
	CheckLive(ctx context.Context, address string) (bool, *detect.Result)
}

// Recorder records a live broadcast until it ends.
type Recorder interface {
	Record(ctx context.Context, req record.Request) bool
}

// LiveSuffix is appended to a source's name to form recording file names.
const LiveSuffix = "_live"

// Monitor polls one source and records it whenever it goes live.
type Monitor struct {
	src      source.Source
	checker  Checker
	recorder Recorder
	settings func() source.Settings
	log      *slog.Logger

	state atomic.Int32

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	// after, when set, holds back the first cycle until it is closed.
	after <-chan struct{}

	lastCheck atomic.Pointer[time.Time]
	lastLive  atomic.Pointer[detect.Result]
}

// NewMonitor creates a stopped monitor. settings is read at the start of
// every cycle.
func NewMonitor(src source.Source, checker Checker, recorder Recorder, settings func() source.Settings, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		src:      src,
		checker:  checker,
		recorder: recorder,
		settings: settings,
		log:      log.With("source_id", src.ID, "source", src.Name),
		cancel:   func() {},
		done:     make(chan struct{}),
	}
}

// Source returns the source this monitor watches.
func (m *Monitor) Source() source.Source { return m.src }

// State returns the current state.
func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) setState(s State) { m.state.Store(int32(s)) }

// LastCheck returns when detection last ran, or the zero time.
func (m *Monitor) LastCheck() time.Time {
	if t := m.lastCheck.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// LastLive returns the most recent positive detection, or nil.
func (m *Monitor) LastLive() *detect.Result { return m.lastLive.Load() }

// Start launches the polling loop. ctx bounds the whole process: it is the
// only thing that interrupts an in-flight recording. Calling Start more
// than once has no effect.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		go m.run(loopCtx, ctx)
	})
}

// Stop asks the loop to exit and waits up to timeout for it. It reports
// whether the loop exited in time; a monitor still recording keeps going
// until the broadcast ends. A monitor that was never started is stopped
// immediately and can no longer be started.
func (m *Monitor) Stop(timeout time.Duration) bool {
	m.startOnce.Do(func() { close(m.done) })
	m.cancel()
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done is closed when the loop has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

func (m *Monitor) run(loopCtx, recordCtx context.Context) {
	defer close(m.done)
	if m.after != nil {
		select {
		case <-m.after:
		case <-loopCtx.Done():
			return
		}
	}

	m.log.Info("monitor started", "url", m.src.Address)
	defer m.log.Info("monitor stopped")

	for {
		if loopCtx.Err() != nil {
			return
		}

		m.cycle(loopCtx, recordCtx)

		select {
		case <-loopCtx.Done():
			return
		case <-time.After(m.currentSettings().PollInterval()):
		}
	}
}

// cycle runs one detection and, on a hit, one recording. It always leaves
// the monitor Idle and never panics.
func (m *Monitor) cycle(loopCtx, recordCtx context.Context) {
	if m.State() == Recording {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("monitor cycle panicked", "panic", r)
		}
		m.setState(Idle)
	}()

	m.setState(Checking)
	now := time.Now()
	m.lastCheck.Store(&now)

	live, res := m.checker.CheckLive(loopCtx, m.src.Address)
	if !live || res == nil {
		m.log.Debug("not live")
		return
	}
	m.lastLive.Store(res)

	m.setState(Recording)
	m.log.Info("live broadcast detected, recording", "video_id", res.VideoID, "title", res.Title, "url", res.URL)

	settings := m.currentSettings()
	name := httputil.SanitizeDirName(m.src.Name)
	ok := m.recorder.Record(recordCtx, record.Request{
		URL:      res.URL,
		Prefix:   name + LiveSuffix,
		Dir:      filepath.Join(settings.RootDirectory, name),
		Format:   m.src.FormatOrDefault(),
		Settings: settings,
	})
	if ok {
		m.log.Info("recording session ended", "video_id", res.VideoID)
	} else {
		m.log.Warn("recording session failed", "video_id", res.VideoID)
	}
}

func (m *Monitor) currentSettings() source.Settings {
	if m.settings == nil {
		return source.DefaultSettings()
	}
	return m.settings()
}
