// Package netmon tracks whether the upload backend is reachable.
//
// Two sources feed the monitor: an OS level hint pushed through Signal and
// an active probe run every interval. The probe is authoritative; a negative
// hint only takes the monitor offline early, a positive one asks for an
// immediate probe. Listeners see edges only, never repeated states.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/logging"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 1500 * time.Millisecond
)

// Prober checks one reachability path. nil means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

type TransitionFunc func(wasOnline, isOnline bool)

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// Hint is polled on every tick when set. It reports OS level link state.
	Hint func() bool
	// StartOffline makes the monitor assume no connectivity until the first
	// successful probe.
	StartOffline bool
}

type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []TransitionFunc

	// transitions are delivered one at a time, in order
	transMu sync.Mutex

	probers  []Prober
	interval time.Duration
	timeout  time.Duration
	hint     func() bool
	wake     chan struct{}
	log      logging.Logger
}

func New(log logging.Logger, opts Options, probers ...Prober) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Monitor{
		online:   !opts.StartOffline,
		probers:  probers,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		hint:     opts.Hint,
		wake:     make(chan struct{}, 1),
		log:      log.With("component", "netmon"),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnTransition registers fn. Listeners run synchronously on the goroutine
// that observed the change and must not block.
func (m *Monitor) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Signal pushes an OS level connectivity hint.
func (m *Monitor) Signal(online bool) {
	if !online {
		m.set(context.Background(), false, "hint")
		return
	}
	if len(m.probers) == 0 {
		m.set(context.Background(), true, "hint")
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-m.wake:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe round synchronously.
func (m *Monitor) Check(ctx context.Context) {
	m.check(ctx)
}

func (m *Monitor) check(ctx context.Context) {
	if m.hint != nil && !m.hint() {
		m.set(ctx, false, "hint")
		return
	}
	if len(m.probers) == 0 {
		if m.hint != nil {
			m.set(ctx, true, "hint")
		}
		return
	}
	m.set(ctx, m.probe(ctx), "probe")
}

// probe reports true as soon as any prober succeeds.
func (m *Monitor) probe(ctx context.Context) bool {
	for _, p := range m.probers {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := p.Probe(pctx)
		cancel()

		if err == nil {
			return true
		}
		m.log.Debug(ctx, "probe failed", "error", err)
	}
	return false
}

func (m *Monitor) set(ctx context.Context, online bool, source string) {
	m.transMu.Lock()
	defer m.transMu.Unlock()

	m.mu.Lock()
	was := m.online
	if was == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := m.listeners
	m.mu.Unlock()

	if online {
		m.log.Info(ctx, "connectivity restored", "source", source)
	} else {
		m.log.Warn(ctx, "connectivity lost", "source", source)
	}

	for _, fn := range listeners {
		fn(was, online)
	}
}
