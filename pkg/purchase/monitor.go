// Package purchase opens the external fiat purchase flow and detects when the
// user is done with it.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	"github.com/sigweihq/walletsession/pkg/config"
	"github.com/sigweihq/walletsession/pkg/metrics"
	"github.com/sigweihq/walletsession/pkg/types"
	"github.com/sigweihq/walletsession/pkg/utils"
)

var (
	errNoAddress     = errors.New("a connected wallet address is required")
	errMonitorClosed = errors.New("purchase monitor is closed")
)

// CompletionHandler is called once for every session that resolves
type CompletionHandler func(types.PurchaseResult)

// Monitor tracks at most one purchase popup at a time
type Monitor struct {
	builder    *URLBuilder
	spawner    Spawner
	interval   time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	metrics    metrics.Recorder
	onComplete CompletionHandler
	feed       event.Feed

	mu      sync.Mutex
	current *Session
	closed  bool
}

// Session is one opened popup. It is torn down exactly once, either by
// detecting the closed popup or by Close.
type Session struct {
	ID       string
	Address  common.Address
	URL      string
	OpenedAt time.Time

	monitor  *Monitor
	handle   Handle
	timer    *clock.Timer
	done     bool
	resolved bool
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithMetrics records popup outcomes and session length
func WithMetrics(recorder metrics.Recorder) Option {
	return func(m *Monitor) { m.metrics = recorder }
}

// WithClock sets the clock driving the closed check
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithCompletionHandler registers fn in addition to the Subscribe feed
func WithCompletionHandler(fn CompletionHandler) Option {
	return func(m *Monitor) { m.onComplete = fn }
}

// NewMonitor creates a monitor that opens cfg's provider through spawner
func NewMonitor(cfg config.PurchaseConfig, spawner Spawner, opts ...Option) (*Monitor, error) {
	builder, err := NewURLBuilder(cfg)
	if err != nil {
		return nil, err
	}
	if spawner == nil {
		return nil, errors.New("purchase spawner is required")
	}

	m := &Monitor{
		builder:  builder,
		spawner:  spawner,
		interval: cfg.PollInterval,
		clock:    clock.New(),
		logger:   slog.Default(),
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.metrics == nil {
		m.metrics = metrics.NoopRecorder{}
	}
	if m.interval <= 0 {
		m.interval = time.Second
	}
	return m, nil
}

// Subscribe delivers every resolved purchase on ch
func (m *Monitor) Subscribe(ch chan<- types.PurchaseResult) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Current returns the active session, if any
func (m *Monitor) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Open spawns the purchase flow for address. A refused spawn is returned as
// an error wrapping types.ErrPopupBlocked and starts no polling. An active
// session is torn down before the new one is spawned.
func (m *Monitor) Open(ctx context.Context, address common.Address) (*Session, error) {
	if address == (common.Address{}) {
		return nil, errNoAddress
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errMonitorClosed
	}
	if m.current != nil {
		m.current.stopLocked()
		m.current = nil
	}
	m.mu.Unlock()

	purchaseURL := m.builder.Build(address)
	handle, err := m.spawner.Spawn(ctx, purchaseURL)
	if err != nil {
		if !errors.Is(err, types.ErrPopupBlocked) {
			err = fmt.Errorf("%w: %w", types.ErrPopupBlocked, err)
		}
		m.metrics.IncCounter(metrics.PopupBlocked, nil)
		m.logger.Warn("purchase popup blocked", "address", utils.ShortAddress(address), "error", err)
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		Address:  address,
		URL:      purchaseURL,
		OpenedAt: m.clock.Now(),
		monitor:  m,
		handle:   handle,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errMonitorClosed
	}
	if m.current != nil {
		m.current.stopLocked()
	}
	m.current = s
	m.scheduleLocked(s)
	m.mu.Unlock()

	m.metrics.IncCounter(metrics.PopupOpened, nil)
	m.logger.Info("purchase popup opened", "session", s.ID, "address", utils.ShortAddress(address))
	return s, nil
}

// Close tears down the active session and refuses further opens
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.current != nil {
		m.current.stopLocked()
		m.current = nil
	}
}

func (m *Monitor) scheduleLocked(s *Session) {
	s.timer = m.clock.AfterFunc(m.interval, func() {
		m.tick(s)
	})
}

func (m *Monitor) tick(s *Session) {
	m.mu.Lock()
	if s.done {
		m.mu.Unlock()
		return
	}
	s.timer = nil
	if !s.handle.IsClosed() {
		m.scheduleLocked(s)
		m.mu.Unlock()
		return
	}

	s.done = true
	s.resolved = true
	if m.current == s {
		m.current = nil
	}
	result := types.PurchaseResult{
		SessionID: s.ID,
		Address:   s.Address,
		Status:    types.PurchaseAssumedSuccess,
		OpenedAt:  s.OpenedAt,
		ClosedAt:  m.clock.Now(),
	}
	onComplete := m.onComplete
	m.mu.Unlock()

	m.metrics.IncCounter(metrics.PopupResolved, nil)
	m.metrics.ObserveLatency(metrics.PopupSessionTime, result.ClosedAt.Sub(result.OpenedAt), nil)
	m.logger.Info("purchase popup closed, assuming purchase completed", "session", s.ID)

	m.feed.Send(result)
	if onComplete != nil {
		onComplete(result)
	}
}

// Resolved reports whether the popup was seen closed
func (s *Session) Resolved() bool {
	s.monitor.mu.Lock()
	defer s.monitor.mu.Unlock()
	return s.resolved
}

// Close stops watching the popup without reporting a result. Safe to call
// more than once.
func (s *Session) Close() {
	m := s.monitor
	m.mu.Lock()
	defer m.mu.Unlock()

	s.stopLocked()
	if m.current == s {
		m.current = nil
	}
}

func (s *Session) stopLocked() {
	if s.done {
		return
	}
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
