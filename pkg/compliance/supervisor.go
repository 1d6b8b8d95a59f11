// Package compliance keeps a connected wallet on the one supported network.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/event"

	"github.com/sigweihq/walletsession/pkg/chains"
	"github.com/sigweihq/walletsession/pkg/config"
	"github.com/sigweihq/walletsession/pkg/metrics"
	"github.com/sigweihq/walletsession/pkg/types"
)

// ChainSwitcher moves the wallet to another chain
type ChainSwitcher interface {
	SwitchChain(ctx context.Context, chainID int64) error
}

// Disconnector ends the wallet connection
type Disconnector interface {
	Disconnect(ctx context.Context) error
}

// Supervisor derives ComplianceState from connection changes, schedules one
// automatic switch after the wallet lands on a wrong chain and guards against
// concurrent switch attempts.
//
// Every reset (disconnect, becoming compliant, Close) bumps a generation
// counter. Switch completions and timers carry the generation they were
// started under and are ignored once it has moved on.
type Supervisor struct {
	target        chains.Chain
	settleDelay   time.Duration
	switchTimeout time.Duration
	switcher      ChainSwitcher
	disconnector  Disconnector
	clock         clock.Clock
	logger        *slog.Logger
	metrics       metrics.Recorder

	feed   event.Feed
	sendMu sync.Mutex // orders state changes with their delivery

	mu           sync.Mutex
	state        types.ComplianceState
	conn         types.ConnectionState
	generation   uint64
	autoTimer    *clock.Timer
	cancelSwitch context.CancelFunc
	closed       bool
	inflight     sync.WaitGroup
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithLogger sets the logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithMetrics records switch attempts, failures and latency
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Supervisor) { s.metrics = recorder }
}

// WithClock sets the clock driving the settle delay
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithDisconnector sets what Disconnect calls after resetting the supervisor
func WithDisconnector(d Disconnector) Option {
	return func(s *Supervisor) { s.disconnector = d }
}

// NewSupervisor creates a supervisor for target. switcher is called for every
// switch attempt.
func NewSupervisor(target chains.Chain, cfg config.ComplianceConfig, switcher ChainSwitcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		target:        target,
		settleDelay:   cfg.SettleDelay,
		switchTimeout: cfg.SwitchTimeout,
		switcher:      switcher,
		clock:         clock.New(),
		logger:        slog.Default(),
		metrics:       metrics.NoopRecorder{},
		conn:          types.DisconnectedState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.NoopRecorder{}
	}
	return s
}

// State returns the current compliance snapshot
func (s *Supervisor) State() types.ComplianceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe delivers every state change on ch. Receivers must keep up;
// delivery blocks the supervisor.
func (s *Supervisor) Subscribe(ch chan<- types.ComplianceState) event.Subscription {
	return s.feed.Subscribe(ch)
}

// OnConnectionChanged recomputes compliance for state
func (s *Supervisor) OnConnectionChanged(state types.ConnectionState) {
	s.update(func() {
		if s.closed {
			return
		}
		s.conn = state

		if !state.IsConnected() {
			s.resetLocked()
			return
		}

		compliant := state.OnChain(s.target.ID)
		s.state.IsCompliant = compliant
		s.state.ChainID = state.ChainID

		switch {
		case compliant && s.state.Phase != types.PhaseCompliant:
			s.generation++
			s.stopAutoSwitchLocked()
			s.cancelSwitchLocked()
			s.state.Phase = types.PhaseCompliant
			s.state.WarningVisible = false
			s.state.SwitchInFlight = false
			s.state.LastError = types.ErrKindNone
			s.state.Message = ""

		case !compliant && s.state.Phase != types.PhaseNonCompliant:
			s.state.Phase = types.PhaseNonCompliant
			s.state.WarningVisible = true
			s.scheduleAutoSwitchLocked()
		}
	})
}

// RequestSwitch starts a switch to the target chain. It returns false without
// doing anything when the wallet is disconnected, already compliant or a
// switch is in flight.
func (s *Supervisor) RequestSwitch(trigger types.Trigger) bool {
	var (
		ctx     context.Context
		gen     uint64
		started bool
	)
	s.update(func() {
		if s.closed || !s.conn.IsConnected() || s.state.IsCompliant || s.state.SwitchInFlight {
			return
		}
		if trigger == types.Manual {
			s.stopAutoSwitchLocked()
		}

		s.state.SwitchInFlight = true
		gen = s.generation
		ctx, s.cancelSwitch = context.WithTimeout(context.Background(), s.switchTimeout)
		s.inflight.Add(1)
		started = true
	})

	if !started {
		s.logger.Debug("switch request ignored", "trigger", trigger.String())
		return false
	}

	s.logger.Info("requesting network switch",
		"trigger", trigger.String(),
		"chainID", s.target.ID,
		"chain", s.target.Name)
	s.metrics.IncCounter(metrics.SwitchAttempts, map[string]string{"trigger": trigger.String()})

	go s.runSwitch(ctx, gen, trigger)
	return true
}

// DismissWarning hides the wrong-network warning until the next transition
func (s *Supervisor) DismissWarning() {
	s.update(func() {
		s.state.WarningVisible = false
		s.state.Message = ""
	})
}

// Disconnect resets the supervisor and then disconnects the wallet. Switches
// still running are cancelled and their results dropped.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	s.update(func() {
		s.conn = types.DisconnectedState()
		s.resetLocked()
	})

	if s.disconnector == nil {
		return nil
	}
	return s.disconnector.Disconnect(ctx)
}

// Close stops timers, cancels an in-flight switch and waits for it to return
func (s *Supervisor) Close() {
	s.update(func() {
		if s.closed {
			return
		}
		s.resetLocked()
		s.closed = true
	})
	s.inflight.Wait()
}

func (s *Supervisor) runSwitch(ctx context.Context, gen uint64, trigger types.Trigger) {
	defer s.inflight.Done()

	labels := map[string]string{"trigger": trigger.String()}
	start := s.clock.Now()
	err := s.switcher.SwitchChain(ctx, s.target.ID)
	s.metrics.ObserveLatency(metrics.SwitchLatency, s.clock.Now().Sub(start), labels)

	discarded := false
	s.update(func() {
		if gen != s.generation || s.closed {
			discarded = true
			return
		}
		s.cancelSwitchLocked()
		s.state.SwitchInFlight = false

		if err == nil {
			s.state.WarningVisible = false
			s.state.LastError = types.ErrKindNone
			s.state.Message = ""
			return
		}

		s.state.LastError = types.ErrKindNetworkSwitchFailed
		if trigger == types.Manual {
			// a manual retry shows the warning again even after a dismiss
			s.state.WarningVisible = !s.state.IsCompliant
			s.state.Message = s.failureMessage(err)
		}
	})

	switch {
	case discarded:
		s.metrics.IncCounter(metrics.SwitchDiscarded, labels)
		s.logger.Debug("discarding stale switch result", "trigger", trigger.String(), "error", err)
	case err != nil:
		s.metrics.IncCounter(metrics.SwitchFailures, labels)
		s.logger.Warn("network switch failed",
			"trigger", trigger.String(),
			"chainID", s.target.ID,
			"error", err)
	default:
		s.logger.Info("network switch accepted", "trigger", trigger.String(), "chainID", s.target.ID)
	}
}

func (s *Supervisor) failureMessage(err error) string {
	var rejected interface{ UserRejected() bool }
	if errors.As(err, &rejected) && rejected.UserRejected() {
		return fmt.Sprintf("Switch to %s was rejected in your wallet.", s.target.Name)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Your wallet did not respond. Please switch to %s manually.", s.target.Name)
	}
	return fmt.Sprintf("Could not switch to %s. Please switch networks in your wallet.", s.target.Name)
}

func (s *Supervisor) scheduleAutoSwitchLocked() {
	s.stopAutoSwitchLocked()
	gen := s.generation
	s.autoTimer = s.clock.AfterFunc(s.settleDelay, func() {
		s.fireAutoSwitch(gen)
	})
}

func (s *Supervisor) fireAutoSwitch(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.closed || s.autoTimer == nil {
		s.mu.Unlock()
		return
	}
	s.autoTimer = nil
	s.mu.Unlock()

	s.RequestSwitch(types.Automatic)
}

func (s *Supervisor) stopAutoSwitchLocked() {
	if s.autoTimer != nil {
		s.autoTimer.Stop()
		s.autoTimer = nil
	}
}

func (s *Supervisor) cancelSwitchLocked() {
	if s.cancelSwitch != nil {
		s.cancelSwitch()
		s.cancelSwitch = nil
	}
}

// resetLocked returns to the initial state and invalidates outstanding work
func (s *Supervisor) resetLocked() {
	s.generation++
	s.stopAutoSwitchLocked()
	s.cancelSwitchLocked()
	s.state = types.ComplianceState{}
}

// update applies fn under the state lock and publishes the result if it changed
func (s *Supervisor) update(fn func()) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	prev := s.state
	fn()
	next := s.state
	s.mu.Unlock()

	if next != prev {
		s.feed.Send(next)
	}
}
