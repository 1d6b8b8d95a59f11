// Package balance reads the session's token balance while the wallet is on
// the supported network.
package balance

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"

	"github.com/sigweihq/walletsession/pkg/config"
	"github.com/sigweihq/walletsession/pkg/metrics"
	"github.com/sigweihq/walletsession/pkg/types"
)

// Reader is the ledger read capability. Implementations own the retry policy.
type Reader interface {
	ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Watcher exposes the balance of the connected address as a BalanceState.
// It never retries on its own; a failed read stays Loading until the address,
// the compliance verdict or an explicit Refresh starts a new one.
type Watcher struct {
	reader   Reader
	token    common.Address
	decimals int32
	symbol   string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	metrics  metrics.Recorder

	feed   event.Feed
	sendMu sync.Mutex

	mu         sync.Mutex
	state      types.BalanceState
	address    common.Address
	compliant  bool
	generation uint64
	cancelRead context.CancelFunc
	pollTimer  *clock.Timer
	closed     bool
	reads      sync.WaitGroup
}

// Option configures a Watcher
type Option func(*Watcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithMetrics records read counts, failures and latency
func WithMetrics(recorder metrics.Recorder) Option {
	return func(w *Watcher) { w.metrics = recorder }
}

// WithClock sets the clock driving the poll interval
func WithClock(c clock.Clock) Option {
	return func(w *Watcher) { w.clock = c }
}

// NewWatcher creates an idle watcher for token
func NewWatcher(reader Reader, token config.TokenConfig, cfg config.BalanceConfig, opts ...Option) *Watcher {
	w := &Watcher{
		reader:   reader,
		token:    common.HexToAddress(token.Address),
		decimals: token.Decimals,
		symbol:   token.Symbol,
		interval: cfg.PollInterval,
		clock:    clock.New(),
		logger:   slog.Default(),
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = metrics.NoopRecorder{}
	}
	w.state = types.BalanceState{Phase: types.BalanceIdle, Symbol: w.symbol}
	return w
}

// State returns the latest balance snapshot
func (w *Watcher) State() types.BalanceState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe delivers every state change on ch
func (w *Watcher) Subscribe(ch chan<- types.BalanceState) event.Subscription {
	return w.feed.Subscribe(ch)
}

// Update tells the watcher who is connected and whether the wallet is on the
// supported network. Without compliance or an address the state is Blocked
// at once and any cached value is dropped.
func (w *Watcher) Update(address common.Address, compliant bool) {
	w.update(func() {
		if w.closed {
			return
		}
		if w.state.Phase != types.BalanceIdle && address == w.address && compliant == w.compliant {
			return
		}
		w.address = address
		w.compliant = compliant

		if !compliant || address == (common.Address{}) {
			w.invalidateLocked()
			w.state = types.BalanceState{Phase: types.BalanceBlocked, Symbol: w.symbol}
			return
		}

		w.state = types.BalanceState{Phase: types.BalanceLoading, Symbol: w.symbol}
		w.startReadLocked()
	})
}

// Refresh re-reads the balance now. A Ready value stays visible until the
// new one arrives. Ignored while Blocked.
func (w *Watcher) Refresh() {
	w.update(func() {
		if w.closed || !w.compliant || w.address == (common.Address{}) {
			return
		}
		if w.state.Phase != types.BalanceReady {
			w.state = types.BalanceState{Phase: types.BalanceLoading, Symbol: w.symbol}
		}
		w.startReadLocked()
	})
}

// Close cancels outstanding reads and stops polling
func (w *Watcher) Close() {
	w.update(func() {
		w.invalidateLocked()
		w.closed = true
	})
	w.reads.Wait()
}

func (w *Watcher) startReadLocked() {
	w.invalidateLocked()

	gen := w.generation
	owner := w.address
	ctx, cancel := context.WithCancel(context.Background())
	w.cancelRead = cancel
	w.reads.Add(1)
	go w.read(ctx, gen, owner)
}

func (w *Watcher) read(ctx context.Context, gen uint64, owner common.Address) {
	defer w.reads.Done()

	w.metrics.IncCounter(metrics.BalanceReads, nil)
	start := w.clock.Now()
	raw, err := w.reader.ReadBalance(ctx, w.token, owner)
	w.metrics.ObserveLatency(metrics.BalanceLatency, w.clock.Now().Sub(start), nil)

	stale := false
	w.update(func() {
		if gen != w.generation || w.closed {
			stale = true
			return
		}
		w.cancelReadLocked()

		if err != nil {
			w.state = types.BalanceState{
				Phase:  types.BalanceLoading,
				Symbol: w.symbol,
				Err:    types.ErrKindBalanceQueryUnavailable,
			}
			return
		}

		w.state = types.BalanceState{
			Phase:  types.BalanceReady,
			Value:  decimal.NewNullDecimal(decimal.NewFromBigInt(raw, -w.decimals)),
			Raw:    raw,
			Symbol: w.symbol,
		}
		w.schedulePollLocked()
	})

	switch {
	case stale:
		w.logger.Debug("discarding stale balance result", "address", owner.Hex(), "error", err)
	case err != nil:
		w.metrics.IncCounter(metrics.BalanceFailures, nil)
		w.logger.Warn("balance query unavailable", "address", owner.Hex(), "token", w.token.Hex(), "error", err)
	}
}

func (w *Watcher) schedulePollLocked() {
	if w.interval <= 0 {
		return
	}
	gen := w.generation
	w.pollTimer = w.clock.AfterFunc(w.interval, func() {
		w.poll(gen)
	})
}

func (w *Watcher) poll(gen uint64) {
	w.update(func() {
		if gen != w.generation || w.closed || w.state.Phase != types.BalanceReady {
			return
		}
		w.pollTimer = nil
		w.startReadLocked()
	})
}

// invalidateLocked drops the in-flight read and the poll timer
func (w *Watcher) invalidateLocked() {
	w.generation++
	w.cancelReadLocked()
	if w.pollTimer != nil {
		w.pollTimer.Stop()
		w.pollTimer = nil
	}
}

func (w *Watcher) cancelReadLocked() {
	if w.cancelRead != nil {
		w.cancelRead()
		w.cancelRead = nil
	}
}

func (w *Watcher) update(fn func()) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	w.mu.Lock()
	prev := w.state
	fn()
	next := w.state
	w.mu.Unlock()

	if !sameState(prev, next) {
		w.feed.Send(next)
	}
}

func sameState(a, b types.BalanceState) bool {
	if a.Phase != b.Phase || a.Symbol != b.Symbol || a.Err != b.Err || a.Value.Valid != b.Value.Valid {
		return false
	}
	if a.Value.Valid && !a.Value.Decimal.Equal(b.Value.Decimal) {
		return false
	}
	return true
}
