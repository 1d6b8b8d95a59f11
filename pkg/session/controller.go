// Package session wires the wallet observer, the network supervisor, the
// balance watcher and the purchase monitor into one controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/sigweihq/walletsession/pkg/balance"
	"github.com/sigweihq/walletsession/pkg/chains"
	"github.com/sigweihq/walletsession/pkg/compliance"
	"github.com/sigweihq/walletsession/pkg/config"
	"github.com/sigweihq/walletsession/pkg/metrics"
	"github.com/sigweihq/walletsession/pkg/purchase"
	"github.com/sigweihq/walletsession/pkg/types"
	"github.com/sigweihq/walletsession/pkg/utils"
	"github.com/sigweihq/walletsession/pkg/wallet"
)

// WrongNetworkLabel is the indicator text while the wallet is on another chain
const WrongNetworkLabel = "Wrong Network"

const popupBlockedMessage = "The purchase window was blocked. Allow pop-ups for this site and try again."

var errNotConnected = errors.New("wallet is not connected")

// Starter is implemented by providers that need to be started before use
type Starter interface {
	Start(ctx context.Context) error
}

// Snapshot is a consistent-enough view of every component for rendering
type Snapshot struct {
	Connection      types.ConnectionState
	Compliance      types.ComplianceState
	Balance         types.BalanceState
	Indicator       string // empty while disconnected
	PurchaseOpen    bool
	PurchaseMessage string
}

// Controller owns the wallet session for a single target chain
type Controller struct {
	target   chains.Chain
	provider wallet.Provider
	logger   *slog.Logger

	observer   *wallet.Observer
	supervisor *compliance.Supervisor
	watcher    *balance.Watcher
	monitor    *purchase.Monitor

	mu              sync.Mutex
	purchaseMessage string
	started         bool
	closed          bool
}

type options struct {
	logger   *slog.Logger
	metrics  metrics.Recorder
	clock    clock.Clock
	registry *chains.Registry
}

// Option configures a Controller
type Option func(*options)

// WithLogger is passed to every component
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics is passed to every component
func WithMetrics(recorder metrics.Recorder) Option {
	return func(o *options) { o.metrics = recorder }
}

// WithClock drives every timer in the session
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRegistry names chains from r instead of the global registry
func WithRegistry(r *chains.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New builds a controller for cfg. Nothing runs until Start.
func New(cfg config.Config, provider wallet.Provider, reader balance.Reader, spawner purchase.Spawner, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil || reader == nil || spawner == nil {
		return nil, errors.New("provider, balance reader and spawner are required")
	}

	o := options{
		logger:  slog.Default(),
		metrics: metrics.NoopRecorder{},
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metrics.NoopRecorder{}
	}
	if o.registry == nil {
		o.registry = chains.InitGlobalRegistry()
	}

	target, err := o.registry.Get(cfg.TargetChainID)
	if err != nil {
		target = chains.Chain{ID: cfg.TargetChainID, Name: o.registry.Name(cfg.TargetChainID)}
	}

	c := &Controller{
		target:   target,
		provider: provider,
		logger:   o.logger.With("chainID", target.ID),
	}

	c.observer = wallet.NewObserver(provider, o.logger)
	c.supervisor = compliance.NewSupervisor(target, cfg.Compliance, c.observer,
		compliance.WithDisconnector(c.observer),
		compliance.WithLogger(o.logger),
		compliance.WithMetrics(o.metrics),
		compliance.WithClock(o.clock),
	)
	c.watcher = balance.NewWatcher(reader, cfg.Token, cfg.Balance,
		balance.WithLogger(o.logger),
		balance.WithMetrics(o.metrics),
		balance.WithClock(o.clock),
	)
	c.monitor, err = purchase.NewMonitor(cfg.Purchase, spawner,
		purchase.WithLogger(o.logger),
		purchase.WithMetrics(o.metrics),
		purchase.WithClock(o.clock),
		purchase.WithCompletionHandler(c.onPurchaseComplete),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase monitor: %w", err)
	}

	c.observer.AddListener(c.onConnectionChanged)
	return c, nil
}

// Target returns the chain the wallet is kept on
func (c *Controller) Target() chains.Chain {
	return c.target
}

// Start starts the provider if it needs it and begins observing it
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("session is closed")
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("session already started")
	}
	c.started = true
	c.mu.Unlock()

	if s, ok := c.provider.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start wallet provider: %w", err)
		}
	}
	if err := c.observer.Start(); err != nil {
		return err
	}

	c.logger.Info("wallet session started", "network", c.target.Name)
	return nil
}

// Snapshot returns the current state of every component
func (c *Controller) Snapshot() Snapshot {
	conn := c.observer.State()
	comp := c.supervisor.State()

	c.mu.Lock()
	msg := c.purchaseMessage
	c.mu.Unlock()

	return Snapshot{
		Connection:      conn,
		Compliance:      comp,
		Balance:         c.watcher.State(),
		Indicator:       c.indicator(conn, comp),
		PurchaseOpen:    c.monitor.Current() != nil,
		PurchaseMessage: msg,
	}
}

func (c *Controller) indicator(conn types.ConnectionState, comp types.ComplianceState) string {
	switch {
	case !conn.IsConnected():
		return ""
	case comp.IsCompliant:
		return c.target.Name
	default:
		return WrongNetworkLabel
	}
}

func (c *Controller) SubscribeConnection(ch chan<- types.ConnectionState) event.Subscription {
	return c.observer.Subscribe(ch)
}

func (c *Controller) SubscribeCompliance(ch chan<- types.ComplianceState) event.Subscription {
	return c.supervisor.Subscribe(ch)
}

func (c *Controller) SubscribeBalance(ch chan<- types.BalanceState) event.Subscription {
	return c.watcher.Subscribe(ch)
}

func (c *Controller) SubscribePurchases(ch chan<- types.PurchaseResult) event.Subscription {
	return c.monitor.Subscribe(ch)
}

// RequestSwitch asks the wallet to move to the target chain on the user's behalf
func (c *Controller) RequestSwitch() bool {
	return c.supervisor.RequestSwitch(types.Manual)
}

// DismissWarning hides the wrong-network warning and any purchase error
func (c *Controller) DismissWarning() {
	c.supervisor.DismissWarning()

	c.mu.Lock()
	c.purchaseMessage = ""
	c.mu.Unlock()
}

// RefreshBalance re-reads the balance
func (c *Controller) RefreshBalance() {
	c.watcher.Refresh()
}

// BuyTokens opens the purchase flow for the connected address. A blocked
// popup is returned to the caller and recorded as the purchase message.
func (c *Controller) BuyTokens(ctx context.Context) (*purchase.Session, error) {
	conn := c.observer.State()
	if !conn.HasAddress() {
		return nil, errNotConnected
	}

	s, err := c.monitor.Open(ctx, conn.Address)

	c.mu.Lock()
	switch {
	case err == nil:
		c.purchaseMessage = ""
	case errors.Is(err, types.ErrPopupBlocked):
		c.purchaseMessage = popupBlockedMessage
	default:
		c.purchaseMessage = err.Error()
	}
	c.mu.Unlock()

	return s, err
}

// Disconnect resets the session and disconnects the wallet
func (c *Controller) Disconnect(ctx context.Context) error {
	if s := c.monitor.Current(); s != nil {
		s.Close()
	}
	return c.supervisor.Disconnect(ctx)
}

// Close stops every component. The provider itself is left to its owner.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.observer.Stop()
	c.monitor.Close()
	c.supervisor.Close()
	c.watcher.Close()
	c.logger.Info("wallet session closed")
}

func (c *Controller) onConnectionChanged(state types.ConnectionState) {
	c.supervisor.OnConnectionChanged(state)

	var owner common.Address
	if state.HasAddress() {
		owner = state.Address
	}
	c.watcher.Update(owner, c.supervisor.State().IsCompliant)

	if state.IsConnected() {
		c.logger.Debug("wallet session updated", "address", utils.ShortAddress(state.Address), "walletChainID", state.ChainID)
	}
}

func (c *Controller) onPurchaseComplete(result types.PurchaseResult) {
	c.logger.Info("purchase flow finished, refreshing balance", "session", result.SessionID, "status", result.Status.String())
	c.watcher.Refresh()
}
