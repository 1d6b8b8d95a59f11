package wallet

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/sigweihq/walletsession/pkg/types"
)

// Observer keeps the latest connection state reported by a Provider and
// fans changes out to listeners and feed subscribers
type Observer struct {
	provider Provider
	logger   *slog.Logger

	listeners []Listener
	feed      event.Feed

	// dispatchMu serializes state changes with their delivery so that
	// listeners see transitions in order
	dispatchMu sync.Mutex

	mu      sync.Mutex
	state   types.ConnectionState
	sub     event.Subscription
	updates chan types.ConnectionState
	quit    chan struct{}
	done    chan struct{}
	stop    sync.Once
}

// NewObserver creates an observer for provider; it does nothing until Start
func NewObserver(provider Provider, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		provider: provider,
		logger:   logger,
		state:    types.DisconnectedState(),
		updates:  make(chan types.ConnectionState, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddListener registers l. Listeners must be added before Start and must not
// block; they run on the observer's goroutine.
func (o *Observer) AddListener(l Listener) {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Start subscribes to the provider and publishes its current state
func (o *Observer) Start() error {
	o.mu.Lock()
	if o.sub != nil {
		o.mu.Unlock()
		return errors.New("observer already started")
	}
	o.sub = o.provider.SubscribeConnection(o.updates)
	o.mu.Unlock()

	o.apply(o.provider.State())
	go o.loop()
	return nil
}

// State returns the latest observed connection state
func (o *Observer) State() types.ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe delivers every observed change on ch
func (o *Observer) Subscribe(ch chan<- types.ConnectionState) event.Subscription {
	return o.feed.Subscribe(ch)
}

// SwitchChain forwards to the provider
func (o *Observer) SwitchChain(ctx context.Context, chainID int64) error {
	return o.provider.SwitchChain(ctx, chainID)
}

// Disconnect asks the provider to disconnect and resets the observed state to
// Disconnected even when the provider call fails
func (o *Observer) Disconnect(ctx context.Context) error {
	err := o.provider.Disconnect(ctx)
	if err != nil {
		o.logger.Warn("wallet provider disconnect failed", "error", err)
	}
	o.apply(types.DisconnectedState())
	return err
}

// Stop unsubscribes from the provider. The last state stays readable.
func (o *Observer) Stop() {
	o.stop.Do(func() {
		close(o.quit)

		o.mu.Lock()
		sub := o.sub
		o.mu.Unlock()
		if sub == nil {
			return
		}
		<-o.done
		sub.Unsubscribe()
	})
}

func (o *Observer) loop() {
	defer close(o.done)

	o.mu.Lock()
	sub := o.sub
	o.mu.Unlock()

	for {
		select {
		case state := <-o.updates:
			o.apply(state)
		case err := <-sub.Err():
			// a failed subscription is a lost connection
			if err != nil {
				o.logger.Warn("wallet provider subscription failed", "error", err)
			}
			o.apply(types.DisconnectedState())
			return
		case <-o.quit:
			return
		}
	}
}

func (o *Observer) apply(state types.ConnectionState) {
	if !state.IsConnected() {
		state = types.DisconnectedState()
	}

	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	o.mu.Lock()
	if o.state == state {
		o.mu.Unlock()
		return
	}
	prev := o.state
	o.state = state
	o.mu.Unlock()

	o.logger.Debug("wallet connection changed",
		"status", state.Status.String(),
		"address", state.Address.Hex(),
		"chainID", state.ChainID,
		"previousChainID", prev.ChainID)

	for _, l := range o.listeners {
		l(state)
	}
	o.feed.Send(state)
}
