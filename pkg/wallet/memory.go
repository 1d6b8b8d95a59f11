package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/sigweihq/walletsession/pkg/types"
)

// SwitchFunc decides the outcome of a chain switch on a MemoryProvider
type SwitchFunc func(ctx context.Context, chainID int64) error

// MemoryProvider is an in-process wallet driven by its methods. It is used to
// embed the session in hosts that already track the wallet themselves.
type MemoryProvider struct {
	feed event.Feed

	sendMu        sync.Mutex // orders updates with their delivery
	mu            sync.Mutex
	state         types.ConnectionState
	onSwitch      SwitchFunc
	disconnectErr error
}

// NewMemoryProvider returns a disconnected provider whose switches succeed
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{state: types.DisconnectedState()}
}

func (p *MemoryProvider) State() types.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *MemoryProvider) SubscribeConnection(ch chan<- types.ConnectionState) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Connect reports a connected account on chainID
func (p *MemoryProvider) Connect(address common.Address, chainID int64) {
	p.update(func(s *types.ConnectionState) {
		*s = types.ConnectionState{Status: types.Connected, Address: address, ChainID: chainID}
	})
}

// SetChain reports a chain change made in the wallet
func (p *MemoryProvider) SetChain(chainID int64) {
	p.update(func(s *types.ConnectionState) {
		if s.IsConnected() {
			s.ChainID = chainID
		}
	})
}

// SetAccount reports an account change made in the wallet
func (p *MemoryProvider) SetAccount(address common.Address) {
	p.update(func(s *types.ConnectionState) {
		if s.IsConnected() {
			s.Address = address
		}
	})
}

// Drop reports a loss of connection not requested by the session
func (p *MemoryProvider) Drop() {
	p.update(func(s *types.ConnectionState) {
		*s = types.DisconnectedState()
	})
}

// OnSwitch replaces the switch behavior. A nil fn makes switches succeed.
func (p *MemoryProvider) OnSwitch(fn SwitchFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSwitch = fn
}

// FailDisconnect makes the next disconnects return err
func (p *MemoryProvider) FailDisconnect(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectErr = err
}

// SwitchChain runs the switch behavior and, when it succeeds, moves the
// wallet to chainID
func (p *MemoryProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	fn := p.onSwitch
	connected := p.state.IsConnected()
	p.mu.Unlock()

	if !connected {
		return newSwitchError(chainID, errNotConnected)
	}
	if fn != nil {
		if err := fn(ctx, chainID); err != nil {
			return newSwitchError(chainID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return newSwitchError(chainID, err)
	}

	p.SetChain(chainID)
	return nil
}

func (p *MemoryProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	err := p.disconnectErr
	p.mu.Unlock()

	p.Drop()
	return err
}

func (p *MemoryProvider) update(fn func(*types.ConnectionState)) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	prev := p.state
	fn(&p.state)
	state := p.state
	p.mu.Unlock()

	if state != prev {
		p.feed.Send(state)
	}
}
