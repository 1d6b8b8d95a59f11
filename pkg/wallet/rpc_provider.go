package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sigweihq/walletsession/pkg/chains"
	"github.com/sigweihq/walletsession/pkg/constants"
	"github.com/sigweihq/walletsession/pkg/types"
	"github.com/sigweihq/walletsession/pkg/utils"
)

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

// RPCProvider talks to a wallet that exposes the EIP-1193 methods over
// JSON-RPC. Account and chain changes are discovered by polling.
type RPCProvider struct {
	client   *rpc.Client
	registry *chains.Registry
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	feed event.Feed

	pollMu  sync.Mutex // one poll at a time, in order
	mu      sync.Mutex
	state   types.ConnectionState
	timer   *clock.Timer
	revoked bool // disconnected locally until Connect
	closed  bool
}

// ProviderOption configures an RPCProvider
type ProviderOption func(*RPCProvider)

// WithPollInterval sets how often accounts and chain are re-read. Zero disables polling.
func WithPollInterval(d time.Duration) ProviderOption {
	return func(p *RPCProvider) { p.interval = d }
}

// WithProviderClock sets the clock driving the poll timer
func WithProviderClock(c clock.Clock) ProviderOption {
	return func(p *RPCProvider) { p.clock = c }
}

// WithProviderLogger sets the logger
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *RPCProvider) { p.logger = logger }
}

// NewRPCProvider wraps an established client. registry supplies the chain
// metadata sent with wallet_addEthereumChain; it may be nil.
func NewRPCProvider(client *rpc.Client, registry *chains.Registry, opts ...ProviderOption) *RPCProvider {
	p := &RPCProvider{
		client:   client,
		registry: registry,
		clock:    clock.New(),
		logger:   slog.Default(),
		interval: constants.WalletPollInterval,
		state:    types.DisconnectedState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// DialRPCProvider connects to a wallet endpoint
func DialRPCProvider(ctx context.Context, endpoint string, registry *chains.Registry, opts ...ProviderOption) (*RPCProvider, error) {
	if err := utils.ValidateProviderURL(endpoint); err != nil {
		return nil, err
	}
	client, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(utils.CreateHTTPClientWithTimeouts()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet endpoint: %w", err)
	}
	return NewRPCProvider(client, registry, opts...), nil
}

// Start reads the initial state and begins polling
func (p *RPCProvider) Start(ctx context.Context) error {
	if err := p.Poll(ctx); err != nil {
		return err
	}
	p.schedule()
	return nil
}

// Poll reads eth_accounts and eth_chainId and publishes the result. A failed
// read counts as a lost connection.
func (p *RPCProvider) Poll(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	state, err := p.read(ctx)
	if err != nil {
		state = types.DisconnectedState()
	}
	p.publish(state)
	return err
}

// Connect asks the wallet for account access (eth_requestAccounts)
func (p *RPCProvider) Connect(ctx context.Context) error {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return fmt.Errorf("eth_requestAccounts: %w", err)
	}

	p.mu.Lock()
	p.revoked = false
	p.mu.Unlock()

	return p.Poll(ctx)
}

func (p *RPCProvider) read(ctx context.Context) (types.ConnectionState, error) {
	p.mu.Lock()
	revoked := p.revoked
	p.mu.Unlock()
	if revoked {
		return types.DisconnectedState(), nil
	}

	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return types.ConnectionState{}, fmt.Errorf("eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return types.DisconnectedState(), nil
	}

	var chainID hexutil.Big
	if err := p.client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		return types.ConnectionState{}, fmt.Errorf("eth_chainId: %w", err)
	}

	return types.ConnectionState{
		Status:  types.Connected,
		Address: accounts[0],
		ChainID: chainID.ToInt().Int64(),
	}, nil
}

func (p *RPCProvider) publish(state types.ConnectionState) {
	p.mu.Lock()
	if p.closed || p.state == state {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.mu.Unlock()

	p.feed.Send(state)
}

func (p *RPCProvider) schedule() {
	if p.interval <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.timer = p.clock.AfterFunc(p.interval, p.tick)
}

func (p *RPCProvider) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.HealthCheckTimeout)
	defer cancel()

	if err := p.Poll(ctx); err != nil {
		p.logger.Warn("wallet poll failed", "error", err)
	}
	p.schedule()
}

func (p *RPCProvider) State() types.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *RPCProvider) SubscribeConnection(ch chan<- types.ConnectionState) event.Subscription {
	return p.feed.Subscribe(ch)
}

// SwitchChain sends wallet_switchEthereumChain. When the wallet does not know
// the chain and the registry does, the chain is added and the switch retried.
func (p *RPCProvider) SwitchChain(ctx context.Context, chainID int64) error {
	params := switchChainParams{ChainID: hexutil.EncodeUint64(uint64(chainID))}

	err := p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params)
	if err != nil && errorCode(err) == constants.ProviderErrUnrecognizedChain && p.registry != nil {
		chain, lookupErr := p.registry.Get(chainID)
		if lookupErr != nil {
			return newSwitchError(chainID, err)
		}

		p.logger.Info("wallet does not know chain, adding it", "chainID", chainID, "name", chain.Name)
		if addErr := p.client.CallContext(ctx, nil, "wallet_addEthereumChain", chain.AddChainParams()); addErr != nil {
			return newSwitchError(chainID, addErr)
		}
		err = p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params)
	}
	if err != nil {
		return newSwitchError(chainID, err)
	}

	// publish the new chain now instead of waiting for the next tick
	if pollErr := p.Poll(ctx); pollErr != nil {
		p.logger.Debug("poll after switch failed", "error", pollErr)
	}
	return nil
}

// Disconnect revokes the account permission. Wallets without
// wallet_revokePermissions are disconnected locally only.
func (p *RPCProvider) Disconnect(ctx context.Context) error {
	err := p.client.CallContext(ctx, nil, "wallet_revokePermissions", map[string]struct{}{"eth_accounts": {}})
	if err != nil && errorCode(err) == constants.ProviderErrMethodNotFound {
		err = nil
	}

	p.pollMu.Lock()
	p.mu.Lock()
	p.revoked = true
	p.mu.Unlock()
	p.publish(types.DisconnectedState())
	p.pollMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to revoke wallet permissions: %w", err)
	}
	return nil
}

// Close stops polling and closes the client
func (p *RPCProvider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	p.client.Close()
}
