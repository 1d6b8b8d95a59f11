package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sigweihq/walletsession/pkg/config"
	"github.com/sigweihq/walletsession/pkg/types"
	"github.com/sigweihq/walletsession/pkg/utils"
)

// JSON-RPC error code for a reverted eth_call
const errCodeExecutionReverted = 3

// DialFunc opens a JSON-RPC connection to a ledger endpoint
type DialFunc func(ctx context.Context, endpoint string) (*rpc.Client, error)

// DefaultDial dials HTTP endpoints through a client with bounded timeouts and no redirects
func DefaultDial(ctx context.Context, endpoint string) (*rpc.Client, error) {
	return rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(utils.CreateHTTPClientWithTimeouts()))
}

// RPCClient reads token balances from the ledger of a single chain. Every
// request is bounded by a timeout and retried on another endpoint after a
// fixed delay.
type RPCClient struct {
	chainID        int64
	endpoints      *EndpointSet
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	dial           DialFunc
	clock          clock.Clock
	logger         *slog.Logger
}

// Option configures an RPCClient
type Option func(*RPCClient)

// WithDialer replaces DefaultDial
func WithDialer(dial DialFunc) Option {
	return func(r *RPCClient) { r.dial = dial }
}

// WithClock sets the clock used for retry delays
func WithClock(c clock.Clock) Option {
	return func(r *RPCClient) { r.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *RPCClient) { r.logger = logger }
}

// NewRPCClient creates a ledger reader for chainID using the endpoints and
// retry policy in cfg
func NewRPCClient(chainID int64, cfg config.LedgerConfig, opts ...Option) *RPCClient {
	r := &RPCClient{
		chainID:        chainID,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		requestTimeout: cfg.RequestTimeout,
		dial:           DefaultDial,
		clock:          clock.New(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.endpoints = NewEndpointSet(cfg.Endpoints, r.dial, r.logger)
	return r
}

// ChainID returns the chain this client reads from
func (r *RPCClient) ChainID() int64 {
	return r.chainID
}

// Endpoints exposes the endpoint set so callers can trigger health checks
func (r *RPCClient) Endpoints() *EndpointSet {
	return r.endpoints
}

// ReadBalance returns the raw balance of owner. The zero token address reads
// the native currency balance. Exhausting every attempt yields an error
// matching types.ErrBalanceQueryUnavailable.
func (r *RPCClient) ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var data []byte
	if token != (common.Address{}) {
		var err error
		if data, err = packBalanceOf(owner); err != nil {
			return nil, err
		}
	}

	var balance *big.Int
	err := r.withFailover(ctx, "balanceOf", func(ctx context.Context, client *ethclient.Client) error {
		if data == nil {
			b, err := client.BalanceAt(ctx, owner, nil)
			if err != nil {
				return err
			}
			balance = b
			return nil
		}

		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return err
		}
		b, err := unpackBalanceOf(out)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: chain %d: %w", types.ErrBalanceQueryUnavailable, r.chainID, err)
	}
	return balance, nil
}

// ReadDecimals returns the decimals() of an ERC-20 token
func (r *RPCClient) ReadDecimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := parsedERC20.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack function call: %w", err)
	}

	var decimals uint8
	err = r.withFailover(ctx, "decimals", func(ctx context.Context, client *ethclient.Client) error {
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return err
		}
		decimals, err = unpackDecimals(out)
		return err
	})
	return decimals, err
}

// VerifyChain checks that the endpoints serve the configured chain
func (r *RPCClient) VerifyChain(ctx context.Context) error {
	return r.withFailover(ctx, "chainId", func(ctx context.Context, client *ethclient.Client) error {
		id, err := client.ChainID(ctx)
		if err != nil {
			return err
		}
		if !id.IsInt64() || id.Int64() != r.chainID {
			return &ChainMismatchError{Expected: r.chainID, Actual: id.Int64()}
		}
		return nil
	})
}

// IsHealthy reports whether endpoint answers eth_blockNumber
func (r *RPCClient) IsHealthy(ctx context.Context, endpoint string) bool {
	return r.endpoints.isEndpointHealthy(ctx, endpoint)
}

// withFailover runs fn against up to 1+maxRetries endpoints
// Uses random start position among healthy endpoints for load balancing
func (r *RPCClient) withFailover(ctx context.Context, op string, fn func(context.Context, *ethclient.Client) error) error {
	endpoints, healthy := r.endpoints.snapshot()
	if len(endpoints) == 0 {
		return fmt.Errorf("no RPC endpoints available for chain %d", r.chainID)
	}
	if healthy == 0 {
		healthy = len(endpoints)
	}

	// Start at a random position for load balancing
	startIdx := rand.Intn(healthy)

	var lastErr error
	for i := 0; i <= r.maxRetries; i++ {
		if i > 0 && r.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.retryDelay):
			}
		}

		// Wrap around using modulo for round-robin
		endpoint := endpoints[(startIdx+i)%len(endpoints)]

		err := r.attempt(ctx, endpoint, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = &RPCError{Endpoint: endpoint, Err: err}
		r.logger.Debug("ledger request failed",
			"op", op,
			"chainID", r.chainID,
			"endpoint", endpoint,
			"attempt", i+1,
			"error", err)

		if !shouldRetry(err) {
			break
		}
	}

	return lastErr
}

func (r *RPCClient) attempt(ctx context.Context, endpoint string, fn func(context.Context, *ethclient.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	rc, err := r.dial(ctx, endpoint)
	if err != nil {
		return err
	}
	client := ethclient.NewClient(rc)
	defer client.Close()

	return fn(ctx, client)
}

// shouldRetry determines if an error warrants trying another endpoint
func shouldRetry(err error) bool {
	var mismatch *ChainMismatchError
	if errors.As(err, &mismatch) {
		return false
	}
	if errors.Is(err, errNoContractCode) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == errCodeExecutionReverted {
		return false
	}
	return true
}
