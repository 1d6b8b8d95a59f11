package evm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sigweihq/walletsession/pkg/constants"
)

// EndpointSet holds the ledger endpoints of one chain and keeps responsive
// ones at the front after each health check
type EndpointSet struct {
	endpoints []string
	healthy   int // endpoints[:healthy] passed the last check
	dial      DialFunc
	logger    *slog.Logger
	mu        sync.RWMutex
}

// NewEndpointSet creates a set in configuration order; every endpoint counts
// as healthy until Refresh says otherwise
func NewEndpointSet(endpoints []string, dial DialFunc, logger *slog.Logger) *EndpointSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &EndpointSet{
		endpoints: append([]string(nil), endpoints...),
		healthy:   len(endpoints),
		dial:      dial,
		logger:    logger,
	}
}

// Endpoints returns a copy of the current ordering
func (s *EndpointSet) Endpoints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.endpoints...)
}

func (s *EndpointSet) snapshot() ([]string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.endpoints...), s.healthy
}

// Refresh health checks every endpoint and prioritizes working ones
func (s *EndpointSet) Refresh(ctx context.Context) {
	current := s.Endpoints()

	var healthyEndpoints, unhealthyEndpoints []string
	for _, endpoint := range current {
		if s.isEndpointHealthy(ctx, endpoint) {
			healthyEndpoints = append(healthyEndpoints, endpoint)
		} else {
			unhealthyEndpoints = append(unhealthyEndpoints, endpoint)
		}
	}

	s.mu.Lock()
	// Prioritize healthy endpoints first, then unhealthy as backup
	s.endpoints = append(healthyEndpoints, unhealthyEndpoints...)
	s.healthy = len(healthyEndpoints)
	s.mu.Unlock()

	s.logger.Debug("health check complete",
		"healthy", len(healthyEndpoints),
		"unhealthy", len(unhealthyEndpoints))
}

// isEndpointHealthy performs a simple health check on an RPC endpoint
func (s *EndpointSet) isEndpointHealthy(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	rc, err := s.dial(ctx, endpoint)
	if err != nil {
		return false
	}
	client := ethclient.NewClient(rc)
	defer client.Close()

	_, err = client.BlockNumber(ctx)
	return err == nil
}
