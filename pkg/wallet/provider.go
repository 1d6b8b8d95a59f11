// Package wallet observes the connection status of an external wallet and
// exposes its chain-switch and disconnect capabilities.
package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/event"

	"github.com/sigweihq/walletsession/pkg/types"
)

// Provider is the wallet connection the session reacts to
type Provider interface {
	// State returns the provider's current view of the connection
	State() types.ConnectionState

	// SubscribeConnection delivers every change of the connection state
	SubscribeConnection(ch chan<- types.ConnectionState) event.Subscription

	// SwitchChain asks the wallet to move to chainID. Failures wrap
	// types.ErrNetworkSwitchFailed.
	SwitchChain(ctx context.Context, chainID int64) error

	Disconnect(ctx context.Context) error
}

// Listener receives connection changes in the order they were observed
type Listener func(state types.ConnectionState)
