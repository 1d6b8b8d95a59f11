package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ConnectionStatus reports whether a wallet is attached
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
)

func (s ConnectionStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ConnectionState is the wallet status as reported by the connection provider.
// A zero Address or ChainID means the provider did not report one.
type ConnectionState struct {
	Status  ConnectionStatus `json:"status"`
	Address common.Address   `json:"address"`
	ChainID int64            `json:"chainId,omitempty"`
}

// DisconnectedState returns the initial connection state
func DisconnectedState() ConnectionState {
	return ConnectionState{Status: Disconnected}
}

// IsConnected returns true when the wallet is attached
func (c ConnectionState) IsConnected() bool {
	return c.Status == Connected
}

// HasAddress returns true when the provider reported an account
func (c ConnectionState) HasAddress() bool {
	return c.Status == Connected && c.Address != (common.Address{})
}

// OnChain reports whether the wallet is connected to chainID
func (c ConnectionState) OnChain(chainID int64) bool {
	return c.Status == Connected && c.ChainID != 0 && c.ChainID == chainID
}

// CompliancePhase is the externally observed state of the network supervisor
type CompliancePhase int

const (
	PhaseUnknown CompliancePhase = iota
	PhaseCompliant
	PhaseNonCompliant
)

func (p CompliancePhase) String() string {
	switch p {
	case PhaseCompliant:
		return "compliant"
	case PhaseNonCompliant:
		return "non-compliant"
	default:
		return "unknown"
	}
}

// ComplianceState is owned by the network supervisor and published on every change
type ComplianceState struct {
	Phase          CompliancePhase `json:"phase"`
	IsCompliant    bool            `json:"isCompliant"`
	WarningVisible bool            `json:"warningVisible"`
	SwitchInFlight bool            `json:"switchInFlight"`
	LastError      ErrorKind       `json:"lastError"`
	Message        string          `json:"message,omitempty"` // user-visible, set only by manual failures
	ChainID        int64           `json:"chainId,omitempty"` // chain the wallet is currently on
}

// Trigger identifies who asked for a network switch
type Trigger int

const (
	Automatic Trigger = iota
	Manual
)

func (t Trigger) String() string {
	if t == Manual {
		return "manual"
	}
	return "automatic"
}

// BalancePhase is the lifecycle of the displayed token balance
type BalancePhase int

const (
	BalanceIdle BalancePhase = iota
	BalanceLoading
	BalanceReady
	BalanceBlocked
)

func (p BalancePhase) String() string {
	switch p {
	case BalanceLoading:
		return "loading"
	case BalanceReady:
		return "ready"
	case BalanceBlocked:
		return "blocked"
	default:
		return "idle"
	}
}

// BalanceState is owned by the balance watcher. Value is only valid in BalanceReady.
type BalanceState struct {
	Phase  BalancePhase        `json:"phase"`
	Value  decimal.NullDecimal `json:"value"`
	Raw    *big.Int            `json:"raw,omitempty"` // token base units
	Symbol string              `json:"symbol,omitempty"`
	Err    ErrorKind           `json:"error"`
}

// PurchaseStatus is the outcome reported when a purchase popup closes
type PurchaseStatus int

const (
	// PurchaseAssumedSuccess is reported when the popup closed on its own. The
	// provider gives no completion signal, so a closed window and a finished
	// purchase look the same.
	PurchaseAssumedSuccess PurchaseStatus = iota
	PurchaseCancelled
)

func (s PurchaseStatus) String() string {
	if s == PurchaseCancelled {
		return "cancelled"
	}
	return "completed"
}

// PurchaseResult is emitted once per popup session that resolves
type PurchaseResult struct {
	SessionID string         `json:"sessionId"`
	Address   common.Address `json:"address"`
	Status    PurchaseStatus `json:"status"`
	OpenedAt  time.Time      `json:"openedAt"`
	ClosedAt  time.Time      `json:"closedAt"`
}
