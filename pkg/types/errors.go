package types

import "errors"

// ErrorKind classifies failures surfaced in component state
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	ErrKindNetworkSwitchFailed
	ErrKindPopupBlocked
	ErrKindBalanceQueryUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNetworkSwitchFailed:
		return "NetworkSwitchFailed"
	case ErrKindPopupBlocked:
		return "PopupBlocked"
	case ErrKindBalanceQueryUnavailable:
		return "BalanceQueryUnavailable"
	default:
		return ""
	}
}

var (
	// ErrNetworkSwitchFailed is returned when the wallet rejected or failed a chain switch
	ErrNetworkSwitchFailed = errors.New("network switch failed")

	// ErrPopupBlocked is returned when the environment refused to spawn the purchase context
	ErrPopupBlocked = errors.New("purchase popup blocked")

	// ErrBalanceQueryUnavailable is returned when a balance read exhausted its retries
	ErrBalanceQueryUnavailable = errors.New("balance query unavailable")
)

// KindOf maps an error to the kind recorded in component state
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrKindNone
	case errors.Is(err, ErrNetworkSwitchFailed):
		return ErrKindNetworkSwitchFailed
	case errors.Is(err, ErrPopupBlocked):
		return ErrKindPopupBlocked
	case errors.Is(err, ErrBalanceQueryUnavailable):
		return ErrKindBalanceQueryUnavailable
	default:
		return ErrKindNone
	}
}
