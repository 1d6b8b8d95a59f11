package metrics

import "time"

// Metric names recorded by the session components
const (
	SwitchAttempts   = "switch_attempts"
	SwitchFailures   = "switch_failures"
	SwitchDiscarded  = "switch_discarded"
	SwitchLatency    = "switch"
	BalanceReads     = "balance_reads"
	BalanceFailures  = "balance_failures"
	BalanceLatency   = "balance_read"
	PopupOpened      = "popup_opened"
	PopupBlocked     = "popup_blocked"
	PopupResolved    = "popup_resolved"
	PopupSessionTime = "popup_session"
)

// Recorder receives counters and latencies from the session components
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
