package metrics

import "time"

// NoopRecorder discards everything; components use it when no recorder is set
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
