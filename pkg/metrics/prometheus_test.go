package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()

	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(SwitchAttempts, map[string]string{"trigger": "manual"})
	rec.IncCounter(SwitchAttempts, map[string]string{"trigger": "manual"})
	rec.IncCounter(SwitchAttempts, map[string]string{"trigger": "automatic"})
	rec.IncCounter(PopupOpened, nil)
	rec.ObserveLatency(BalanceLatency, 250*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(SwitchAttempts, "manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.counters.WithLabelValues(SwitchAttempts, "automatic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.counters.WithLabelValues(PopupOpened, "")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))
}

func TestPrometheusRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "registering the same collectors twice should fail")
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		rec.IncCounter(SwitchFailures, map[string]string{"trigger": "manual"})
		rec.ObserveLatency(SwitchLatency, time.Second, nil)
	})
}
