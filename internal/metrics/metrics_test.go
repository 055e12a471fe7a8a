package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe(OpLogin, ResultOK, 10*time.Millisecond)
	m.Observe(OpLogin, ResultOK, 20*time.Millisecond)
	m.Observe(OpLogin, ResultRejected, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues(OpLogin, ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(OpLogin, ResultRejected)))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestPurged(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Purged(3)
	m.Purged(0)
	m.Purged(-1)

	require.Equal(t, 3.0, testutil.ToFloat64(m.purged))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.Observe(OpRefresh, ResultError, time.Second)
		m.Purged(1)
	})
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
