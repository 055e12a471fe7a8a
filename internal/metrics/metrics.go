// metrics — Prometheus-метрики операций аутентификации.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Операции.
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpRevoke   = "revoke"
	OpValidate = "validate"
	OpMe       = "me"
	OpPurge    = "purge"
)

// Исходы.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics — счётчики и гистограммы операций.
// Нулевой указатель допустим: все методы становятся no-op.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	purged     prometheus.Counter
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "operations_total",
			Help:      "Количество операций аутентификации по исходу.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Длительность операций аутентификации.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refresh_tokens_purged_total",
			Help:      "Количество удалённых истёкших refresh-токенов.",
		}),
	}

	reg.MustRegister(m.operations, m.duration, m.purged)

	return m
}

// Observe учитывает исход операции op и её длительность.
func (m *Metrics) Observe(op, result string, d time.Duration) {
	if m == nil {
		return
	}

	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// Purged учитывает удалённые токены.
func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.purged.Add(float64(n))
}
