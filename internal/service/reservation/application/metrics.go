package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总预占核心的 Prometheus 指标；nil 接收者上的调用为空操作
type Metrics struct {
	reserveTotal   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	conflicts      prometheus.Counter
	sweepExpired   prometheus.Counter
	sweepPurged    prometheus.Counter
	sweepDuration  prometheus.Histogram
	ordersCanceled prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reserveTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "reserve_total",
			Help:      "Reserve attempts by resource kind and result.",
		}, []string{"kind", "result"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "transitions_total",
			Help:      "Reservation state transitions by target status.",
		}, []string{"status"}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "optimistic_conflicts_total",
			Help:      "Optimistic version conflicts that triggered a retry.",
		}),
		sweepExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "sweep_expired_total",
			Help:      "Reservations expired by the reconciler.",
		}),
		sweepPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "sweep_purged_total",
			Help:      "Terminal reservations deleted by retention purge.",
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reservation",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiry sweep pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		ordersCanceled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "orders_auto_cancelled_total",
			Help:      "Unpaid orders cancelled after their last reservation was released.",
		}),
	}
}

func (m *Metrics) reserve(kind, result string) {
	if m != nil {
		m.reserveTotal.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) transition(status string) {
	if m != nil {
		m.transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) expired(n int) {
	if m != nil {
		m.sweepExpired.Add(float64(n))
	}
}

func (m *Metrics) purged(n int64) {
	if m != nil {
		m.sweepPurged.Add(float64(n))
	}
}

func (m *Metrics) sweepTook(d time.Duration) {
	if m != nil {
		m.sweepDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) orderCancelled() {
	if m != nil {
		m.ordersCanceled.Inc()
	}
}
