package scheduler

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the queue metrics shared by every scheduler. A nil *Metrics
// records nothing.
type Metrics struct {
	queueWait     *prometheus.HistogramVec
	rejectedTotal *prometheus.CounterVec
}

// NewMetrics creates the scheduler collectors on reg, reusing collectors
// that are already registered. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tensord",
				Subsystem: "scheduler",
				Name:      "queue_wait_seconds",
				Help:      "Time requests spend queued before dispatch",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"model"},
		),
		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tensord",
				Subsystem: "scheduler",
				Name:      "rejected_total",
				Help:      "Requests rejected because the queue was full",
			},
			[]string{"model"},
		),
	}
	if reg == nil {
		return m
	}
	if err := reg.Register(m.queueWait); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		m.queueWait = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(m.rejectedTotal); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		m.rejectedTotal = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return m
}

func (m *Metrics) observeWait(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) countRejected(model string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(model).Inc()
}
