package backend

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the run metrics of every backend in the process. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	batchSize   *prometheus.HistogramVec
	runDuration *prometheus.HistogramVec
	liveTensors *prometheus.GaugeVec
}

// NewMetrics creates the backend collectors and registers them on reg.
// Collectors that are already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tensord",
				Subsystem: "backend",
				Name:      "runs_total",
				Help:      "Total number of batched runs",
			},
			[]string{"model", "instance", "status"},
		),
		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tensord",
				Subsystem: "backend",
				Name:      "batch_size",
				Help:      "Total batch size of executed runs",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
			[]string{"model"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tensord",
				Subsystem: "backend",
				Name:      "run_duration_seconds",
				Help:      "Duration of batched runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "instance"},
		),
		liveTensors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tensord",
				Subsystem: "backend",
				Name:      "live_tensors",
				Help:      "Tensor handles currently held by runs",
			},
			[]string{"model"},
		),
	}
	if reg == nil {
		return m
	}
	m.runsTotal = register(reg, m.runsTotal)
	m.batchSize = register(reg, m.batchSize)
	m.runDuration = register(reg, m.runDuration)
	m.liveTensors = register(reg, m.liveTensors)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observeRun(model, instance string, total int, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(model, instance, status).Inc()
	if err == nil {
		m.batchSize.WithLabelValues(model).Observe(float64(total))
	}
	m.runDuration.WithLabelValues(model, instance).Observe(d.Seconds())
}

func (m *Metrics) tensorsAcquired(model string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.liveTensors.WithLabelValues(model).Add(float64(n))
}

func (m *Metrics) tensorsReleased(model string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.liveTensors.WithLabelValues(model).Sub(float64(n))
}
