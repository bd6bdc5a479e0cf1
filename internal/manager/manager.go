package manager

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tensord/internal/backend"
	"tensord/internal/scheduler"
	"tensord/pkg/types"
)

type Manager struct {
	mu      sync.RWMutex
	entries []types.ModelEntry
	models  map[string]*modelState

	caps            backend.CapabilityLookup
	runtimeFor      RuntimeFactory
	ctxOpts         backend.ContextOptions
	batchWindow     time.Duration
	loadConcurrency int

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration

	log            zerolog.Logger
	publisher      EventPublisher
	backendMetrics *backend.Metrics
	schedMetrics   *scheduler.Metrics

	loadsTotal atomic.Uint64
	startTime  time.Time
}

// Ready reports whether at least one model can serve requests.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.models {
		if st.State == StateReady {
			return true
		}
	}
	return false
}

// ListModels summarizes every repository model with its current state.
func (m *Manager) ListModels() []types.ModelSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ModelSummary, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, types.ModelSummary{
			Name:         e.Config.Name,
			Platform:     e.Config.Platform,
			MaxBatchSize: e.Config.MaxBatchSize,
			State:        string(m.models[e.Config.Name].State),
		})
	}
	return out
}

// Close unloads every loaded model.
func (m *Manager) Close() error {
	m.mu.RLock()
	var loaded []string
	for _, e := range m.entries {
		if st := m.models[e.Config.Name]; st.backend != nil {
			loaded = append(loaded, e.Config.Name)
		}
	}
	m.mu.RUnlock()
	var errs []error
	for _, name := range loaded {
		if err := m.Unload(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
