package manager

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tensord/internal/backend"
	"tensord/internal/runtimes"
	"tensord/internal/scheduler"
	"tensord/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
)

// RuntimeFactory returns the runtime serving a model configuration.
type RuntimeFactory func(cfg types.ModelConfig) (backend.Runtime, error)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Models       []types.ModelEntry
	Capabilities backend.CapabilityLookup
	// Runtimes is used by the default RuntimeFactory.
	Runtimes runtimes.Options
	// RuntimeFactory overrides runtime selection (tests, embedding).
	RuntimeFactory RuntimeFactory
	Context        backend.ContextOptions

	BatchWindow     time.Duration
	MaxQueueDepth   int
	MaxWait         time.Duration
	DrainTimeout    time.Duration
	LoadConcurrency int

	Logger zerolog.Logger
	// Registerer receives backend and scheduler metrics; nil disables them.
	Registerer prometheus.Registerer
	Publisher  EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		entries:         append([]types.ModelEntry(nil), cfg.Models...),
		models:          make(map[string]*modelState, len(cfg.Models)),
		caps:            cfg.Capabilities,
		ctxOpts:         cfg.Context,
		batchWindow:     cfg.BatchWindow,
		loadConcurrency: cfg.LoadConcurrency,
		log:             cfg.Logger.With().Str("component", "manager").Logger(),
		publisher:       cfg.Publisher,
		startTime:       time.Now(),
	}
	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].Config.Name < m.entries[j].Config.Name })
	for _, e := range m.entries {
		m.models[e.Config.Name] = &modelState{State: StateUnloaded}
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if m.batchWindow < 0 {
		m.batchWindow = 0
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	m.runtimeFor = cfg.RuntimeFactory
	if m.runtimeFor == nil {
		opts := cfg.Runtimes
		opts.Logger = cfg.Logger
		m.runtimeFor = func(mc types.ModelConfig) (backend.Runtime, error) {
			return runtimes.Lookup(mc, opts)
		}
	}
	if cfg.Registerer != nil {
		m.backendMetrics = backend.NewMetrics(cfg.Registerer)
		m.schedMetrics = scheduler.NewMetrics(cfg.Registerer)
	}
	return m
}
