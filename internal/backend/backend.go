package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tensord/pkg/types"
)

// DefaultLoadConcurrency bounds parallel instance loads in CreateExecutionContexts.
const DefaultLoadConcurrency = 4

// Options configure a Backend. The zero value is usable.
type Options struct {
	Logger  zerolog.Logger
	Context ContextOptions
	Metrics *Metrics
	// LoadConcurrency caps parallel instance loads; <=0 uses DefaultLoadConcurrency.
	LoadConcurrency int
}

// Backend is the pool of execution contexts of one model. Runner index i
// always maps to Contexts()[i].
type Backend struct {
	cfg  types.ModelConfig
	rt   Runtime
	opts Options
	log  zerolog.Logger

	mu       sync.RWMutex
	contexts []*Context
}

// New returns a backend for cfg driven by rt. It holds no instances until
// CreateExecutionContexts is called.
func New(cfg types.ModelConfig, rt Runtime, opts Options) *Backend {
	if opts.LoadConcurrency <= 0 {
		opts.LoadConcurrency = DefaultLoadConcurrency
	}
	if opts.Context.Parameters == nil && len(cfg.Parameters) > 0 {
		opts.Context.Parameters = cfg.Parameters
	}
	return &Backend{
		cfg:  cfg,
		rt:   rt,
		opts: opts,
		log:  opts.Logger.With().Str("model", cfg.Name).Str("runtime", rt.Name()).Logger(),
	}
}

// CreateExecutionContexts resolves the instances of the model and loads
// them in parallel. Instances that fail to resolve or load are skipped; an
// error is returned only when no instance could be created, and then holds
// every individual failure.
func (b *Backend) CreateExecutionContexts(ctx context.Context, caps CapabilityLookup, artifacts map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.contexts) > 0 {
		return &InternalError{Model: b.cfg.Name, Msg: "execution contexts already created"}
	}

	specs, resolveErr := Resolve(b.cfg, caps, artifacts)
	if resolveErr != nil {
		b.log.Warn().Err(resolveErr).Str("event", "resolve_partial").Msg("some instances could not be resolved")
	}

	loaded := make([]*Context, len(specs))
	loadErrs := make([]error, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.LoadConcurrency)
	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := NewContext(b.rt, spec, b.cfg, b.opts.Context, b.log, b.opts.Metrics)
			if err != nil {
				b.log.Error().Err(err).Str("event", "instance_load_failed").Str("instance", spec.Name).Msg("instance not created")
				loadErrs[i] = err
				return nil
			}
			loaded[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range loaded {
			if c != nil {
				_ = c.Close()
			}
		}
		return err
	}

	for _, c := range loaded {
		if c != nil {
			b.contexts = append(b.contexts, c)
		}
	}
	if len(b.contexts) == 0 {
		errs := append([]error{resolveErr}, loadErrs...)
		if err := errors.Join(errs...); err != nil {
			return err
		}
		return &InternalError{Model: b.cfg.Name, Msg: "model has no instances"}
	}
	b.log.Info().Str("event", "model_ready").Int("instances", len(b.contexts)).Msg("execution contexts created")
	return nil
}

// Run executes payloads on the context at runnerIdx and calls onComplete
// exactly once with the run status. It must not be called concurrently for
// the same runner index.
func (b *Backend) Run(runnerIdx int, payloads []*Payload, onComplete func(error)) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = &InternalError{Model: b.cfg.Name, Msg: fmt.Sprintf("panic during run: %v", r)}
		}
		if onComplete != nil {
			onComplete(err)
		}
	}()

	b.mu.RLock()
	var c *Context
	if runnerIdx >= 0 && runnerIdx < len(b.contexts) {
		c = b.contexts[runnerIdx]
	}
	n := len(b.contexts)
	b.mu.RUnlock()
	if c == nil {
		err = &InternalError{Model: b.cfg.Name, Msg: fmt.Sprintf("unexpected runner index %d, max allowed %d", runnerIdx, n-1)}
		return
	}
	err = c.Run(&Group{Payloads: payloads})
	if err != nil {
		b.log.Debug().Err(err).Str("event", "run_failed").Str("instance", c.Name()).Msg("run failed")
	}
}

// Close destroys every context. The backend cannot be reused afterwards.
// When a context refuses to close (it is still running) the pool is kept
// so a later Close can release it; contexts already destroyed are skipped.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, c := range b.contexts {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		b.contexts = nil
	}
	return errors.Join(errs...)
}

// Config returns the model configuration.
func (b *Backend) Config() types.ModelConfig { return b.cfg }

// Runners is the number of runner indexes accepted by Run.
func (b *Backend) Runners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.contexts)
}

// MaxBatchSize returns the effective max batch size of a runner.
func (b *Backend) MaxBatchSize(runnerIdx int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if runnerIdx < 0 || runnerIdx >= len(b.contexts) {
		return NoBatching
	}
	return b.contexts[runnerIdx].MaxBatchSize()
}

// Contexts returns a diagnostic snapshot of every context, by runner index.
func (b *Backend) Contexts() []ContextInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ContextInfo, len(b.contexts))
	for i, c := range b.contexts {
		out[i] = c.Info()
	}
	return out
}

func (b *Backend) String() string {
	var sb strings.Builder
	sb.WriteString("name=" + b.cfg.Name + "\n")
	sb.WriteString("contexts:\n")
	for _, info := range b.Contexts() {
		gpu := "<none>"
		if info.Device != NoDevice {
			gpu = strconv.Itoa(info.Device)
		}
		mbs := "<none>"
		if info.MaxBatchSize != NoBatching {
			mbs = strconv.Itoa(info.MaxBatchSize)
		}
		fmt.Fprintf(&sb, "  name=%s, gpu=%s, max_batch_size=%s\n", info.Name, gpu, mbs)
	}
	return sb.String()
}
