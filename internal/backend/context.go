package backend

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tensord/pkg/types"
)

// ContextState is the lifecycle state of an execution context.
type ContextState int32

const (
	StateCreated ContextState = iota
	StateValidated
	StateIdle
	StateRunning
	StateDestroyed
)

func (s ContextState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValidated:
		return "validated"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Context owns one loaded model instance bound to one device. Run must
// only be called by the single worker assigned to the context.
type Context struct {
	name     string
	model    string
	device   int
	artifact string
	maxBatch int

	rt       Runtime
	cfg      types.ModelConfig
	instance Instance
	alloc    Allocator

	log     zerolog.Logger
	metrics *Metrics

	state atomic.Int32
	// run holds the transient tensors of the current run; reused across runs.
	run runResources

	runs     atomic.Uint64
	failures atomic.Uint64
}

// ContextInfo is a read-only view of a context for diagnostics.
type ContextInfo struct {
	Name         string
	Device       int
	MaxBatchSize int
	Artifact     string
	State        ContextState
	Runs         uint64
	Failures     uint64
}

// NewContext loads spec's artifact with rt, validates the instance against
// the declared inputs and outputs of cfg and prepares it for runs.
func NewContext(rt Runtime, spec InstanceSpec, cfg types.ModelConfig, opts ContextOptions, log zerolog.Logger, metrics *Metrics) (*Context, error) {
	c := &Context{
		name:     spec.Name,
		model:    cfg.Name,
		device:   spec.Device,
		artifact: spec.Artifact,
		rt:       rt,
		cfg:      cfg,
		log:      log.With().Str("instance", spec.Name).Logger(),
		metrics:  metrics,
	}
	c.state.Store(int32(StateCreated))

	if spec.Device == NoDevice {
		c.log.Info().Str("event", "instance_create").Str("artifact", spec.Artifact).Msg("creating instance on CPU")
	} else {
		c.log.Info().Str("event", "instance_create").Int("gpu", spec.Device).Str("cc", spec.Capability).Str("artifact", spec.Artifact).Msg("creating instance on GPU")
	}

	inst, err := rt.LoadInstance(spec.ArtifactPath, spec.Device, opts)
	if err != nil {
		if spec.Device != NoDevice && errors.Is(err, ErrDeviceUnavailable) {
			return nil, &DeviceBindingError{Model: cfg.Name, Instance: spec.Name, Device: spec.Device, Err: err}
		}
		return nil, &LoadError{Model: cfg.Name, Instance: spec.Name, Artifact: spec.Artifact, Err: err}
	}
	c.instance = inst

	if err := c.ValidateSchema(cfg.Inputs, cfg.Outputs); err != nil {
		c.releaseInstance()
		return nil, err
	}
	c.state.Store(int32(StateValidated))

	alloc, err := rt.NewAllocator(inst)
	if err != nil {
		c.releaseInstance()
		return nil, &LoadError{Model: cfg.Name, Instance: spec.Name, Artifact: spec.Artifact, Err: fmt.Errorf("allocator: %w", err)}
	}
	c.alloc = alloc

	c.maxBatch = NoBatching
	if cfg.MaxBatchSize > 0 {
		c.maxBatch = cfg.MaxBatchSize
		if rtMax := rt.MaxBatchSize(inst); rtMax > 0 && rtMax < c.maxBatch {
			c.maxBatch = rtMax
		}
	}
	c.run.rt = rt
	c.run.metrics = metrics
	c.run.model = cfg.Name
	c.run.log = c.log
	c.state.Store(int32(StateIdle))
	return c, nil
}

// ValidateSchema checks every declared input and output against the names
// the loaded instance exposes and the datatypes the runtime supports. It
// runs once at creation; runs assume a compatible schema.
func (c *Context) ValidateSchema(inputs []types.ModelInput, outputs []types.ModelOutput) error {
	exposedIn, err := c.rt.ExposedInputs(c.instance)
	if err != nil {
		return &LoadError{Model: c.model, Instance: c.name, Artifact: c.artifact, Err: fmt.Errorf("input names: %w", err)}
	}
	inSet := toSet(exposedIn)
	for _, in := range inputs {
		if err := c.checkTensor("input", in.Name, in.DataType, inSet); err != nil {
			return err
		}
	}

	exposedOut, err := c.rt.ExposedOutputs(c.instance)
	if err != nil {
		return &LoadError{Model: c.model, Instance: c.name, Artifact: c.artifact, Err: fmt.Errorf("output names: %w", err)}
	}
	outSet := toSet(exposedOut)
	for _, out := range outputs {
		if err := c.checkTensor("output", out.Name, out.DataType, outSet); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) checkTensor(kind, name string, dt types.DataType, exposed map[string]struct{}) error {
	if _, ok := exposed[name]; !ok {
		return &SchemaMismatchError{Model: c.model, Instance: c.name, Kind: kind, Tensor: name, Reason: fmt.Sprintf("not found in model, model exposes %s", sortedKeys(exposed))}
	}
	if _, ok := c.rt.NativeType(dt); !ok {
		return &SchemaMismatchError{Model: c.model, Instance: c.name, Kind: kind, Tensor: name, Reason: "unsupported datatype " + string(dt)}
	}
	return nil
}

// Close releases the allocator and the instance. A running context is not
// closed.
func (c *Context) Close() error {
	for {
		s := ContextState(c.state.Load())
		if s == StateDestroyed {
			return nil
		}
		if s == StateRunning {
			return &InternalError{Model: c.model, Instance: c.name, Msg: "cannot destroy a running context"}
		}
		if c.state.CompareAndSwap(int32(s), int32(StateDestroyed)) {
			break
		}
	}
	var errs []error
	if c.alloc != nil {
		if err := c.rt.ReleaseAllocator(c.alloc); err != nil {
			errs = append(errs, err)
		}
		c.alloc = nil
	}
	if err := c.releaseInstance(); err != nil {
		errs = append(errs, err)
	}
	c.log.Debug().Str("event", "instance_destroy").Msg("instance released")
	return errors.Join(errs...)
}

func (c *Context) releaseInstance() error {
	if c.instance == nil {
		return nil
	}
	err := c.rt.ReleaseInstance(c.instance)
	c.instance = nil
	return err
}

// Name is the instance name.
func (c *Context) Name() string { return c.name }

// Device is the GPU index, or NoDevice.
func (c *Context) Device() int { return c.device }

// MaxBatchSize is the effective max batch size, NoBatching when the
// instance does not batch.
func (c *Context) MaxBatchSize() int { return c.maxBatch }

// State returns the current lifecycle state.
func (c *Context) State() ContextState { return ContextState(c.state.Load()) }

// Info returns a diagnostic snapshot.
func (c *Context) Info() ContextInfo {
	return ContextInfo{
		Name:         c.name,
		Device:       c.device,
		MaxBatchSize: c.maxBatch,
		Artifact:     c.artifact,
		State:        c.State(),
		Runs:         c.runs.Load(),
		Failures:     c.failures.Load(),
	}
}

func toSet(names []string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}
