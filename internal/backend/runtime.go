package backend

import (
	"errors"

	"tensord/pkg/types"
)

const (
	// NoDevice is the device binding of instances that run on CPU.
	NoDevice = -1
	// NoBatching is the effective max batch size of instances that do not batch.
	NoBatching = 0
)

// ErrDeviceUnavailable is returned (wrapped) by a Runtime when an instance
// cannot be bound to the requested GPU.
var ErrDeviceUnavailable = errors.New("device unavailable")

// NativeType is a runtime-specific element type code.
type NativeType int

// Instance is an opaque handle to a loaded model instance.
type Instance any

// Allocator is an opaque, per-instance handle used to build input tensors.
// It is created once per context and reused by every run.
type Allocator any

// Tensor is a runtime-owned tensor handle. It must be handed back to
// Runtime.ReleaseTensor exactly once.
type Tensor interface {
	Shape() []int64
	NativeType() NativeType
	// Bytes returns the raw element data. The slice is only valid until the
	// tensor is released.
	Bytes() []byte
}

// ContextOptions are immutable per-load settings passed to every instance
// of a model.
type ContextOptions struct {
	IntraOpThreads int
	// Parameters mirrors the model configuration parameters.
	Parameters map[string]string
}

// Runtime is the framework variant behind a backend (ONNX Runtime,
// llama.cpp, ...). Implementations must be safe for concurrent use across
// different instances; calls for one instance are never concurrent.
type Runtime interface {
	Name() string

	LoadInstance(artifactPath string, device int, opts ContextOptions) (Instance, error)
	ExposedInputs(inst Instance) ([]string, error)
	ExposedOutputs(inst Instance) ([]string, error)
	// MaxBatchSize reports the largest batch the instance accepts, or 0 when
	// the runtime imposes no limit of its own.
	MaxBatchSize(inst Instance) int
	ReleaseInstance(inst Instance) error

	// NativeType maps a declared datatype to the runtime's element type.
	NativeType(dt types.DataType) (NativeType, bool)
	// LogicalType is the inverse of NativeType.
	LogicalType(nt NativeType) types.DataType

	NewAllocator(inst Instance) (Allocator, error)
	ReleaseAllocator(alloc Allocator) error

	CreateTensor(alloc Allocator, raw []byte, shape []int64, nt NativeType) (Tensor, error)
	// Invoke runs the instance once and returns one tensor per output name,
	// in the same order.
	Invoke(inst Instance, inputNames []string, inputs []Tensor, outputNames []string) ([]Tensor, error)
	ReleaseTensor(t Tensor) error
}

// CapabilityLookup returns the compute capability (e.g. "7.5") of a GPU.
type CapabilityLookup func(device int) (string, error)
