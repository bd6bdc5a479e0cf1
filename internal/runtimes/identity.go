package runtimes

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"

	"tensord/internal/backend"
	"tensord/pkg/types"
)

// Identity is a pure Go runtime that echoes its inputs. Output i is built
// from input i (or the last input when there are fewer inputs), converted
// to the output's declared datatype and, when the model sets the "scale"
// parameter, multiplied by it. It serves smoke tests and CPU-only setups.
type Identity struct {
	cfg   types.ModelConfig
	scale float64
}

type identityInstance struct {
	path string
}

// NewIdentity returns an identity runtime for cfg.
func NewIdentity(cfg types.ModelConfig) (*Identity, error) {
	id := &Identity{cfg: cfg, scale: 1}
	if s, ok := cfg.Parameters["scale"]; ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("model %s: invalid scale parameter %q: %w", cfg.Name, s, err)
		}
		id.scale = v
	}
	return id, nil
}

func (r *Identity) Name() string { return PlatformIdentity }

func (r *Identity) LoadInstance(path string, device int, _ backend.ContextOptions) (backend.Instance, error) {
	if device != backend.NoDevice {
		return nil, fmt.Errorf("identity runtime has no GPU support: %w", backend.ErrDeviceUnavailable)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &identityInstance{path: path}, nil
}

func (r *Identity) ExposedInputs(backend.Instance) ([]string, error) {
	names := make([]string, len(r.cfg.Inputs))
	for i, in := range r.cfg.Inputs {
		names[i] = in.Name
	}
	return names, nil
}

func (r *Identity) ExposedOutputs(backend.Instance) ([]string, error) {
	names := make([]string, len(r.cfg.Outputs))
	for i, out := range r.cfg.Outputs {
		names[i] = out.Name
	}
	return names, nil
}

func (r *Identity) MaxBatchSize(backend.Instance) int { return 0 }

func (r *Identity) ReleaseInstance(backend.Instance) error { return nil }

func (r *Identity) NativeType(dt types.DataType) (backend.NativeType, bool) { return hostNative(dt) }

func (r *Identity) LogicalType(nt backend.NativeType) types.DataType { return hostLogical(nt) }

func (r *Identity) NewAllocator(backend.Instance) (backend.Allocator, error) { return struct{}{}, nil }

func (r *Identity) ReleaseAllocator(backend.Allocator) error { return nil }

func (r *Identity) CreateTensor(_ backend.Allocator, raw []byte, shape []int64, nt backend.NativeType) (backend.Tensor, error) {
	if hostLogical(nt) == types.TypeInvalid {
		return nil, fmt.Errorf("unknown native type %d", nt)
	}
	return &hostTensor{shape: append([]int64(nil), shape...), nt: nt, data: raw}, nil
}

func (r *Identity) Invoke(_ backend.Instance, inputNames []string, inputs []backend.Tensor, outputNames []string) ([]backend.Tensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	outs := make([]backend.Tensor, 0, len(outputNames))
	for i, name := range outputNames {
		decl, ok := r.cfg.Output(name)
		if !ok {
			return outs, fmt.Errorf("unknown output %q", name)
		}
		in := inputs[min(i, len(inputs)-1)]
		data, err := r.transform(in, decl.DataType)
		if err != nil {
			return outs, fmt.Errorf("output %q from input %q: %w", name, inputNames[min(i, len(inputNames)-1)], err)
		}
		nt, _ := hostNative(decl.DataType)
		outs = append(outs, &hostTensor{shape: append([]int64(nil), in.Shape()...), nt: nt, data: data})
	}
	return outs, nil
}

func (r *Identity) transform(in backend.Tensor, to types.DataType) ([]byte, error) {
	from := hostLogical(in.NativeType())
	if r.scale == 1 {
		return backend.ConvertElements(in.Bytes(), from, to)
	}
	wide, err := backend.ConvertElements(in.Bytes(), from, types.TypeFP64)
	if err != nil {
		return nil, err
	}
	for i := 0; i+8 <= len(wide); i += 8 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(wide[i:]))
		binary.LittleEndian.PutUint64(wide[i:], math.Float64bits(v*r.scale))
	}
	return backend.ConvertElements(wide, types.TypeFP64, to)
}

func (r *Identity) ReleaseTensor(backend.Tensor) error { return nil }
