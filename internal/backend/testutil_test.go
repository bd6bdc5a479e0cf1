package backend

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"tensord/pkg/types"
)

var stubTypes = []types.DataType{
	types.TypeBool, types.TypeUint8, types.TypeInt32, types.TypeInt64,
	types.TypeFP16, types.TypeFP32, types.TypeFP64,
}

type stubTensor struct {
	shape    []int64
	nt       NativeType
	data     []byte
	released bool
}

func (t *stubTensor) Shape() []int64         { return t.shape }
func (t *stubTensor) NativeType() NativeType { return t.nt }
func (t *stubTensor) Bytes() []byte          { return t.data }

type stubInstance struct {
	path   string
	device int
}

// stubRuntime is an in-memory Runtime. Invoke multiplies every FP32 element
// of input i by scale and returns it as output i (inputs are reused
// cyclically when there are more outputs than inputs).
type stubRuntime struct {
	inputs  []string
	outputs []string
	maxRT   int
	scale   float32

	loadErr   error
	invokeErr error
	// createFailAt fails the n-th CreateTensor call of the lifetime (1-based).
	createFailAt int
	// invokeFn replaces the default invoke behavior when set.
	invokeFn func(inputs []Tensor, outputNames []string) ([]Tensor, error)

	mu            sync.Mutex
	loadedPaths   []string
	liveTensors   atomic.Int64
	liveInstances atomic.Int64
	liveAllocs    atomic.Int64
	invokes       atomic.Int64
	creates       atomic.Int64
	lastInputs    []string
}

func newStubRuntime(inputs, outputs []string) *stubRuntime {
	return &stubRuntime{inputs: inputs, outputs: outputs, scale: 1}
}

func (s *stubRuntime) Name() string { return "stub" }

func (s *stubRuntime) LoadInstance(path string, device int, _ ContextOptions) (Instance, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.mu.Lock()
	s.loadedPaths = append(s.loadedPaths, path)
	s.mu.Unlock()
	s.liveInstances.Add(1)
	return &stubInstance{path: path, device: device}, nil
}

func (s *stubRuntime) ExposedInputs(Instance) ([]string, error)  { return s.inputs, nil }
func (s *stubRuntime) ExposedOutputs(Instance) ([]string, error) { return s.outputs, nil }
func (s *stubRuntime) MaxBatchSize(Instance) int                 { return s.maxRT }

func (s *stubRuntime) ReleaseInstance(Instance) error {
	s.liveInstances.Add(-1)
	return nil
}

func (s *stubRuntime) NativeType(dt types.DataType) (NativeType, bool) {
	for i, t := range stubTypes {
		if t == dt {
			return NativeType(i + 1), true
		}
	}
	return 0, false
}

func (s *stubRuntime) LogicalType(nt NativeType) types.DataType {
	i := int(nt) - 1
	if i < 0 || i >= len(stubTypes) {
		return types.TypeInvalid
	}
	return stubTypes[i]
}

func (s *stubRuntime) NewAllocator(Instance) (Allocator, error) {
	s.liveAllocs.Add(1)
	return struct{}{}, nil
}

func (s *stubRuntime) ReleaseAllocator(Allocator) error {
	s.liveAllocs.Add(-1)
	return nil
}

func (s *stubRuntime) CreateTensor(_ Allocator, raw []byte, shape []int64, nt NativeType) (Tensor, error) {
	n := s.creates.Add(1)
	if s.createFailAt > 0 && int(n) == s.createFailAt {
		return nil, errors.New("create tensor failed")
	}
	return s.newTensor(raw, shape, nt), nil
}

func (s *stubRuntime) newTensor(raw []byte, shape []int64, nt NativeType) *stubTensor {
	s.liveTensors.Add(1)
	return &stubTensor{shape: append([]int64(nil), shape...), nt: nt, data: raw}
}

func (s *stubRuntime) Invoke(_ Instance, inputNames []string, inputs []Tensor, outputNames []string) ([]Tensor, error) {
	s.invokes.Add(1)
	s.mu.Lock()
	s.lastInputs = append([]string(nil), inputNames...)
	s.mu.Unlock()
	if s.invokeFn != nil {
		return s.invokeFn(inputs, outputNames)
	}
	outs := make([]Tensor, 0, len(outputNames))
	for i := range outputNames {
		in := inputs[i%len(inputs)]
		data := append([]byte(nil), in.Bytes()...)
		if s.LogicalType(in.NativeType()) == types.TypeFP32 && s.scale != 1 {
			for j := 0; j+4 <= len(data); j += 4 {
				v := math.Float32frombits(binary.LittleEndian.Uint32(data[j:]))
				binary.LittleEndian.PutUint32(data[j:], math.Float32bits(v*s.scale))
			}
		}
		outs = append(outs, s.newTensor(data, in.Shape(), in.NativeType()))
	}
	if s.invokeErr != nil {
		// Some runtimes hand back partial outputs together with the error.
		return outs, s.invokeErr
	}
	return outs, nil
}

func (s *stubRuntime) ReleaseTensor(t Tensor) error {
	st := t.(*stubTensor)
	if st.released {
		return errors.New("tensor released twice")
	}
	st.released = true
	s.liveTensors.Add(-1)
	return nil
}

// recordingSink captures the outputs written for one payload.
type recordingSink struct {
	err     error
	outputs map[string]recordedOutput
}

type recordedOutput struct {
	dt    types.DataType
	shape []int64
	data  []byte
}

func (r *recordingSink) WriteOutput(name string, dt types.DataType, shape []int64, data []byte) error {
	if r.err != nil {
		return r.err
	}
	if r.outputs == nil {
		r.outputs = map[string]recordedOutput{}
	}
	r.outputs[name] = recordedOutput{dt: dt, shape: shape, data: data}
	return nil
}

func f32bytes(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// fp32Config is a batching model with one FP32 input "in" and one FP32
// output "out", each of per-entry shape [2].
func fp32Config(maxBatch int) types.ModelConfig {
	return types.ModelConfig{
		Name:                 "m",
		Platform:             "stub",
		MaxBatchSize:         maxBatch,
		Inputs:               []types.ModelInput{{Name: "in", DataType: types.TypeFP32, Dims: []int64{2}}},
		Outputs:              []types.ModelOutput{{Name: "out", DataType: types.TypeFP32, Dims: []int64{2}}},
		DefaultModelFilename: "model.bin",
	}
}

func fp32Payload(batch int, vals ...float32) *Payload {
	return &Payload{
		BatchSize: batch,
		Inputs:    []InputTensor{{Name: "in", DataType: types.TypeFP32, Dims: []int64{2}, Data: f32bytes(vals...)}},
		Outputs:   &recordingSink{},
	}
}

func sinkOf(t *testing.T, p *Payload) *recordingSink {
	t.Helper()
	s, ok := p.Outputs.(*recordingSink)
	if !ok {
		t.Fatalf("payload sink is %T", p.Outputs)
	}
	return s
}

func newTestContext(t *testing.T, rt *stubRuntime, cfg types.ModelConfig) *Context {
	t.Helper()
	spec := InstanceSpec{Name: cfg.Name + "_0_cpu", Kind: types.KindCPU, Device: NoDevice, Artifact: "model.bin", ArtifactPath: "/models/m/model.bin"}
	c, err := NewContext(rt, spec, cfg, ContextOptions{}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}
