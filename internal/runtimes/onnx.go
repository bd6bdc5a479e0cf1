//go:build onnx

package runtimes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"tensord/internal/backend"
	"tensord/pkg/types"
)

var ortInitMu sync.Mutex

func initORT(libPath string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	return ort.InitializeEnvironment()
}

// ONNX runs models with ONNX Runtime. GPU instances use the CUDA execution
// provider on their device.
type ONNX struct {
	opts Options
}

type onnxInstance struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
	inputs      []ort.InputOutputInfo
	outputs     []ort.InputOutputInfo
}

// onnxTensor adapts an ORT value to backend.Tensor.
type onnxTensor struct {
	value ort.Value
	shape []int64
	nt    backend.NativeType
	data  []byte
}

func (t *onnxTensor) Shape() []int64                 { return t.shape }
func (t *onnxTensor) NativeType() backend.NativeType { return t.nt }
func (t *onnxTensor) Bytes() []byte                  { return t.data }

var onnxTypes = map[types.DataType]ort.TensorElementDataType{
	types.TypeBool:   ort.TensorElementDataTypeBool,
	types.TypeUint8:  ort.TensorElementDataTypeUint8,
	types.TypeUint16: ort.TensorElementDataTypeUint16,
	types.TypeUint32: ort.TensorElementDataTypeUint32,
	types.TypeUint64: ort.TensorElementDataTypeUint64,
	types.TypeInt8:   ort.TensorElementDataTypeInt8,
	types.TypeInt16:  ort.TensorElementDataTypeInt16,
	types.TypeInt32:  ort.TensorElementDataTypeInt32,
	types.TypeInt64:  ort.TensorElementDataTypeInt64,
	types.TypeFP16:   ort.TensorElementDataTypeFloat16,
	types.TypeBF16:   ort.TensorElementDataTypeBFloat16,
	types.TypeFP32:   ort.TensorElementDataTypeFloat,
	types.TypeFP64:   ort.TensorElementDataTypeDouble,
}

// NewONNX initializes the ONNX Runtime environment once per process.
func NewONNX(opts Options) (backend.Runtime, error) {
	if err := initORT(opts.ONNXLibraryPath); err != nil {
		return nil, fmt.Errorf("onnxruntime init: %w", err)
	}
	return &ONNX{opts: opts}, nil
}

func (r *ONNX) Name() string { return PlatformONNX }

func (r *ONNX) LoadInstance(path string, device int, opts backend.ContextOptions) (backend.Instance, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer so.Destroy()

	threads := opts.IntraOpThreads
	if threads <= 0 {
		threads = r.opts.Threads
	}
	if threads > 0 {
		if err := so.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("intra-op threads: %w", err)
		}
	}
	if device != backend.NoDevice {
		if err := appendCUDA(so, device); err != nil {
			return nil, fmt.Errorf("gpu %d: %v: %w", device, err, backend.ErrDeviceUnavailable)
		}
	}

	inst := &onnxInstance{inputs: inputs, outputs: outputs}
	for _, in := range inputs {
		inst.inputNames = append(inst.inputNames, in.Name)
	}
	for _, out := range outputs {
		inst.outputNames = append(inst.outputNames, out.Name)
	}
	sess, err := ort.NewDynamicAdvancedSession(path, inst.inputNames, inst.outputNames, so)
	if err != nil {
		return nil, err
	}
	inst.session = sess
	return inst, nil
}

func appendCUDA(so *ort.SessionOptions, device int) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()
	if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(device)}); err != nil {
		return err
	}
	return so.AppendExecutionProviderCUDA(cuda)
}

func (r *ONNX) ExposedInputs(inst backend.Instance) ([]string, error) {
	return inst.(*onnxInstance).inputNames, nil
}

func (r *ONNX) ExposedOutputs(inst backend.Instance) ([]string, error) {
	return inst.(*onnxInstance).outputNames, nil
}

// MaxBatchSize reports a fixed leading input dimension as the limit.
func (r *ONNX) MaxBatchSize(inst backend.Instance) int {
	limit := 0
	for _, in := range inst.(*onnxInstance).inputs {
		if len(in.Dimensions) == 0 || in.Dimensions[0] <= 0 {
			continue
		}
		if d := int(in.Dimensions[0]); limit == 0 || d < limit {
			limit = d
		}
	}
	return limit
}

func (r *ONNX) ReleaseInstance(inst backend.Instance) error {
	oi := inst.(*onnxInstance)
	if oi.session == nil {
		return nil
	}
	err := oi.session.Destroy()
	oi.session = nil
	return err
}

func (r *ONNX) NativeType(dt types.DataType) (backend.NativeType, bool) {
	t, ok := onnxTypes[dt]
	return backend.NativeType(t), ok
}

func (r *ONNX) LogicalType(nt backend.NativeType) types.DataType {
	for dt, t := range onnxTypes {
		if backend.NativeType(t) == nt {
			return dt
		}
	}
	return types.TypeInvalid
}

// NewAllocator returns nil: tensors are created on the CPU allocator of
// the environment.
func (r *ONNX) NewAllocator(backend.Instance) (backend.Allocator, error) { return nil, nil }

func (r *ONNX) ReleaseAllocator(backend.Allocator) error { return nil }

func (r *ONNX) CreateTensor(_ backend.Allocator, raw []byte, shape []int64, nt backend.NativeType) (backend.Tensor, error) {
	v, err := ort.NewCustomDataTensor(ort.NewShape(shape...), raw, ort.TensorElementDataType(nt))
	if err != nil {
		return nil, err
	}
	return &onnxTensor{value: v, shape: append([]int64(nil), shape...), nt: nt, data: raw}, nil
}

func (r *ONNX) Invoke(inst backend.Instance, inputNames []string, inputs []backend.Tensor, outputNames []string) ([]backend.Tensor, error) {
	oi := inst.(*onnxInstance)
	if oi.session == nil {
		return nil, errors.New("session released")
	}
	byName := make(map[string]ort.Value, len(inputs))
	for i, t := range inputs {
		byName[inputNames[i]] = t.(*onnxTensor).value
	}
	ordered := make([]ort.Value, len(oi.inputNames))
	for i, name := range oi.inputNames {
		v, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("model input %q not provided", name)
		}
		ordered[i] = v
	}

	raw := make([]ort.Value, len(oi.outputNames))
	if err := oi.session.Run(ordered, raw); err != nil {
		destroyValues(raw)
		return nil, err
	}

	// Hand back only the requested outputs; the rest are freed here.
	index := make(map[string]int, len(oi.outputNames))
	for i, name := range oi.outputNames {
		index[name] = i
	}
	outs := make([]backend.Tensor, 0, len(outputNames))
	used := make([]bool, len(raw))
	var convErr error
	for _, name := range outputNames {
		i, ok := index[name]
		if !ok || raw[i] == nil {
			convErr = fmt.Errorf("output %q not produced", name)
			break
		}
		t, err := wrapOutput(raw[i], oi.outputs[i].DataType)
		if err != nil {
			convErr = fmt.Errorf("output %q: %w", name, err)
			break
		}
		used[i] = true
		outs = append(outs, t)
	}
	for i, v := range raw {
		if !used[i] && v != nil {
			_ = v.Destroy()
		}
	}
	return outs, convErr
}

func (r *ONNX) ReleaseTensor(t backend.Tensor) error {
	return t.(*onnxTensor).value.Destroy()
}

func destroyValues(vs []ort.Value) {
	for _, v := range vs {
		if v != nil {
			_ = v.Destroy()
		}
	}
}

// wrapOutput exposes an ORT-allocated output as little-endian bytes.
func wrapOutput(v ort.Value, dt ort.TensorElementDataType) (*onnxTensor, error) {
	var data []byte
	var shape ort.Shape
	le := binary.LittleEndian
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 4*len(src))
		for i, f := range src {
			le.PutUint32(data[i*4:], math.Float32bits(f))
		}
	case *ort.Tensor[float64]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 8*len(src))
		for i, f := range src {
			le.PutUint64(data[i*8:], math.Float64bits(f))
		}
	case *ort.Tensor[int64]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 8*len(src))
		for i, x := range src {
			le.PutUint64(data[i*8:], uint64(x))
		}
	case *ort.Tensor[uint64]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 8*len(src))
		for i, x := range src {
			le.PutUint64(data[i*8:], x)
		}
	case *ort.Tensor[int32]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 4*len(src))
		for i, x := range src {
			le.PutUint32(data[i*4:], uint32(x))
		}
	case *ort.Tensor[uint32]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 4*len(src))
		for i, x := range src {
			le.PutUint32(data[i*4:], x)
		}
	case *ort.Tensor[int16]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 2*len(src))
		for i, x := range src {
			le.PutUint16(data[i*2:], uint16(x))
		}
	case *ort.Tensor[uint16]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, 2*len(src))
		for i, x := range src {
			le.PutUint16(data[i*2:], x)
		}
	case *ort.Tensor[int8]:
		shape = t.GetShape()
		src := t.GetData()
		data = make([]byte, len(src))
		for i, x := range src {
			data[i] = byte(x)
		}
	case *ort.Tensor[uint8]:
		shape = t.GetShape()
		data = t.GetData()
	case *ort.CustomDataTensor:
		shape = t.GetShape()
		data = t.GetData()
	default:
		return nil, fmt.Errorf("unsupported output value %T", v)
	}
	return &onnxTensor{value: v, shape: append([]int64(nil), shape...), nt: backend.NativeType(dt), data: data}, nil
}
