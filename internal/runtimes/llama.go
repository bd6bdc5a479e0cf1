//go:build llama

package runtimes

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"tensord/internal/backend"
	"tensord/pkg/types"
)

// Llama serves GGUF embedding models through go-llama.cpp. Each batch entry
// of the TEXT input is a zero padded UTF-8 string; the EMBEDDING output
// holds one vector per entry.
type Llama struct {
	opts Options
}

type llamaInstance struct {
	model   *llama.LLama
	threads int
}

// NewLlama returns the llama.cpp embedding runtime.
func NewLlama(opts Options) (backend.Runtime, error) {
	if opts.LlamaContextSize <= 0 {
		opts.LlamaContextSize = 2048
	}
	return &Llama{opts: opts}, nil
}

func (r *Llama) Name() string { return PlatformLlama }

func (r *Llama) LoadInstance(path string, device int, opts backend.ContextOptions) (backend.Instance, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.EnableEmbeddings,
		llama.SetContext(r.opts.LlamaContextSize),
	}
	if device != backend.NoDevice {
		if r.opts.LlamaGPULayers <= 0 {
			return nil, fmt.Errorf("gpu %d requested with no offloaded layers: %w", device, backend.ErrDeviceUnavailable)
		}
		mo = append(mo, llama.SetGPULayers(r.opts.LlamaGPULayers), llama.SetMainGPU(strconv.Itoa(device)))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	threads := opts.IntraOpThreads
	if threads <= 0 {
		threads = r.opts.Threads
	}
	return &llamaInstance{model: m, threads: max(1, threads)}, nil
}

func (r *Llama) ExposedInputs(backend.Instance) ([]string, error)  { return []string{"TEXT"}, nil }
func (r *Llama) ExposedOutputs(backend.Instance) ([]string, error) { return []string{"EMBEDDING"}, nil }
func (r *Llama) MaxBatchSize(backend.Instance) int                 { return 0 }

func (r *Llama) ReleaseInstance(inst backend.Instance) error {
	li := inst.(*llamaInstance)
	if li.model != nil {
		li.model.Free()
		li.model = nil
	}
	return nil
}

func (r *Llama) NativeType(dt types.DataType) (backend.NativeType, bool) {
	if dt != types.TypeUint8 && dt != types.TypeFP32 {
		return 0, false
	}
	return hostNative(dt)
}

func (r *Llama) LogicalType(nt backend.NativeType) types.DataType { return hostLogical(nt) }

func (r *Llama) NewAllocator(backend.Instance) (backend.Allocator, error) { return struct{}{}, nil }

func (r *Llama) ReleaseAllocator(backend.Allocator) error { return nil }

func (r *Llama) CreateTensor(_ backend.Allocator, raw []byte, shape []int64, nt backend.NativeType) (backend.Tensor, error) {
	return &hostTensor{shape: append([]int64(nil), shape...), nt: nt, data: raw}, nil
}

func (r *Llama) Invoke(inst backend.Instance, inputNames []string, inputs []backend.Tensor, outputNames []string) ([]backend.Tensor, error) {
	li := inst.(*llamaInstance)
	if li.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	var text backend.Tensor
	for i, name := range inputNames {
		if name == "TEXT" {
			text = inputs[i]
		}
	}
	if text == nil {
		return nil, errors.New("input TEXT not provided")
	}
	shape := text.Shape()
	if len(shape) != 2 || shape[0] <= 0 {
		return nil, fmt.Errorf("TEXT must have shape [batch, bytes], got %v", shape)
	}
	batch, width := int(shape[0]), int(shape[1])
	raw := text.Bytes()

	var data []byte
	dim := 0
	for i := 0; i < batch; i++ {
		entry := bytes.TrimRight(raw[i*width:(i+1)*width], "\x00")
		emb, err := li.model.Embeddings(string(entry), llama.SetThreads(li.threads))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if i == 0 {
			dim = len(emb)
			data = make([]byte, 0, batch*dim*4)
		} else if len(emb) != dim {
			return nil, fmt.Errorf("entry %d: embedding size %d, expected %d", i, len(emb), dim)
		}
		for _, f := range emb {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}
	}

	nt, _ := hostNative(types.TypeFP32)
	outs := make([]backend.Tensor, 0, len(outputNames))
	for _, name := range outputNames {
		if name != "EMBEDDING" {
			return outs, fmt.Errorf("unknown output %q", name)
		}
		outs = append(outs, &hostTensor{shape: []int64{int64(batch), int64(dim)}, nt: nt, data: data})
	}
	return outs, nil
}

func (r *Llama) ReleaseTensor(backend.Tensor) error { return nil }
