package manager

import (
	"fmt"
	"sync"

	"tensord/internal/backend"
	"tensord/pkg/types"
)

// tensorSink collects the outputs the backend writes for one request.
type tensorSink struct {
	mu      sync.Mutex
	outputs map[string]types.TensorData
}

func newTensorSink() *tensorSink {
	return &tensorSink{outputs: make(map[string]types.TensorData)}
}

func (s *tensorSink) WriteOutput(name string, dt types.DataType, shape []int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[name] = types.TensorData{
		Name:     name,
		DataType: dt.WireName(),
		Shape:    append([]int64(nil), shape...),
		Data:     data,
	}
	return nil
}

// collect returns the outputs in declaration order. Models without
// batching report shapes without the batch dimension, like their inputs.
func (s *tensorSink) collect(cfg types.ModelConfig) ([]types.TensorData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TensorData, 0, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		t, ok := s.outputs[o.Name]
		if !ok {
			return nil, fmt.Errorf("output %q was not produced", o.Name)
		}
		if cfg.MaxBatchSize == backend.NoBatching && len(t.Shape) > 0 {
			t.Shape = t.Shape[1:]
		}
		out = append(out, t)
	}
	return out, nil
}
