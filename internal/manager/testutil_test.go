package manager

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tensord/internal/backend"
	"tensord/internal/runtimes"
	"tensord/pkg/types"
)

// identityEntry creates a model directory holding an empty artifact and
// returns an identity model doubling FP32 vectors of length 2.
func identityEntry(t *testing.T, name string, maxBatch int) types.ModelEntry {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	artifact := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(artifact, nil, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return types.ModelEntry{
		Config: types.ModelConfig{
			Name:                 name,
			Platform:             runtimes.PlatformIdentity,
			MaxBatchSize:         maxBatch,
			Inputs:               []types.ModelInput{{Name: "x", DataType: types.TypeFP32, Dims: []int64{2}}},
			Outputs:              []types.ModelOutput{{Name: "y", DataType: types.TypeFP32, Dims: []int64{2}}},
			DefaultModelFilename: "model.bin",
			Parameters:           map[string]string{"scale": "2"},
		},
		Dir:       dir,
		Artifacts: map[string]string{"model.bin": artifact},
	}
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func f32bytes(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func fp32Request(batch int, vals ...float32) types.InferRequest {
	return types.InferRequest{
		BatchSize: batch,
		Inputs: []types.TensorData{{
			Name:     "x",
			DataType: "FP32",
			Shape:    []int64{int64(batch), 2},
			Data:     f32bytes(vals...),
		}},
	}
}

// gatedRuntime blocks every Invoke until gate is closed.
type gatedRuntime struct {
	backend.Runtime
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedRuntime) Invoke(inst backend.Instance, inputNames []string, inputs []backend.Tensor, outputNames []string) ([]backend.Tensor, error) {
	g.entered <- struct{}{}
	<-g.gate
	return g.Runtime.Invoke(inst, inputNames, inputs, outputNames)
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
