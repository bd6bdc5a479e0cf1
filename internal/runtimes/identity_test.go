package runtimes

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tensord/internal/backend"
	"tensord/pkg/types"
)

func f32(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func toF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

type memSink map[string][]byte

func (m memSink) WriteOutput(name string, _ types.DataType, _ []int64, data []byte) error {
	m[name] = data
	return nil
}

func identityConfig(scale string) types.ModelConfig {
	cfg := types.ModelConfig{
		Name:                 "echo",
		Platform:             PlatformIdentity,
		MaxBatchSize:         8,
		Inputs:               []types.ModelInput{{Name: "x", DataType: types.TypeFP32, Dims: []int64{2}}},
		Outputs:              []types.ModelOutput{{Name: "y", DataType: types.TypeFP32, Dims: []int64{2}}},
		DefaultModelFilename: "model.bin",
	}
	if scale != "" {
		cfg.Parameters = map[string]string{"scale": scale}
	}
	return cfg
}

func writeArtifact(t *testing.T) map[string]string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(p, []byte("identity"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return map[string]string{"model.bin": p}
}

func TestIdentity_ThroughBackend(t *testing.T) {
	cfg := identityConfig("2")
	rt, err := Lookup(cfg, Options{})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	b := backend.New(cfg, rt, backend.Options{})
	if err := b.CreateExecutionContexts(context.Background(), nil, writeArtifact(t)); err != nil {
		t.Fatalf("CreateExecutionContexts: %v", err)
	}
	defer b.Close()

	s1, s2 := memSink{}, memSink{}
	payloads := []*backend.Payload{
		{BatchSize: 1, Inputs: []backend.InputTensor{{Name: "x", DataType: types.TypeFP32, Data: f32(1, 2)}}, Outputs: s1},
		{BatchSize: 1, Inputs: []backend.InputTensor{{Name: "x", DataType: types.TypeFP32, Data: f32(3, 4)}}, Outputs: s2},
	}
	var runErr error
	b.Run(0, payloads, func(err error) { runErr = err })
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if diff := cmp.Diff([]float32{2, 4}, toF32(s1["y"])); diff != "" {
		t.Fatalf("first (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{6, 8}, toF32(s2["y"])); diff != "" {
		t.Fatalf("second (-want +got):\n%s", diff)
	}
}

func TestIdentity_ConvertsToDeclaredOutputType(t *testing.T) {
	cfg := identityConfig("")
	cfg.Outputs[0].DataType = types.TypeInt32
	rt, err := NewIdentity(cfg)
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	nt, _ := rt.NativeType(types.TypeFP32)
	in, _ := rt.CreateTensor(nil, f32(1.4, -2.6), []int64{1, 2}, nt)
	outs, err := rt.Invoke(nil, []string{"x"}, []backend.Tensor{in}, []string{"y"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if rt.LogicalType(outs[0].NativeType()) != types.TypeInt32 {
		t.Fatalf("output type %s", rt.LogicalType(outs[0].NativeType()))
	}
	got := outs[0].Bytes()
	if int32(binary.LittleEndian.Uint32(got)) != 1 || int32(binary.LittleEndian.Uint32(got[4:])) != -3 {
		t.Fatalf("unexpected values %v", got)
	}
}

func TestIdentity_RejectsGPUAndMissingArtifact(t *testing.T) {
	rt, _ := NewIdentity(identityConfig(""))
	if _, err := rt.LoadInstance("/nope", 0, backend.ContextOptions{}); !errors.Is(err, backend.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if _, err := rt.LoadInstance(filepath.Join(t.TempDir(), "missing"), backend.NoDevice, backend.ContextOptions{}); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
	if _, err := NewIdentity(identityConfig("abc")); err == nil {
		t.Fatalf("expected invalid scale to fail")
	}
}
