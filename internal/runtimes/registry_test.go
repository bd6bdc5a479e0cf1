//go:build !onnx && !llama

package runtimes

import (
	"errors"
	"testing"

	"tensord/pkg/types"
)

func TestLookup(t *testing.T) {
	if rt, err := Lookup(types.ModelConfig{Name: "a", Platform: "Identity"}, Options{}); err != nil || rt.Name() != PlatformIdentity {
		t.Fatalf("identity: %v %v", rt, err)
	}
	for _, p := range []string{"onnxruntime", "llama"} {
		if _, err := Lookup(types.ModelConfig{Name: "a", Platform: p}, Options{}); !errors.Is(err, ErrNotBuilt) {
			t.Fatalf("%s: expected ErrNotBuilt, got %v", p, err)
		}
	}
	if _, err := Lookup(types.ModelConfig{Name: "a", Platform: "tensorflow"}, Options{}); err == nil {
		t.Fatalf("expected unknown platform error")
	}
	if _, err := Lookup(types.ModelConfig{Name: "a"}, Options{}); err == nil {
		t.Fatalf("expected missing platform error")
	}
}

func TestDefaultArtifact(t *testing.T) {
	cases := map[string]string{"onnxruntime": "model.onnx", "llama": "model.gguf", "identity": "model.bin"}
	for p, want := range cases {
		if got := DefaultArtifact(p); got != want {
			t.Fatalf("%s: got %s want %s", p, got, want)
		}
	}
}
