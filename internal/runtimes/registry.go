// Package runtimes holds the framework variants behind backend.Runtime and
// picks one for a model by its configured platform.
package runtimes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tensord/internal/backend"
	"tensord/pkg/types"
)

const (
	PlatformIdentity = "identity"
	PlatformONNX     = "onnxruntime"
	PlatformLlama    = "llama"
)

// ErrNotBuilt is returned when a platform's runtime was left out of this
// binary by build tags.
var ErrNotBuilt = errors.New("runtime not compiled into this binary")

// Options carry process-wide runtime settings.
type Options struct {
	Logger zerolog.Logger
	// ONNXLibraryPath points at libonnxruntime; empty uses the loader default.
	ONNXLibraryPath string
	// LlamaContextSize is the context length used for embedding models.
	LlamaContextSize int
	// LlamaGPULayers is the number of layers offloaded for GPU instances.
	LlamaGPULayers int
	Threads        int
}

// Lookup returns the runtime serving cfg.Platform.
func Lookup(cfg types.ModelConfig, opts Options) (backend.Runtime, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Platform)) {
	case PlatformIdentity:
		rt, err := NewIdentity(cfg)
		if err != nil {
			return nil, err
		}
		return rt, nil
	case PlatformONNX, "onnx":
		return NewONNX(opts)
	case PlatformLlama, "llama.cpp":
		return NewLlama(opts)
	case "":
		return nil, fmt.Errorf("model %s: platform is not set", cfg.Name)
	default:
		return nil, fmt.Errorf("model %s: unknown platform %q", cfg.Name, cfg.Platform)
	}
}

// DefaultArtifact is the artifact filename assumed for a platform when a
// model configuration names none.
func DefaultArtifact(platform string) string {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case PlatformONNX, "onnx":
		return "model.onnx"
	case PlatformLlama, "llama.cpp":
		return "model.gguf"
	default:
		return "model.bin"
	}
}
