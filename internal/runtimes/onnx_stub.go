//go:build !onnx

package runtimes

import (
	"fmt"

	"tensord/internal/backend"
)

// NewONNX fails in binaries built without the 'onnx' tag, keeping default
// builds free of the ONNX Runtime shared library.
func NewONNX(Options) (backend.Runtime, error) {
	return nil, fmt.Errorf("%s: %w (rebuild with -tags onnx)", PlatformONNX, ErrNotBuilt)
}
