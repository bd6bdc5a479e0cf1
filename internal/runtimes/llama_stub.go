//go:build !llama

package runtimes

// This file keeps default builds CGO-free. The llama.cpp runtime lives in
// llama.go behind the 'llama' build tag.

import (
	"fmt"

	"tensord/internal/backend"
)

// NewLlama refuses to build a runtime without the 'llama' tag.
func NewLlama(Options) (backend.Runtime, error) {
	return nil, fmt.Errorf("%s: %w (rebuild with -tags llama)", PlatformLlama, ErrNotBuilt)
}
