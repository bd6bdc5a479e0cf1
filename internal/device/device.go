// Package device answers compute capability queries for GPU indexes.
package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"tensord/internal/backend"
)

// ErrUnknownDevice is returned for GPU indexes a lookup knows nothing about.
var ErrUnknownDevice = errors.New("unknown gpu")

// Static returns a lookup backed by a fixed table of device index to
// compute capability ("major.minor").
func Static(caps map[int]string) backend.CapabilityLookup {
	table := make(map[int]string, len(caps))
	for k, v := range caps {
		table[k] = strings.TrimSpace(v)
	}
	return func(dev int) (string, error) {
		cc, ok := table[dev]
		if !ok || cc == "" {
			return "", fmt.Errorf("gpu %d: %w", dev, ErrUnknownDevice)
		}
		return cc, nil
	}
}

// Chain tries each lookup in order and returns the first answer.
func Chain(lookups ...backend.CapabilityLookup) backend.CapabilityLookup {
	return func(dev int) (string, error) {
		var errs []error
		for _, l := range lookups {
			if l == nil {
				continue
			}
			cc, err := l(dev)
			if err == nil {
				return cc, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return "", fmt.Errorf("gpu %d: %w", dev, ErrUnknownDevice)
		}
		return "", errors.Join(errs...)
	}
}

// nvidiaSMIArgs queries one "index, major.minor" line per GPU.
var nvidiaSMIArgs = []string{"--query-gpu=index,compute_cap", "--format=csv,noheader"}

// ProbeNvidiaSMI runs nvidia-smi once and returns a static lookup built from
// its answer. bin defaults to "nvidia-smi" on PATH.
func ProbeNvidiaSMI(ctx context.Context, bin string) (backend.CapabilityLookup, map[int]string, error) {
	if strings.TrimSpace(bin) == "" {
		bin = "nvidia-smi"
	}
	out, err := exec.CommandContext(ctx, bin, nvidiaSMIArgs...).Output()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", bin, err)
	}
	caps, err := ParseComputeCaps(string(out))
	if err != nil {
		return nil, nil, err
	}
	return Static(caps), caps, nil
}

// ParseComputeCaps parses nvidia-smi csv output of index,compute_cap.
func ParseComputeCaps(out string) (map[int]string, error) {
	caps := map[int]string{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		idx, cc, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			return nil, fmt.Errorf("unexpected gpu index in %q: %w", line, err)
		}
		cc = strings.TrimSpace(cc)
		if _, err := strconv.ParseFloat(cc, 64); err != nil {
			return nil, fmt.Errorf("unexpected compute capability in %q", line)
		}
		caps[n] = cc
	}
	return caps, sc.Err()
}
