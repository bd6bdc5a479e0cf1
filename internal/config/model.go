package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"tensord/internal/runtimes"
	"tensord/pkg/types"
)

// ModelConfigNames are the filenames recognized as a model configuration,
// in lookup order.
var ModelConfigNames = []string{"config.yaml", "config.yml", "config.json", "config.toml"}

// LoadModelConfig reads and normalizes the model configuration at path.
// An empty name defaults to the name of the enclosing directory.
func LoadModelConfig(path string) (types.ModelConfig, error) {
	var cfg types.ModelConfig
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = filepath.Base(filepath.Dir(path))
	}
	if err := NormalizeModelConfig(&cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// NormalizeModelConfig fills defaults, canonicalizes datatype and kind
// spellings and rejects configurations the backend cannot serve.
func NormalizeModelConfig(cfg *types.ModelConfig) error {
	var errs []error
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if cfg.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("max_batch_size must be >= 0, got %d", cfg.MaxBatchSize))
	}
	if cfg.DefaultModelFilename == "" {
		cfg.DefaultModelFilename = runtimes.DefaultArtifact(cfg.Platform)
	}

	if len(cfg.Inputs) == 0 {
		errs = append(errs, errors.New("at least one input is required"))
	}
	if len(cfg.Outputs) == 0 {
		errs = append(errs, errors.New("at least one output is required"))
	}
	seen := map[string]string{}
	for i := range cfg.Inputs {
		in := &cfg.Inputs[i]
		errs = append(errs, normalizeTensor("input", &in.Name, &in.DataType, in.Dims, seen))
	}
	for i := range cfg.Outputs {
		out := &cfg.Outputs[i]
		errs = append(errs, normalizeTensor("output", &out.Name, &out.DataType, out.Dims, seen))
	}

	if len(cfg.InstanceGroups) == 0 {
		cfg.InstanceGroups = []types.InstanceGroup{{Kind: types.KindCPU, Count: 1}}
	}
	groupNames := map[string]bool{}
	for i := range cfg.InstanceGroups {
		g := &cfg.InstanceGroups[i]
		kind, err := ParseKind(string(g.Kind))
		if err != nil {
			errs = append(errs, fmt.Errorf("instance_group %d: %w", i, err))
		}
		g.Kind = kind
		if g.Count == 0 {
			g.Count = 1
		}
		if g.Count < 0 {
			errs = append(errs, fmt.Errorf("instance_group %d: count must be > 0", i))
		}
		if g.Kind == types.KindGPU && len(g.GPUs) == 0 {
			errs = append(errs, fmt.Errorf("instance_group %d: KIND_GPU requires gpus", i))
		}
		if g.Kind == types.KindCPU && len(g.GPUs) > 0 {
			errs = append(errs, fmt.Errorf("instance_group %d: KIND_CPU must not list gpus", i))
		}
		if g.Name != "" {
			if groupNames[g.Name] {
				errs = append(errs, fmt.Errorf("instance_group %d: duplicate name %q", i, g.Name))
			}
			groupNames[g.Name] = true
		}
	}
	return errors.Join(errs...)
}

func normalizeTensor(kind string, name *string, dt *types.DataType, dims []int64, seen map[string]string) error {
	*name = strings.TrimSpace(*name)
	if *name == "" {
		return fmt.Errorf("%s with empty name", kind)
	}
	if prev, ok := seen[*name]; ok {
		return fmt.Errorf("%s %q already declared as %s", kind, *name, prev)
	}
	seen[*name] = kind
	parsed, err := types.ParseDataType(string(*dt))
	if err != nil {
		return fmt.Errorf("%s %q: %w", kind, *name, err)
	}
	*dt = parsed
	for _, d := range dims {
		if d < -1 || d == 0 {
			return fmt.Errorf("%s %q: invalid dimension %d", kind, *name, d)
		}
	}
	return nil
}

// ParseKind accepts "KIND_CPU"/"CPU" and "KIND_GPU"/"GPU"; empty means CPU.
func ParseKind(s string) (types.InstanceKind, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch u {
	case "", "CPU", string(types.KindCPU):
		return types.KindCPU, nil
	case "GPU", string(types.KindGPU):
		return types.KindGPU, nil
	default:
		return types.KindCPU, fmt.Errorf("unknown instance kind %q", s)
	}
}
