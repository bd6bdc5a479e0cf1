package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"tensord/internal/common/fsutil"
	"tensord/internal/config"
	"tensord/pkg/types"
)

// LoadRepository scans dir for model directories. A sub-directory holding a
// config.{yaml,yml,json,toml} is a model; every other regular file in it is
// an artifact the model can load. Entries are sorted by name.
//
// A broken model does not hide the others: its error is joined into the
// returned error next to the entries that did load.
func LoadRepository(dir string) ([]types.ModelEntry, error) {
	abs, err := fsutil.AbsDir(dir)
	if err != nil {
		return nil, fmt.Errorf("model repository: %w", err)
	}
	dirs, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var entries []types.ModelEntry
	var errs []error
	names := map[string]string{}
	for _, d := range dirs {
		if !d.IsDir() || d.Name()[0] == '.' {
			continue
		}
		modelDir := filepath.Join(abs, d.Name())
		cfgPath := findConfig(modelDir)
		if cfgPath == "" {
			continue
		}
		entry, err := loadModel(modelDir, cfgPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := names[entry.Config.Name]; ok {
			errs = append(errs, fmt.Errorf("model %q declared in both %s and %s", entry.Config.Name, prev, modelDir))
			continue
		}
		names[entry.Config.Name] = modelDir
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Config.Name < entries[j].Config.Name })
	return entries, errors.Join(errs...)
}

func findConfig(modelDir string) string {
	for _, name := range config.ModelConfigNames {
		p := filepath.Join(modelDir, name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func loadModel(modelDir, cfgPath string) (types.ModelEntry, error) {
	cfg, err := config.LoadModelConfig(cfgPath)
	if err != nil {
		return types.ModelEntry{}, err
	}
	artifacts, err := fsutil.RegularFiles(modelDir, func(name string) bool {
		return slices.Contains(config.ModelConfigNames, name)
	})
	if err != nil {
		return types.ModelEntry{}, fmt.Errorf("model %s: %w", cfg.Name, err)
	}
	return types.ModelEntry{Config: cfg, Dir: modelDir, Artifacts: artifacts}, nil
}

// Find returns the entry named name.
func Find(entries []types.ModelEntry, name string) (types.ModelEntry, bool) {
	for _, e := range entries {
		if e.Config.Name == name {
			return e, true
		}
	}
	return types.ModelEntry{}, false
}
