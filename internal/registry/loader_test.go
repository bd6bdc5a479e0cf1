package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const identityConfig = `platform: identity
max_batch_size: 4
input:
  - {name: x, data_type: FP32, dims: [2]}
output:
  - {name: y, data_type: FP32, dims: [2]}
`

func writeModel(t *testing.T, repo, dir string, files map[string]string) {
	t.Helper()
	md := filepath.Join(repo, dir)
	if err := os.MkdirAll(md, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(md, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadRepository(t *testing.T) {
	repo := t.TempDir()
	writeModel(t, repo, "zeta", map[string]string{"config.yaml": identityConfig, "model.bin": "x"})
	writeModel(t, repo, "alpha", map[string]string{
		"config.yaml":     identityConfig,
		"model.bin":       "x",
		"model_sm75.bin":  "y",
		".ignored-by-dot": "z",
	})
	writeModel(t, repo, "no-config", map[string]string{"model.bin": "x"})
	if err := os.WriteFile(filepath.Join(repo, "README"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := LoadRepository(repo)
	if err != nil {
		t.Fatalf("LoadRepository: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Config.Name)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	alpha := entries[0]
	want := map[string]string{
		"model.bin":      filepath.Join(repo, "alpha", "model.bin"),
		"model_sm75.bin": filepath.Join(repo, "alpha", "model_sm75.bin"),
	}
	if diff := cmp.Diff(want, alpha.Artifacts); diff != "" {
		t.Fatalf("artifacts (-want +got):\n%s", diff)
	}
	if _, ok := Find(entries, "zeta"); !ok {
		t.Fatalf("Find failed")
	}
}

func TestLoadRepository_BrokenModelReported(t *testing.T) {
	repo := t.TempDir()
	writeModel(t, repo, "good", map[string]string{"config.yaml": identityConfig, "model.bin": "x"})
	writeModel(t, repo, "bad", map[string]string{"config.json": `{"platform": "identity", "input": []}`})
	entries, err := LoadRepository(repo)
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected error naming the broken model, got %v", err)
	}
	if len(entries) != 1 || entries[0].Config.Name != "good" {
		t.Fatalf("good model must still load: %+v", entries)
	}
}

func TestLoadRepository_ExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeModel(t, filepath.Join(home, "repo"), "m", map[string]string{"config.yaml": identityConfig, "model.bin": "x"})
	entries, err := LoadRepository("~/repo")
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
	if _, err := LoadRepository(filepath.Join(home, "missing")); err == nil {
		t.Fatalf("expected error for missing repository")
	}
}
