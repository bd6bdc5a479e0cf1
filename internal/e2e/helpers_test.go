package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"tensord/internal/backend"
	"tensord/internal/httpapi"
	"tensord/internal/manager"
	"tensord/internal/registry"
)

// identityConfig is a model doubling an FP32 vector of length 2.
const identityConfig = `name: %s
platform: identity
max_batch_size: %d
input:
  - name: x
    data_type: TYPE_FP32
    dims: [2]
output:
  - name: y
    data_type: TYPE_FP32
    dims: [2]
parameters:
  scale: "2"
`

// createTempRepository writes one identity model per name and returns the
// repository directory.
func createTempRepository(t *testing.T, maxBatch int, names ...string) string {
	t.Helper()
	repo := t.TempDir()
	for _, n := range names {
		dir := filepath.Join(repo, n)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		cfg := fmt.Sprintf(identityConfig, n, maxBatch)
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "model.bin"), nil, 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}
	return repo
}

// newServerForRepository serves repo through the real manager and HTTP stack.
func newServerForRepository(t *testing.T, repo string, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	entries, err := registry.LoadRepository(repo)
	if err != nil {
		t.Fatalf("load repository: %v", err)
	}
	cfg.Models = entries
	cfg.Logger = zerolog.Nop()
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	return do(t, req)
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(t, req)
}

// do is safe to call from goroutines other than the test's: it reports
// transport failures with t.Errorf.
func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Errorf("do req: %v", err)
		return &http.Response{}, nil
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// inferBody builds a one-entry FP32 request for input x.
func inferBody(id string, vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return []byte(fmt.Sprintf(`{"id":%q,"inputs":[{"name":"x","datatype":"FP32","shape":[1,%d],"data":%q}]}`,
		id, len(vals), base64.StdEncoding.EncodeToString(b)))
}

func decodeF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// gatedRuntime holds every Invoke until gate is closed.
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
