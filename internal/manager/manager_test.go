package manager

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"tensord/internal/backend"
	"tensord/internal/runtimes"
	"tensord/internal/scheduler"
	"tensord/pkg/types"
)

func TestNewWithConfigDefaults(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	if m.maxQueueDepth != defaultMaxQueueDepth {
		t.Fatalf("expected default maxQueueDepth=%d got %d", defaultMaxQueueDepth, m.maxQueueDepth)
	}
	if m.maxWait != defaultMaxWait || m.drainTimeout != defaultDrainTimeout {
		t.Fatalf("expected defaults, got wait=%s drain=%s", m.maxWait, m.drainTimeout)
	}
	if m.Ready() {
		t.Fatalf("empty manager must not be ready")
	}
}

func TestListModelsSortedWithState(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{identityEntry(t, "b", 4), identityEntry(t, "a", 0)}})
	want := []types.ModelSummary{
		{Name: "a", Platform: "identity", MaxBatchSize: 0, State: "unloaded"},
		{Name: "b", Platform: "identity", MaxBatchSize: 4, State: "unloaded"},
	}
	if diff := cmp.Diff(want, m.ListModels()); diff != "" {
		t.Fatalf("models (-want +got):\n%s", diff)
	}
}

func TestInfer_LazyLoadDoubles(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{identityEntry(t, "m", 4)}})
	resp, err := m.Infer(testCtx(t), "m", fp32Request(1, 1, 2))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if _, err := uuid.Parse(resp.ID); err != nil {
		t.Fatalf("expected generated uuid, got %q", resp.ID)
	}
	if len(resp.Outputs) != 1 {
		t.Fatalf("outputs: %+v", resp.Outputs)
	}
	out := resp.Outputs[0]
	if out.Name != "y" || out.DataType != "FP32" {
		t.Fatalf("unexpected output header %+v", out)
	}
	if diff := cmp.Diff([]int64{1, 2}, out.Shape); diff != "" {
		t.Fatalf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{2, 4}, bytesF32(out.Data)); diff != "" {
		t.Fatalf("data (-want +got):\n%s", diff)
	}
	if !m.Ready() {
		t.Fatalf("expected ready after first inference")
	}
	st := m.Status()
	if st.State != "ready" || st.LoadsTotal != 1 || len(st.Models[0].Instances) != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Models[0].Instances[0].Name != "m_0_cpu" || st.Models[0].Instances[0].Runs != 1 {
		t.Fatalf("unexpected instance status %+v", st.Models[0].Instances[0])
	}
}

func TestInfer_KeepsClientID(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{identityEntry(t, "m", 4)}})
	req := fp32Request(2, 1, 1, 3, 3)
	req.ID = "req-1"
	resp, err := m.Infer(testCtx(t), "m", req)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if resp.ID != "req-1" || resp.Model != "m" {
		t.Fatalf("unexpected response header %+v", resp)
	}
	if diff := cmp.Diff([]float32{2, 2, 6, 6}, bytesF32(resp.Outputs[0].Data)); diff != "" {
		t.Fatalf("data (-want +got):\n%s", diff)
	}
}

func TestInfer_ConcurrentRequestsGetOwnOutputs(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		Models:      []types.ModelEntry{identityEntry(t, "m", 4)},
		BatchWindow: 10 * time.Millisecond,
	})
	if err := m.LoadModel(testCtx(t), "m"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := float32(i)
			resp, err := m.Infer(testCtx(t), "m", fp32Request(1, v, v+0.5))
			if err != nil {
				errs[i] = err
				return
			}
			got := bytesF32(resp.Outputs[0].Data)
			if got[0] != 2*v || got[1] != 2*v+1 {
				errs[i] = fmt.Errorf("request %d got %v", i, got)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestInfer_WildcardShapesInOneWindow(t *testing.T) {
	e := identityEntry(t, "m", 4)
	e.Config.Inputs[0].Dims = []int64{-1}
	e.Config.Outputs[0].Dims = []int64{-1}
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{e}, BatchWindow: 200 * time.Millisecond})
	if err := m.LoadModel(testCtx(t), "m"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	vals := [][]float32{{1, 2}, {3, 4, 5}}
	got := make([][]float32, len(vals))
	shapes := make([][]int64, len(vals))
	errs := make([]error, len(vals))
	var wg sync.WaitGroup
	for i, v := range vals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := types.InferRequest{BatchSize: 1, Inputs: []types.TensorData{{
				Name: "x", DataType: "FP32", Shape: []int64{1, int64(len(v))}, Data: f32bytes(v...),
			}}}
			resp, err := m.Infer(testCtx(t), "m", req)
			if err != nil {
				errs[i] = err
				return
			}
			got[i] = bytesF32(resp.Outputs[0].Data)
			shapes[i] = resp.Outputs[0].Shape
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if diff := cmp.Diff([][]float32{{2, 4}, {6, 8, 10}}, got); diff != "" {
		t.Fatalf("outputs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int64{{1, 2}, {1, 3}}, shapes); diff != "" {
		t.Fatalf("shapes (-want +got):\n%s", diff)
	}
}

func TestInfer_NonBatchingModelShapes(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{identityEntry(t, "m", 0)}})
	req := types.InferRequest{Inputs: []types.TensorData{{Name: "x", DataType: "FP32", Shape: []int64{2}, Data: f32bytes(5, 6)}}}
	resp, err := m.Infer(testCtx(t), "m", req)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if diff := cmp.Diff([]int64{2}, resp.Outputs[0].Shape); diff != "" {
		t.Fatalf("shape (-want +got):\n%s", diff)
	}
}

func TestInfer_BadRequests(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{identityEntry(t, "m", 2)}})
	good := func() types.InferRequest { return fp32Request(1, 1, 2) }
	cases := map[string]func(*types.InferRequest){
		"unknown input":   func(r *types.InferRequest) { r.Inputs[0].Name = "z" },
		"missing input":   func(r *types.InferRequest) { r.Inputs = nil },
		"duplicate input": func(r *types.InferRequest) { r.Inputs = append(r.Inputs, r.Inputs[0]) },
		"wrong datatype":  func(r *types.InferRequest) { r.Inputs[0].DataType = "INT32" },
		"bad datatype":    func(r *types.InferRequest) { r.Inputs[0].DataType = "FP128" },
		"short data":      func(r *types.InferRequest) { r.Inputs[0].Data = r.Inputs[0].Data[:4] },
		"batch mismatch":  func(r *types.InferRequest) { r.Inputs[0].Shape = []int64{2, 2} },
		"wrong dims":      func(r *types.InferRequest) { r.Inputs[0].Shape = []int64{1, 3} },
		"batch too large": func(r *types.InferRequest) { r.BatchSize = 3 },
		"negative batch":  func(r *types.InferRequest) { r.BatchSize = -1 },
	}
	for name, mutate := range cases {
		req := good()
		mutate(&req)
		_, err := m.Infer(testCtx(t), "m", req)
		if !IsBadRequest(err) {
			t.Fatalf("%s: expected bad request, got %v", name, err)
		}
	}
	// shape may be omitted when the declared dims are fixed
	req := good()
	req.Inputs[0].Shape = nil
	if _, err := m.Infer(testCtx(t), "m", req); err != nil {
		t.Fatalf("omitted shape: %v", err)
	}
}

func TestInfer_ModelNotFound(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	_, err := m.Infer(testCtx(t), "missing", fp32Request(1, 1, 2))
	if !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
	if err := m.LoadModel(testCtx(t), "missing"); !IsModelNotFound(err) {
		t.Fatalf("LoadModel: expected model not found, got %v", err)
	}
	if err := m.Unload("missing"); !IsModelNotFound(err) {
		t.Fatalf("Unload: expected model not found, got %v", err)
	}
}

func TestLoadModel_RuntimeNotBuilt(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		Models: []types.ModelEntry{identityEntry(t, "m", 4)},
		RuntimeFactory: func(types.ModelConfig) (backend.Runtime, error) {
			return nil, fmt.Errorf("onnxruntime: %w", runtimes.ErrNotBuilt)
		},
	})
	err := m.LoadModel(testCtx(t), "m")
	if !IsDependencyUnavailable(err) || !errors.Is(err, runtimes.ErrNotBuilt) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	st := m.Status()
	if st.Models[0].State != "error" || st.Models[0].Error == "" {
		t.Fatalf("expected error state, got %+v", st.Models[0])
	}
	// unloading a failed model clears the error
	if err := m.Unload("m"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if got := m.ListModels()[0].State; got != "unloaded" {
		t.Fatalf("state after unload %q", got)
	}
}

func TestLoadModel_MissingArtifactIsLoadFailure(t *testing.T) {
	e := identityEntry(t, "m", 4)
	e.Artifacts = map[string]string{}
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{e}})
	err := m.LoadModel(testCtx(t), "m")
	if !backend.IsResolution(err) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if m.Ready() {
		t.Fatalf("model without instances must not be ready")
	}
}

func TestUnload_EmitsEventsAndReleases(t *testing.T) {
	pub := NewMemoryPublisher()
	m := newTestManager(t, ManagerConfig{
		Models:       []types.ModelEntry{identityEntry(t, "m", 4)},
		Publisher:    pub,
		DrainTimeout: 100 * time.Millisecond,
	})
	if err := m.LoadModel(testCtx(t), "m"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if err := m.LoadModel(testCtx(t), "m"); err != nil {
		t.Fatalf("second LoadModel must be a no-op: %v", err)
	}
	if err := m.Unload("m"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	want := []string{"load_start", "load_ready", "unload_start", "unload_done"}
	if diff := cmp.Diff(want, pub.Names("m")); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	m.mu.RLock()
	st := m.models["m"]
	released := st.backend == nil && st.sched == nil && st.State == StateUnloaded
	m.mu.RUnlock()
	if !released {
		t.Fatalf("model not released after unload")
	}
	if err := m.Unload("m"); err != nil {
		t.Fatalf("second Unload: %v", err)
	}
}

func TestInfer_WaitTimeoutIsTooBusy(t *testing.T) {
	gate := make(chan struct{})
	rt := &gatedRuntime{gate: gate, entered: make(chan struct{}, 4)}
	m := newTestManager(t, ManagerConfig{
		Models:  []types.ModelEntry{identityEntry(t, "m", 0)},
		MaxWait: 50 * time.Millisecond,
		RuntimeFactory: func(cfg types.ModelConfig) (backend.Runtime, error) {
			id, err := runtimes.NewIdentity(cfg)
			rt.Runtime = id
			return rt, err
		},
	})
	t.Cleanup(func() { close(gate) })
	if err := m.LoadModel(testCtx(t), "m"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	req := types.InferRequest{Inputs: []types.TensorData{{Name: "x", DataType: "FP32", Shape: []int64{2}, Data: f32bytes(1, 2)}}}
	ctx := testCtx(t)
	go func() { _, _ = m.Infer(ctx, "m", req) }()
	<-rt.entered

	_, err := m.Infer(testCtx(t), "m", req)
	if !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
}

func TestClassifySubmitError(t *testing.T) {
	if err := classifySubmitError(testCtx(t), "m", fmt.Errorf("submit: %w", scheduler.ErrQueueFull)); !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	size := &backend.SizeMismatchError{Model: "m", Input: "x", Expected: 8, Actual: 4}
	if err := classifySubmitError(testCtx(t), "m", size); !IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestManager_MetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestManager(t, ManagerConfig{Models: []types.ModelEntry{identityEntry(t, "m", 4)}, Registerer: reg})
	if _, err := m.Infer(testCtx(t), "m", fp32Request(1, 1, 2)); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range mfs {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{"tensord_backend_runs_total", "tensord_scheduler_queue_wait_seconds"} {
		if !seen[name] {
			t.Fatalf("metric %s not registered; have %v", name, seen)
		}
	}
}
