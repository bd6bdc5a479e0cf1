package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"tensord/pkg/types"
)

type mockService struct {
	mu       sync.Mutex
	models   []types.ModelSummary
	status   types.StatusResponse
	ready    bool
	err      error
	loaded   []string
	unloaded []string
	lastReq  types.InferRequest
	infer    func(ctx context.Context, name string, req types.InferRequest) (types.InferResponse, error)
}

func (m *mockService) ListModels() []types.ModelSummary {
	return append([]types.ModelSummary(nil), m.models...)
}
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) LoadModel(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, name)
	return nil
}

func (m *mockService) Unload(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.unloaded = append(m.unloaded, name)
	return nil
}

func (m *mockService) Infer(ctx context.Context, name string, req types.InferRequest) (types.InferResponse, error) {
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	if m.infer != nil {
		return m.infer(ctx, name, req)
	}
	if m.err != nil {
		return types.InferResponse{}, m.err
	}
	return types.InferResponse{ID: req.ID, Model: name, Outputs: req.Inputs}, nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

const inferBody = `{"id":"r1","batch_size":1,"inputs":[{"name":"x","datatype":"FP32","shape":[1,1],"data":"AACAPw=="}]}`

func postInfer(t *testing.T, h http.Handler, model, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v2/models/"+model+"/infer", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
