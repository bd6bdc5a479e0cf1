package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tensord/internal/backend"
	"tensord/internal/scheduler"
	"tensord/pkg/types"
)

// Infer validates req against the model configuration, queues it on the
// model's scheduler and returns its outputs. The model is loaded first if
// needed. Waiting longer than MaxWait for execution reports too busy.
func (m *Manager) Infer(ctx context.Context, name string, req types.InferRequest) (types.InferResponse, error) {
	startTs := time.Now()
	sched, entry, err := m.ensureLoaded(ctx, name)
	if err != nil {
		return types.InferResponse{}, err
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload, sink, err := buildPayload(entry.Config, req)
	if err != nil {
		return types.InferResponse{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.maxWait)
	defer cancel()
	if err := sched.Submit(waitCtx, payload); err != nil {
		err = classifySubmitError(ctx, name, err)
		m.log.Debug().Err(err).Str("event", "infer_failed").Str("model", name).Str("request_id", id).Msg("inference failed")
		m.publish("infer_failed", name, map[string]any{"id": id, "error": err.Error()})
		return types.InferResponse{}, err
	}
	outputs, err := sink.collect(entry.Config)
	if err != nil {
		return types.InferResponse{}, err
	}
	m.publish("infer_done", name, map[string]any{
		"id":         id,
		"batch_size": payload.BatchSize,
		"dur_ms":     int(time.Since(startTs) / time.Millisecond),
	})
	return types.InferResponse{ID: id, Model: name, Outputs: outputs}, nil
}

func classifySubmitError(ctx context.Context, name string, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrQueueFull):
		return tooBusyError{model: name, reason: "queue full"}
	case errors.Is(err, scheduler.ErrStopped):
		return tooBusyError{model: name, reason: "model is draining"}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return tooBusyError{model: name, reason: "timed out waiting for execution"}
	case backend.IsSizeMismatch(err), backend.IsSchemaMismatch(err):
		return badRequestError{msg: "invalid request", err: err}
	}
	return err
}

// buildPayload checks every request tensor against the declared inputs and
// turns the request into one backend payload writing into a fresh sink.
func buildPayload(cfg types.ModelConfig, req types.InferRequest) (*backend.Payload, *tensorSink, error) {
	batch := req.BatchSize
	if batch == 0 {
		batch = 1
	}
	batching := cfg.MaxBatchSize != backend.NoBatching
	switch {
	case batch < 0:
		return nil, nil, ErrBadRequest("batch_size must be positive")
	case !batching && batch != 1:
		return nil, nil, ErrBadRequest(fmt.Sprintf("model %s does not support batching", cfg.Name))
	case batching && batch > cfg.MaxBatchSize:
		return nil, nil, ErrBadRequest(fmt.Sprintf("batch_size %d exceeds max_batch_size %d", batch, cfg.MaxBatchSize))
	}

	byName := make(map[string]types.TensorData, len(req.Inputs))
	for _, t := range req.Inputs {
		if _, ok := cfg.Input(t.Name); !ok {
			return nil, nil, ErrBadRequest(fmt.Sprintf("unknown input %q", t.Name))
		}
		if _, dup := byName[t.Name]; dup {
			return nil, nil, ErrBadRequest(fmt.Sprintf("duplicate input %q", t.Name))
		}
		byName[t.Name] = t
	}

	inputs := make([]backend.InputTensor, 0, len(cfg.Inputs))
	for _, decl := range cfg.Inputs {
		t, ok := byName[decl.Name]
		if !ok {
			return nil, nil, ErrBadRequest(fmt.Sprintf("missing input %q", decl.Name))
		}
		dt, err := types.ParseDataType(t.DataType)
		if err != nil {
			return nil, nil, badRequestError{msg: fmt.Sprintf("input %q", decl.Name), err: err}
		}
		if dt != decl.DataType {
			return nil, nil, ErrBadRequest(fmt.Sprintf("input %q: datatype %s, expected %s", decl.Name, dt.WireName(), decl.DataType.WireName()))
		}
		dims, err := requestDims(decl, t.Shape, batch, batching)
		if err != nil {
			return nil, nil, err
		}
		want := int64(batch) * int64(dt.ByteSize())
		for _, d := range dims {
			want *= d
		}
		if int64(len(t.Data)) != want {
			return nil, nil, ErrBadRequest(fmt.Sprintf("input %q: got %d bytes, expected %d", decl.Name, len(t.Data), want))
		}
		inputs = append(inputs, backend.InputTensor{Name: decl.Name, DataType: dt, Dims: dims, Data: t.Data})
	}

	sink := newTensorSink()
	return &backend.Payload{BatchSize: batch, Inputs: inputs, Outputs: sink}, sink, nil
}

// requestDims returns the per-entry dims of a request tensor. A batching
// model expects the batch size as leading dimension. An omitted shape stands
// for the declared dims when they hold no wildcard.
func requestDims(decl types.ModelInput, shape []int64, batch int, batching bool) ([]int64, error) {
	if len(shape) == 0 && !hasWildcard(decl.Dims) {
		return append([]int64(nil), decl.Dims...), nil
	}
	if batching {
		if len(shape) == 0 || shape[0] != int64(batch) {
			return nil, ErrBadRequest(fmt.Sprintf("input %q: shape %v must start with batch size %d", decl.Name, shape, batch))
		}
		shape = shape[1:]
	}
	if len(shape) != len(decl.Dims) {
		return nil, ErrBadRequest(fmt.Sprintf("input %q: shape %v does not match dims %v", decl.Name, shape, decl.Dims))
	}
	for i, d := range decl.Dims {
		if shape[i] <= 0 || (d != -1 && shape[i] != d) {
			return nil, ErrBadRequest(fmt.Sprintf("input %q: shape %v does not match dims %v", decl.Name, shape, decl.Dims))
		}
	}
	return append([]int64(nil), shape...), nil
}

func hasWildcard(dims []int64) bool {
	for _, d := range dims {
		if d == -1 {
			return true
		}
	}
	return false
}
