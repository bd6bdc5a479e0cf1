package manager

import (
	"context"
	"time"

	"tensord/internal/backend"
	"tensord/internal/scheduler"
	"tensord/pkg/types"
)

// LoadModel creates the execution contexts of a repository model and starts
// its scheduler. Loading an already ready model is a no-op; a model that is
// loading or draining reports too busy.
func (m *Manager) LoadModel(ctx context.Context, name string) error {
	startTs := time.Now()
	m.mu.Lock()
	entry, ok := m.getEntry(name)
	if !ok {
		m.mu.Unlock()
		m.log.Debug().Str("event", "load_model_not_found").Str("model", name).Msg("model not in repository")
		return ErrModelNotFound(name)
	}
	st := m.models[name]
	switch st.State {
	case StateReady:
		st.LastUsed = time.Now()
		m.mu.Unlock()
		return nil
	case StateLoading, StateDraining:
		state := st.State
		m.mu.Unlock()
		return tooBusyError{model: name, reason: "model is " + string(state)}
	}
	st.State = StateLoading
	st.Err = ""
	m.mu.Unlock()

	m.log.Info().Str("event", "load_start").Str("model", name).Str("platform", entry.Config.Platform).Msg("loading model")
	m.publish("load_start", name, nil)

	b, sched, err := m.build(ctx, entry)
	if err != nil {
		m.mu.Lock()
		st.State = StateError
		st.Err = err.Error()
		m.mu.Unlock()
		m.log.Error().Err(err).Str("event", "load_failed").Str("model", name).Msg("model load failed")
		m.publish("load_failed", name, map[string]any{"error": err.Error()})
		return err
	}

	m.mu.Lock()
	st.backend = b
	st.sched = sched
	st.State = StateReady
	st.LastUsed = time.Now()
	m.mu.Unlock()
	m.loadsTotal.Add(1)

	dur := time.Since(startTs)
	m.log.Info().Str("event", "load_ready").Str("model", name).Int("instances", b.Runners()).Dur("dur", dur).Msg("model ready")
	m.publish("load_ready", name, map[string]any{"instances": b.Runners(), "dur_ms": int(dur / time.Millisecond)})
	return nil
}

func (m *Manager) build(ctx context.Context, entry types.ModelEntry) (*backend.Backend, *scheduler.Scheduler, error) {
	rt, err := m.runtimeFor(entry.Config)
	if err != nil {
		return nil, nil, runtimeError(err)
	}
	b := backend.New(entry.Config, rt, backend.Options{
		Logger:          m.log,
		Context:         m.ctxOpts,
		Metrics:         m.backendMetrics,
		LoadConcurrency: m.loadConcurrency,
	})
	if err := b.CreateExecutionContexts(ctx, m.caps, entry.Artifacts); err != nil {
		return nil, nil, err
	}
	s, err := scheduler.New(b, scheduler.Config{
		Model:       entry.Config.Name,
		BatchWindow: m.batchWindow,
		QueueDepth:  m.maxQueueDepth,
		Logger:      m.log,
		Metrics:     m.schedMetrics,
	})
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	s.Start()
	return b, s, nil
}

// ensureLoaded returns the scheduler of a ready model, loading it first when it
// is unloaded or a previous load failed.
func (m *Manager) ensureLoaded(ctx context.Context, name string) (*scheduler.Scheduler, types.ModelEntry, error) {
	sched, entry, err := m.loadedModel(name)
	if err != nil || sched != nil {
		return sched, entry, err
	}
	if err := m.LoadModel(ctx, name); err != nil {
		return nil, entry, err
	}
	sched, entry, err = m.loadedModel(name)
	if err == nil && sched == nil {
		err = tooBusyError{model: name, reason: "model was unloaded"}
	}
	return sched, entry, err
}
