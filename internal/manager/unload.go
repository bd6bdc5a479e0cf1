package manager

import (
	"time"
)

// Unload initiates a graceful drain of a model and releases its contexts.
//   - Sets the model state to draining so new requests are rejected.
//   - Waits up to drainTimeout for queued requests to be picked up.
//   - Stops the scheduler, failing whatever is still queued, then closes
//     the backend.
//
// Unloading a model that is not loaded clears its error and returns nil.
func (m *Manager) Unload(name string) error {
	if name == "" {
		return ErrModelNotFound("(unspecified)")
	}
	m.mu.Lock()
	if _, ok := m.getEntry(name); !ok {
		m.mu.Unlock()
		return ErrModelNotFound(name)
	}
	st := m.models[name]
	switch st.State {
	case StateUnloaded, StateError:
		st.State = StateUnloaded
		st.Err = ""
		m.mu.Unlock()
		return nil
	case StateLoading, StateDraining:
		state := st.State
		m.mu.Unlock()
		return tooBusyError{model: name, reason: "model is " + string(state)}
	}
	st.State = StateDraining
	sched, b := st.sched, st.backend
	m.mu.Unlock()
	m.publish("unload_start", name, nil)

	deadline := time.Now().Add(m.drainTimeout)
	for {
		qlen := sched.Depth()
		if qlen == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.log.Warn().Str("event", "unload_timeout").Str("model", name).Int("queue", qlen).Msg("drain timed out")
			m.publish("unload_timeout", name, map[string]any{"queue": qlen})
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sched.Stop()
	err := b.Close()

	m.mu.Lock()
	st.State = StateUnloaded
	st.sched = nil
	st.backend = nil
	if err != nil {
		st.Err = err.Error()
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error().Err(err).Str("event", "unload_close_failed").Str("model", name).Msg("backend close failed")
	}
	m.log.Info().Str("event", "unload_done").Str("model", name).Msg("model unloaded")
	m.publish("unload_done", name, nil)
	return err
}
