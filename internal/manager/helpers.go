package manager

import (
	"errors"
	"time"

	"tensord/internal/runtimes"
	"tensord/internal/scheduler"
	"tensord/pkg/types"
)

// Helper: find model in repository by name.
func (m *Manager) getEntry(name string) (types.ModelEntry, bool) {
	for _, e := range m.entries {
		if e.Config.Name == name {
			return e, true
		}
	}
	return types.ModelEntry{}, false
}

// loadedModel returns the scheduler and repository entry of a ready model.
// A nil scheduler with a nil error means the model is not loaded.
func (m *Manager) loadedModel(name string) (*scheduler.Scheduler, types.ModelEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.getEntry(name)
	if !ok {
		return nil, entry, ErrModelNotFound(name)
	}
	st := m.models[name]
	switch st.State {
	case StateReady:
		st.LastUsed = time.Now()
		return st.sched, entry, nil
	case StateLoading:
		return nil, entry, tooBusyError{model: name, reason: "model is loading"}
	case StateDraining:
		return nil, entry, tooBusyError{model: name, reason: "model is draining"}
	default:
		return nil, entry, nil
	}
}

// runtimeError classifies a runtime selection failure.
func runtimeError(err error) error {
	if errors.Is(err, runtimes.ErrNotBuilt) {
		return dependencyUnavailableError{msg: "runtime unavailable", err: err}
	}
	return err
}
