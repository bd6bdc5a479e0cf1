package manager

import (
	"time"

	"tensord/internal/backend"
	"tensord/internal/scheduler"
)

// State represents the lifecycle state of a model.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateDraining State = "draining"
	StateError    State = "error"
)

// modelState is the live part of a repository model. backend and sched are
// set only while State is ready or draining.
type modelState struct {
	State    State
	Err      string
	LastUsed time.Time

	backend *backend.Backend
	sched   *scheduler.Scheduler
}
