// Package scheduler feeds the execution contexts of one model with dynamic
// batches. Requests wait in a single bounded queue; one worker per runner
// index drains it, merging requests until the runner's max batch size is
// reached or the batch window closes.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tensord/internal/backend"
)

var (
	ErrQueueFull = errors.New("request queue is full")
	ErrStopped   = errors.New("scheduler is stopped")
)

// DefaultQueueDepth is used when Config.QueueDepth is unset.
const DefaultQueueDepth = 64

// Runner executes a group of payloads on one runner index. *backend.Backend
// satisfies it.
type Runner interface {
	Runners() int
	MaxBatchSize(runnerIdx int) int
	Run(runnerIdx int, payloads []*backend.Payload, onComplete func(error))
}

// Config tunes a Scheduler. The zero value dispatches without waiting for
// more requests.
type Config struct {
	Model       string
	BatchWindow time.Duration
	QueueDepth  int
	Logger      zerolog.Logger
	Metrics     *Metrics
}

type item struct {
	ctx      context.Context
	payload  *backend.Payload
	enqueued time.Time
	done     chan error
}

// Scheduler is the dynamic batcher of one model.
type Scheduler struct {
	runner Runner
	cfg    Config
	log    zerolog.Logger

	queue chan *item
	stop  chan struct{}
	wg    sync.WaitGroup

	mu       sync.RWMutex
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// New returns a stopped scheduler for runner. Call Start to launch workers.
func New(runner Runner, cfg Config) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner must not be nil")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.BatchWindow < 0 {
		cfg.BatchWindow = 0
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "scheduler").Str("model", cfg.Model).Logger(),
		queue:  make(chan *item, cfg.QueueDepth),
		stop:   make(chan struct{}),
	}, nil
}

// Start launches one worker per runner index. It is a no-op when called
// again or after Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	n := s.runner.Runners()
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Debug().Str("event", "scheduler_started").Int("workers", n).Dur("window", s.cfg.BatchWindow).Msg("scheduler started")
}

// Stop rejects new submissions, waits for in-flight batches and fails every
// request still queued with ErrStopped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.stop)
		s.mu.Unlock()
		s.wg.Wait()
		s.drain()
		s.log.Debug().Str("event", "scheduler_stopped").Msg("scheduler stopped")
	})
}

// Depth is the number of requests waiting for a worker.
func (s *Scheduler) Depth() int { return len(s.queue) }

// Submit queues p and blocks until it has been executed, ctx is done or the
// scheduler stops. A nil error means every output of p was written to its
// sink.
func (s *Scheduler) Submit(ctx context.Context, p *backend.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it := &item{ctx: ctx, payload: p, enqueued: time.Now(), done: make(chan error, 1)}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrStopped
	}
	select {
	case s.queue <- it:
		s.mu.RUnlock()
	default:
		s.mu.RUnlock()
		s.cfg.Metrics.countRejected(s.cfg.Model)
		return ErrQueueFull
	}

	select {
	case err := <-it.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker(idx int) {
	defer s.wg.Done()
	limit := s.runner.MaxBatchSize(idx)
	if limit < 1 {
		limit = 1
	}
	var carry *item
	for {
		if s.isStopping() {
			if carry != nil {
				carry.done <- ErrStopped
			}
			return
		}
		first := carry
		carry = nil
		if first == nil {
			select {
			case <-s.stop:
				return
			case it := <-s.queue:
				first = it
			}
		}
		var batch []*item
		batch, carry = s.collect(limit, first)
		s.dispatch(idx, batch)
	}
}

func (s *Scheduler) isStopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// collect grows a batch from first while the total batch size stays within
// limit and every request has the same per-entry input shapes as first. The
// request that does not fit is returned separately and starts the next batch.
func (s *Scheduler) collect(limit int, first *item) ([]*item, *item) {
	batch := []*item{first}
	total := first.payload.BatchSize
	if total >= limit {
		return batch, nil
	}
	// admit reports whether it joined the batch.
	admit := func(it *item) bool {
		if it.payload.BatchSize > limit-total || !sameShapes(first.payload, it.payload) {
			return false
		}
		batch = append(batch, it)
		total += it.payload.BatchSize
		return true
	}

	var timeout <-chan time.Time
	if s.cfg.BatchWindow > 0 {
		timer := time.NewTimer(s.cfg.BatchWindow)
		defer timer.Stop()
		timeout = timer.C
	}
	for total < limit {
		if timeout == nil {
			select {
			case it := <-s.queue:
				if !admit(it) {
					return batch, it
				}
			default:
				return batch, nil
			}
			continue
		}
		select {
		case <-s.stop:
			return batch, nil
		case <-timeout:
			return batch, nil
		case it := <-s.queue:
			if !admit(it) {
				return batch, it
			}
		}
	}
	return batch, nil
}

// sameShapes reports whether a and b carry the same inputs and overrides
// with identical per-entry dims, so they can share one batched tensor.
func sameShapes(a, b *backend.Payload) bool {
	if len(a.Inputs) != len(b.Inputs) || len(a.Overrides) != len(b.Overrides) {
		return false
	}
	for _, in := range a.Inputs {
		other, ok := b.Input(in.Name)
		if !ok || other.DataType != in.DataType || !slices.Equal(other.Dims, in.Dims) {
			return false
		}
	}
	for name, ov := range a.Overrides {
		other, ok := b.Overrides[name]
		if !ok || other.DataType != ov.DataType || !slices.Equal(other.Dims, ov.Dims) {
			return false
		}
	}
	return true
}

func (s *Scheduler) dispatch(idx int, batch []*item) {
	live := batch[:0]
	for _, it := range batch {
		if err := it.ctx.Err(); err != nil {
			it.done <- err
			continue
		}
		live = append(live, it)
	}
	if len(live) == 0 {
		return
	}

	start := time.Now()
	payloads := make([]*backend.Payload, len(live))
	for i, it := range live {
		payloads[i] = it.payload
		s.cfg.Metrics.observeWait(s.cfg.Model, start.Sub(it.enqueued))
	}
	var runErr error
	s.runner.Run(idx, payloads, func(err error) { runErr = err })

	ev := s.log.Debug()
	if runErr != nil {
		ev = s.log.Warn().Err(runErr)
	}
	ev.Str("event", "batch_done").Int("runner", idx).Int("requests", len(live)).
		Dur("elapsed", time.Since(start)).Msg("batch executed")

	for _, it := range live {
		err := runErr
		if err == nil {
			err = it.payload.Status
		}
		it.done <- err
	}
}

func (s *Scheduler) drain() {
	for {
		select {
		case it := <-s.queue:
			it.done <- ErrStopped
		default:
			return
		}
	}
}
