package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"schemamigration/pkg/metrics"
	"schemamigration/pkg/progress"
)

// DefaultPoolSize is the number of task bodies executed concurrently when no
// explicit size is configured.
const DefaultPoolSize = 10

const queueCapacity = 256

// Body is the runnable capability a task kind implements. Run receives a
// cancellable context and the task's progress reporter, and returns the
// operation-specific result payload. Bodies observe ctx between discrete
// units of work; on cooperative cancellation they return the partial result
// together with an error wrapping context.Canceled.
type Body interface {
	Run(ctx context.Context, rep *progress.Reporter) (any, error)
}

// BodyFunc adapts a plain function to the Body interface.
type BodyFunc func(ctx context.Context, rep *progress.Reporter) (any, error)

func (f BodyFunc) Run(ctx context.Context, rep *progress.Reporter) (any, error) {
	return f(ctx, rep)
}

// Runner executes task bodies on a bounded pool. Pending tasks wait in FIFO
// order for a free slot; the number of simultaneously running bodies never
// exceeds the pool size. The runner never retries a failed body.
type Runner struct {
	logger *log.Logger
	queue  chan *Task
	slots  chan struct{}
	size   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewRunner creates a runner with the given pool size (DefaultPoolSize when
// size <= 0) and starts its dispatch loop.
func NewRunner(logger *log.Logger, size int) *Runner {
	if size <= 0 {
		size = DefaultPoolSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		logger: logger,
		queue:  make(chan *Task, queueCapacity),
		slots:  make(chan struct{}, size),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}

	r.wg.Add(1)
	go r.dispatch()

	return r
}

// Size returns the configured pool size.
func (r *Runner) Size() int {
	return r.size
}

// Enqueue places a pending task at the back of the FIFO queue.
func (r *Runner) Enqueue(t *Task) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return errors.New("runner is shut down")
	}
	r.mu.Unlock()

	select {
	case r.queue <- t:
		return nil
	case <-r.ctx.Done():
		return errors.New("runner is shut down")
	}
}

// TrySlot attempts to borrow one execution slot from the pool budget without
// blocking. Engines that fan out sub-work (batch cleanup) use this so their
// parallelism shares the pool's budget instead of growing unbounded. Every
// successful TrySlot must be paired with ReleaseSlot.
func (r *Runner) TrySlot() bool {
	select {
	case r.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// ReleaseSlot returns a slot borrowed with TrySlot.
func (r *Runner) ReleaseSlot() {
	<-r.slots
}

// Shutdown cancels every running body and waits for the pool to drain.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// dispatch pulls pending tasks off the queue in FIFO order, waits for a free
// slot, and launches the body.
func (r *Runner) dispatch() {
	defer r.wg.Done()

	for {
		select {
		case t := <-r.queue:
			// Cancelled while pending: already terminal, nothing to run.
			if t.State() != StatePending {
				continue
			}

			select {
			case r.slots <- struct{}{}:
			case <-r.ctx.Done():
				return
			}

			r.wg.Add(1)
			go func(t *Task) {
				defer r.wg.Done()
				defer func() { <-r.slots }()
				r.run(t)
			}(t)

		case <-r.ctx.Done():
			return
		}
	}
}

// run executes one task body through its full lifecycle.
func (r *Runner) run(t *Task) {
	// A panicking body must not take the server down; the task is marked
	// failed with a generic internal reason and the defect is logged.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in task body", "task_id", t.ID(), "kind", t.kind, "panic", rec)
			r.finishFailed(t, &Failure{Code: "internal", Message: "internal error"}, nil)
		}
	}()

	if err := t.transition(StateRunning); err != nil {
		// Lost the race with a cancel between dequeue and here.
		if t.State().Terminal() {
			return
		}
		r.logger.Error("task transition defect", "task_id", t.ID(), "error", err)
		r.finishFailed(t, &Failure{Code: "internal", Message: "internal error"}, nil)
		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	t.setCancelFunc(cancel)

	// A cancel that arrived between the pending check and the cancel func
	// being installed would otherwise be lost.
	if t.isCancelRequested() {
		cancel()
	}

	r.logger.Info("task started", "task_id", t.ID(), "kind", t.kind)
	metrics.TasksRunning.Inc()
	start := time.Now()

	result, err := t.body.Run(ctx, t.reporter)

	metrics.TasksRunning.Dec()
	metrics.TaskDuration.WithLabelValues(string(t.kind)).Observe(time.Since(start).Seconds())

	switch {
	case err != nil && errors.Is(err, context.Canceled) && t.isCancelRequested():
		if terr := t.cancelFinished(result); terr != nil {
			r.logger.Error("task transition defect", "task_id", t.ID(), "error", terr)
		}
		metrics.TasksFinished.WithLabelValues(string(t.kind), string(StateCancelled)).Inc()
		r.logger.Info("task cancelled", "task_id", t.ID(), "kind", t.kind)

	case err != nil:
		failure := &Failure{Code: "execution", Message: err.Error()}
		var f *Failure
		if errors.As(err, &f) {
			failure = f
		}
		r.finishFailed(t, failure, result)
		r.logger.Warn("task failed", "task_id", t.ID(), "kind", t.kind, "error", err)

	default:
		if terr := t.complete(result); terr != nil {
			r.logger.Error("task transition defect", "task_id", t.ID(), "error", terr)
			r.finishFailed(t, &Failure{Code: "internal", Message: "internal error"}, nil)
			return
		}
		metrics.TasksFinished.WithLabelValues(string(t.kind), string(StateCompleted)).Inc()
		r.logger.Info("task completed", "task_id", t.ID(), "kind", t.kind, "duration", time.Since(start))
	}
}

func (r *Runner) finishFailed(t *Task, failure *Failure, partialResult any) {
	if t.State().Terminal() {
		return
	}
	if err := t.fail(failure, partialResult); err != nil {
		r.logger.Error("task transition defect", "task_id", t.ID(), "error", err)
		return
	}
	metrics.TasksFinished.WithLabelValues(string(t.kind), string(StateFailed)).Inc()
}
