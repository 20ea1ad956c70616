// package tasks implements the asynchronous task engine: the task record
// store, the bounded worker pool that executes task bodies, and the facade
// the HTTP layer talks to.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"schemamigration/pkg/progress"
)

// Kind is the operation category of a task.
type Kind string

const (
	KindComparison       Kind = "comparison"
	KindSchemaMigration  Kind = "schema-migration"
	KindContextMigration Kind = "context-migration"
	KindBatchCleanup     Kind = "batch-cleanup"
	KindSync             Kind = "sync"
)

// ParseKind validates a kind string coming from a caller.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindComparison, KindSchemaMigration, KindContextMigration, KindBatchCleanup, KindSync:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// State is the lifecycle state of a task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// canTransition is the full legality table for task state transitions.
// pending → running → {completed, failed, cancelled}, plus pending →
// cancelled for tasks cancelled before acquiring a slot.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateCancelled
	case StateRunning:
		return to.Terminal()
	}
	return false
}

// Failure is the structured error attached to a failed task.
type Failure struct {
	Code    string `json:"code"` // "execution", "internal", or "partial"
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return f.Message
}

// Task is one asynchronously executed unit of work. Mutable fields are
// guarded by the task's own mutex; records for different tasks are fully
// independent.
type Task struct {
	mu sync.Mutex

	id        string
	kind      Kind
	state     State
	createdAt time.Time
	started   *time.Time
	finished  *time.Time
	result    any
	failure   *Failure

	cancelRequested bool
	cancelBody      context.CancelFunc

	reporter *progress.Reporter
	body     Body
}

func newTask(id string, kind Kind, body Body) *Task {
	return &Task{
		id:        id,
		kind:      kind,
		state:     StatePending,
		createdAt: time.Now(),
		reporter:  progress.NewReporter(),
		body:      body,
	}
}

// Snapshot is a read-only copy of a task's state, safe to hand to callers.
type Snapshot struct {
	ID              string     `json:"task_id"`
	Kind            Kind       `json:"kind"`
	State           State      `json:"state"`
	Stage           string     `json:"stage"`
	ProgressPercent int        `json:"progress_percent"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Result          any        `json:"result,omitempty"`
	Error           *Failure   `json:"error,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
}

// Snapshot returns a consistent copy of the task.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.reporter.Current()
	percent := cur.Percent
	if t.state == StateCompleted {
		percent = 100
	}

	snap := Snapshot{
		ID:              t.id,
		Kind:            t.kind,
		State:           t.state,
		Stage:           cur.Stage,
		ProgressPercent: percent,
		CreatedAt:       t.createdAt,
		Result:          t.result,
		Error:           t.failure,
		CancelRequested: t.cancelRequested,
	}
	if t.started != nil {
		at := *t.started
		snap.StartedAt = &at
	}
	if t.finished != nil {
		at := *t.finished
		snap.FinishedAt = &at
	}
	return snap
}

// ID returns the task identifier.
func (t *Task) ID() string {
	return t.id
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// transition moves the task along the state machine, maintaining the
// started/finished timestamps. An illegal edge is a defect, reported as an
// error rather than applied.
func (t *Task) transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to)
}

func (t *Task) transitionLocked(to State) error {
	if !canTransition(t.state, to) {
		return fmt.Errorf("illegal task transition %s → %s (task %s)", t.state, to, t.id)
	}

	now := time.Now()
	switch to {
	case StateRunning:
		t.started = &now
	case StateCompleted, StateFailed, StateCancelled:
		t.finished = &now
	}
	t.state = to
	return nil
}

// requestCancel marks the task for cancellation. A pending task transitions
// to cancelled immediately; a running task has its body context cancelled
// and finishes cooperatively.
func (t *Task) requestCancel() Snapshot {
	t.mu.Lock()

	t.cancelRequested = true
	switch t.state {
	case StatePending:
		// Worker skips cancelled tasks on dequeue.
		_ = t.transitionLocked(StateCancelled)
	case StateRunning:
		if t.cancelBody != nil {
			cancel := t.cancelBody
			t.mu.Unlock()
			cancel()
			return t.Snapshot()
		}
	}

	t.mu.Unlock()
	return t.Snapshot()
}

func (t *Task) setCancelFunc(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancelBody = cancel
	t.mu.Unlock()
}

func (t *Task) isCancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// complete finishes the task successfully and attaches its result.
func (t *Task) complete(result any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(StateCompleted); err != nil {
		return err
	}
	t.result = result
	t.reporter.SetPercent(100)
	return nil
}

// fail finishes the task with a structured failure. Partial per-item detail,
// when present, stays available through the result field.
func (t *Task) fail(failure *Failure, partialResult any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(StateFailed); err != nil {
		return err
	}
	t.failure = failure
	if partialResult != nil {
		t.result = partialResult
	}
	return nil
}

// cancelFinished finishes a cooperatively cancelled task, retaining whatever
// per-item detail was produced before the cancellation point.
func (t *Task) cancelFinished(partialResult any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(StateCancelled); err != nil {
		return err
	}
	if partialResult != nil {
		t.result = partialResult
	}
	return nil
}
