// package cleanup implements the batch engine for bulk delete/reset
// operations across one or more registry contexts. Fan-out parallelism
// borrows slots from the shared task pool budget so a large batch cannot
// starve other running tasks.
package cleanup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"schemamigration/pkg/progress"
	"schemamigration/pkg/registry"
)

// Target is one scope descriptor: a context within a named registry.
type Target struct {
	Registry string `json:"registry"`
	Context  string `json:"context,omitempty"`
}

// Key renders the descriptor used as the per-target status map key.
func (t Target) Key() string {
	if t.Context == "" {
		return t.Registry
	}
	return t.Registry + "/" + t.Context
}

// TargetState is the outcome of one target.
type TargetState string

const (
	TargetPending   TargetState = "pending"
	TargetSucceeded TargetState = "succeeded"
	TargetFailed    TargetState = "failed"
)

// TargetStatus is the recorded outcome for one target. Entries transition
// pending → succeeded or pending → failed, never backward.
type TargetStatus struct {
	State           TargetState `json:"state"`
	DeletedSubjects int         `json:"deleted_subjects"`
	Reason          string      `json:"reason,omitempty"`
}

// Operation is a batch cleanup request plus its per-target outcomes.
type Operation struct {
	Targets         []Target                `json:"targets"`
	DryRun          bool                    `json:"dry_run"`
	PerTargetStatus map[string]TargetStatus `json:"per_target_status"`
}

// NewOperation builds an operation with every target pending.
func NewOperation(targets []Target, dryRun bool) *Operation {
	op := &Operation{
		Targets:         targets,
		DryRun:          dryRun,
		PerTargetStatus: make(map[string]TargetStatus, len(targets)),
	}
	for _, t := range targets {
		op.PerTargetStatus[t.Key()] = TargetStatus{State: TargetPending}
	}
	return op
}

// SlotPool is the borrowed-concurrency capability of the task runner: a
// non-blocking slot acquire paired with a release.
type SlotPool interface {
	TrySlot() bool
	ReleaseSlot()
}

// Engine executes batch cleanup operations.
type Engine struct {
	clients map[string]registry.Client
	pool    SlotPool
}

// NewEngine creates a cleanup engine over the named registry clients.
// pool may be nil, in which case targets are processed sequentially.
func NewEngine(clients map[string]registry.Client, pool SlotPool) *Engine {
	return &Engine{clients: clients, pool: pool}
}

// Execute processes every target, recording outcomes independently: one
// target's failure never prevents the others from proceeding. The calling
// goroutine is the baseline worker; extra workers are spawned only while
// slots can be borrowed from the shared pool. Cancellation is observed
// between targets, leaving unprocessed entries pending.
func (e *Engine) Execute(ctx context.Context, op *Operation, rep *progress.Reporter) (*Operation, error) {
	total := len(op.Targets)
	if total == 0 {
		rep.SetStage("nothing to clean up")
		rep.SetPercent(100)
		return op, nil
	}

	rep.SetStage(fmt.Sprintf("cleaning %d target(s)", total))

	jobs := make(chan Target)
	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)

	worker := func() {
		for target := range jobs {
			// A cancel may land while a target is in hand but untouched;
			// leave it pending rather than recording a phantom outcome.
			if ctx.Err() != nil {
				return
			}

			status := e.processTarget(ctx, target, op.DryRun)

			mu.Lock()
			op.PerTargetStatus[target.Key()] = status
			done++
			finished := done
			mu.Unlock()

			rep.SetPercent(finished * 100 / total)
		}
	}

	// Borrow up to total-1 extra slots; the parent task already holds its
	// own slot, which funds the baseline worker.
	if e.pool != nil {
		for extra := 0; extra < total-1 && e.pool.TrySlot(); extra++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer e.pool.ReleaseSlot()
				worker()
			}()
		}
	}

	go func() {
		defer close(jobs)
		for _, target := range op.Targets {
			select {
			case <-ctx.Done():
				return
			case jobs <- target:
			}
		}
	}()

	// Baseline worker runs in the calling goroutine; with no extra workers
	// this processes every target sequentially.
	worker()
	wg.Wait()

	if ctx.Err() != nil {
		mu.Lock()
		finished := done
		mu.Unlock()
		rep.SetStage(fmt.Sprintf("cancelled after %d/%d target(s)", finished, total))
		return op, fmt.Errorf("cleanup cancelled: %w", context.Canceled)
	}

	rep.SetStage("cleanup finished")
	return op, nil
}

// processTarget enumerates and deletes every subject in one target scope.
// Under dry-run the enumeration and validation still run but no destructive
// call is issued; DeletedSubjects then reports what would have been deleted.
func (e *Engine) processTarget(ctx context.Context, target Target, dryRun bool) TargetStatus {
	client, ok := e.clients[target.Registry]
	if !ok {
		return TargetStatus{State: TargetFailed, Reason: fmt.Sprintf("unknown registry %q", target.Registry)}
	}

	subjects, err := client.ListSubjects(ctx, target.Context)
	if err != nil {
		return TargetStatus{State: TargetFailed, Reason: fmt.Sprintf("list subjects: %v", err)}
	}

	if dryRun {
		return TargetStatus{State: TargetSucceeded, DeletedSubjects: len(subjects)}
	}

	deleted := 0
	var failures []string
	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return TargetStatus{
				State:           TargetFailed,
				DeletedSubjects: deleted,
				Reason:          "cancelled mid-target",
			}
		}

		if err := client.DeleteSubject(ctx, target.Context, subject); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", subject, err))
			continue
		}
		deleted++
	}

	if len(failures) > 0 {
		return TargetStatus{
			State:           TargetFailed,
			DeletedSubjects: deleted,
			Reason:          strings.Join(failures, "; "),
		}
	}
	return TargetStatus{State: TargetSucceeded, DeletedSubjects: deleted}
}
