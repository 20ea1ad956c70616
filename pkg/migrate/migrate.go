// package migrate implements the multi-step schema migration engine:
// plan (via the comparison engine), per-item transfer with partial-failure
// continuation, and optional post-write verification.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"schemamigration/pkg/compare"
	"schemamigration/pkg/progress"
	"schemamigration/pkg/registry"
)

// Action is what the plan decided to do with one subject.
type Action string

const (
	ActionCreate         Action = "create"
	ActionSkipConflict   Action = "skip-conflict"
	ActionSkipIdentical  Action = "skip-identical"
	ActionSkipUnreadable Action = "skip-unreadable"
)

// ItemState is the execution status of one plan item.
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
)

// Item is one planned migration step.
type Item struct {
	Subject string `json:"subject"`
	Action  Action `json:"action"`
}

// ItemStatus is the execution outcome of one plan item. Reason is set only
// on failure.
type ItemStatus struct {
	State  ItemState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

// Scope restricts a migration. Context selects the registry context; an
// empty Subjects list means every subject in the context, a non-empty list
// pins the migration to exactly those subjects.
type Scope struct {
	Context  string   `json:"context,omitempty"`
	Subjects []string `json:"subjects,omitempty"`
}

// Plan is an ordered migration plan plus its per-item execution state.
// PerItemStatus always has the same length as Items; entries move
// pending → succeeded or pending → failed, never backward.
type Plan struct {
	Source        string       `json:"source"`
	Target        string       `json:"target"`
	Scope         Scope        `json:"scope"`
	DryRun        bool         `json:"dry_run"`
	VerifyWrites  bool         `json:"verify_writes"`
	Items         []Item       `json:"items"`
	PerItemStatus []ItemStatus `json:"per_item_status"`

	source registry.Client
	target registry.Client
}

// Succeeded and Failed count terminal item outcomes.
func (p *Plan) Succeeded() int { return p.count(ItemSucceeded) }
func (p *Plan) Failed() int    { return p.count(ItemFailed) }

func (p *Plan) count(state ItemState) int {
	n := 0
	for _, s := range p.PerItemStatus {
		if s.State == state {
			n++
		}
	}
	return n
}

// FailedSubjects returns the subjects of failed items, for error summaries.
func (p *Plan) FailedSubjects() []string {
	var out []string
	for i, s := range p.PerItemStatus {
		if s.State == ItemFailed {
			out = append(out, p.Items[i].Subject)
		}
	}
	return out
}

// Engine plans and executes migrations between two registries.
type Engine struct {
	comparer *compare.Engine
}

// NewEngine creates a migration engine on top of the comparison engine.
func NewEngine(comparer *compare.Engine) *Engine {
	return &Engine{comparer: comparer}
}

// Plan runs the comparison engine restricted to scope and derives the item
// list: every subject missing in the target becomes a create, every conflict
// a skip-conflict (a structurally different resource is never overwritten),
// every identical subject a skip-identical, and every unreadable subject a
// skip-unreadable accounted as failed at execution time.
func (e *Engine) Plan(ctx context.Context, source, target registry.Client, scope Scope, dryRun bool) (*Plan, error) {
	var (
		diff *compare.Result
		err  error
	)
	if len(scope.Subjects) > 0 {
		diff, err = e.comparer.CompareSubjects(ctx, source, target, scope.Context, scope.Subjects)
	} else {
		diff, err = e.comparer.Compare(ctx, source, target, scope.Context)
	}
	if err != nil {
		var partial *compare.PartialComparisonError
		if !errors.As(err, &partial) {
			return nil, fmt.Errorf("plan migration: %w", err)
		}
		// Partial comparison: unreadable subjects become explicit plan
		// items below rather than aborting the whole migration.
	}

	plan := &Plan{
		Source:       diff.Source,
		Target:       diff.Target,
		Scope:        scope,
		DryRun:       dryRun,
		VerifyWrites: !dryRun,
		source:       source,
		target:       target,
	}

	for _, subject := range diff.MissingInTarget {
		plan.Items = append(plan.Items, Item{Subject: subject, Action: ActionCreate})
	}
	for _, subject := range diff.Identical {
		plan.Items = append(plan.Items, Item{Subject: subject, Action: ActionSkipIdentical})
	}
	for _, c := range diff.Conflicts {
		plan.Items = append(plan.Items, Item{Subject: c.Subject, Action: ActionSkipConflict})
	}
	for _, u := range diff.Unreadable {
		plan.Items = append(plan.Items, Item{Subject: u.Subject, Action: ActionSkipUnreadable})
	}

	plan.PerItemStatus = make([]ItemStatus, len(plan.Items))
	for i := range plan.PerItemStatus {
		plan.PerItemStatus[i] = ItemStatus{State: ItemPending}
	}

	return plan, nil
}

// Execute iterates the plan items in order, mutating PerItemStatus in place
// and reporting progress through rep. A single item failure never aborts the
// run; the remaining items still execute. Cancellation is observed between
// items: Execute returns the partially-filled plan together with an error
// wrapping context.Canceled, leaving unprocessed items pending.
func (e *Engine) Execute(ctx context.Context, plan *Plan, rep *progress.Reporter) (*Plan, error) {
	total := len(plan.Items)
	if total == 0 {
		rep.SetStage("nothing to migrate")
		rep.SetPercent(100)
		return plan, nil
	}

	for i, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			rep.SetStage(fmt.Sprintf("cancelled after %d/%d items", i, total))
			return plan, fmt.Errorf("migration cancelled: %w", err)
		}

		rep.SetStage(fmt.Sprintf("transferring item %d/%d (%s)", i+1, total, item.Subject))

		switch item.Action {
		case ActionSkipIdentical, ActionSkipConflict:
			// Skips are intentional outcomes and count as succeeded no-ops.
			plan.PerItemStatus[i] = ItemStatus{State: ItemSucceeded}

		case ActionSkipUnreadable:
			plan.PerItemStatus[i] = ItemStatus{State: ItemFailed, Reason: "source or target definition could not be read during planning"}

		case ActionCreate:
			plan.PerItemStatus[i] = e.executeCreate(ctx, plan, item.Subject)

		default:
			plan.PerItemStatus[i] = ItemStatus{State: ItemFailed, Reason: fmt.Sprintf("unknown plan action %q", item.Action)}
		}

		rep.SetPercent((i + 1) * 100 / total)
	}

	rep.SetStage("migration finished")
	return plan, nil
}

// executeCreate transfers one subject. Under dry-run no call reaches the
// target client.
func (e *Engine) executeCreate(ctx context.Context, plan *Plan, subject string) ItemStatus {
	if plan.DryRun {
		return ItemStatus{State: ItemSucceeded}
	}

	contextName := plan.Scope.Context

	schema, err := plan.source.GetSchema(ctx, contextName, subject)
	if err != nil {
		return ItemStatus{State: ItemFailed, Reason: fmt.Sprintf("fetch from source: %v", err)}
	}

	if err := plan.target.RegisterSchema(ctx, contextName, subject, schema); err != nil {
		return ItemStatus{State: ItemFailed, Reason: fmt.Sprintf("register on target: %v", err)}
	}

	if plan.VerifyWrites {
		written, err := plan.target.GetSchema(ctx, contextName, subject)
		if err != nil {
			return ItemStatus{State: ItemFailed, Reason: fmt.Sprintf("post-write verification read: %v", err)}
		}
		if !registry.SchemasEqual(schema, written) {
			return ItemStatus{State: ItemFailed, Reason: "post-write verification mismatch"}
		}
	}

	return ItemStatus{State: ItemSucceeded}
}
