package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"schemamigration/pkg/compare"
	"schemamigration/pkg/progress"
	"schemamigration/pkg/registry"
	"schemamigration/pkg/registry/registrytest"
)

func avro(def string) *registry.Schema {
	return &registry.Schema{Type: "AVRO", Definition: def}
}

// Source holds a, b, c. Target holds b (identical) and c (conflicting), so a
// plan over everything is: create a, skip-identical b, skip-conflict c.
func seededPair() (*registrytest.Client, *registrytest.Client) {
	source := registrytest.New("staging")
	target := registrytest.New("production")

	source.Seed("a", avro(`{"type":"string"}`))
	source.Seed("b", avro(`{"type":"long"}`))
	source.Seed("c", avro(`{"type":"int"}`))

	target.Seed("b", avro(`{"type":"long"}`))
	target.Seed("c", avro(`{"type":"boolean"}`))

	return source, target
}

func newEngine() *Engine {
	return NewEngine(compare.NewEngine())
}

func actionsBySubject(p *Plan) map[string]Action {
	out := make(map[string]Action, len(p.Items))
	for _, item := range p.Items {
		out[item.Subject] = item.Action
	}
	return out
}

func TestPlanDerivesActionsFromDiff(t *testing.T) {
	source, target := seededPair()

	plan, err := newEngine().Plan(context.Background(), source, target, Scope{}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := map[string]Action{
		"a": ActionCreate,
		"b": ActionSkipIdentical,
		"c": ActionSkipConflict,
	}
	got := actionsBySubject(plan)
	if len(got) != len(want) {
		t.Fatalf("plan has %d items, want %d: %+v", len(got), len(want), plan.Items)
	}
	for subject, action := range want {
		if got[subject] != action {
			t.Errorf("action for %q = %q, want %q", subject, got[subject], action)
		}
	}
	for i, status := range plan.PerItemStatus {
		if status.State != ItemPending {
			t.Errorf("PerItemStatus[%d] = %q before execution, want pending", i, status.State)
		}
	}
}

func TestExecuteTransfersMissingAndSkipsConflicts(t *testing.T) {
	source, target := seededPair()
	engine := newEngine()

	plan, err := engine.Plan(context.Background(), source, target, Scope{}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	executed, err := engine.Execute(context.Background(), plan, progress.NewReporter())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if executed.Failed() != 0 {
		t.Errorf("Failed() = %d, want 0", executed.Failed())
	}
	if executed.Succeeded() != len(executed.Items) {
		t.Errorf("Succeeded() = %d, want %d", executed.Succeeded(), len(executed.Items))
	}

	if !target.Has("a") {
		t.Error("subject a was not created on the target")
	}
	// The conflicting subject must never be written.
	if got, want := target.RegisterCalls(), []string{"a"}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("target register calls = %v, want %v", got, want)
	}

	kept, err := target.GetSchema(context.Background(), "", "c")
	if err != nil {
		t.Fatalf("GetSchema(c) error = %v", err)
	}
	if kept.Definition != `{"type":"boolean"}` {
		t.Errorf("conflicting subject c was overwritten: %q", kept.Definition)
	}
}

func TestExecuteDryRunNeverTouchesTarget(t *testing.T) {
	source, target := seededPair()
	engine := newEngine()

	plan, err := engine.Plan(context.Background(), source, target, Scope{}, true)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	executed, err := engine.Execute(context.Background(), plan, progress.NewReporter())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if calls := target.Calls(); len(calls) != 0 {
		t.Errorf("dry run made %d mutating calls to the target: %v", len(calls), calls)
	}
	if target.Has("a") {
		t.Error("dry run created subject a on the target")
	}
	if executed.Failed() != 0 {
		t.Errorf("dry run Failed() = %d, want 0", executed.Failed())
	}
	// Per-item outcomes still report what would happen.
	got := actionsBySubject(executed)
	if got["a"] != ActionCreate {
		t.Errorf("dry run lost the create for a: %+v", executed.Items)
	}
}

func TestExecuteIsolatesSingleItemFailure(t *testing.T) {
	source := registrytest.New("staging")
	target := registrytest.New("production")
	for _, subject := range []string{"s1", "s2", "s3", "s4"} {
		source.Seed(subject, avro(`{"type":"string"}`))
	}
	target.FailRegister("s2", fmt.Errorf("disk full"))

	engine := newEngine()
	plan, err := engine.Plan(context.Background(), source, target, Scope{}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	executed, err := engine.Execute(context.Background(), plan, progress.NewReporter())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if executed.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", executed.Failed())
	}
	if executed.Succeeded() != 3 {
		t.Errorf("Succeeded() = %d, want 3", executed.Succeeded())
	}
	if got := executed.FailedSubjects(); len(got) != 1 || got[0] != "s2" {
		t.Errorf("FailedSubjects() = %v, want [s2]", got)
	}
	for _, subject := range []string{"s1", "s3", "s4"} {
		if !target.Has(subject) {
			t.Errorf("subject %s missing from target after isolated failure", subject)
		}
	}
}

func TestExecuteVerificationReadFailureFailsTheItem(t *testing.T) {
	source := registrytest.New("staging")
	target := registrytest.New("production")
	source.Seed("a", avro(`{"type":"string"}`))
	target.FailGet("a", fmt.Errorf("read replica lag"))

	engine := newEngine()
	plan, err := engine.Plan(context.Background(), source, target, Scope{}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !plan.VerifyWrites {
		t.Fatal("VerifyWrites should default on for a non-dry run")
	}

	executed, err := engine.Execute(context.Background(), plan, progress.NewReporter())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if executed.Failed() != 1 {
		t.Fatalf("Failed() = %d, want 1", executed.Failed())
	}
	status := executed.PerItemStatus[0]
	if status.State != ItemFailed || status.Reason == "" {
		t.Errorf("item status = %+v, want failed with a reason", status)
	}
}

func TestExecuteScopedToSubjects(t *testing.T) {
	source, target := seededPair()
	engine := newEngine()

	plan, err := engine.Plan(context.Background(), source, target, Scope{Subjects: []string{"a"}}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Items) != 1 || plan.Items[0].Subject != "a" {
		t.Fatalf("scoped plan items = %+v, want only a", plan.Items)
	}

	if _, err := engine.Execute(context.Background(), plan, progress.NewReporter()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !target.Has("a") {
		t.Error("scoped migration did not create a")
	}
}

func TestExecuteMigratesWithinNamedContext(t *testing.T) {
	source := registrytest.New("staging")
	target := registrytest.New("production")
	source.SeedInContext("prod", "orders", avro(`{"type":"string"}`))
	source.Seed("users", avro(`{"type":"long"}`))

	engine := newEngine()
	plan, err := engine.Plan(context.Background(), source, target, Scope{Context: "prod"}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Items) != 1 || plan.Items[0].Subject != "orders" {
		t.Fatalf("plan items = %+v, want only orders", plan.Items)
	}

	executed, err := engine.Execute(context.Background(), plan, progress.NewReporter())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if executed.Failed() != 0 {
		t.Fatalf("Failed() = %d, want 0: %+v", executed.Failed(), executed.PerItemStatus)
	}

	// The write must land in the same context the listing came from, not
	// the default one.
	if !target.HasInContext("prod", "orders") {
		t.Error("subject orders missing from the prod context on the target")
	}
	if target.Has("orders") {
		t.Error("subject orders leaked into the default context")
	}
	calls := target.Calls()
	if len(calls) != 1 || calls[0].Context != "prod" {
		t.Errorf("target calls = %+v, want one register in context prod", calls)
	}
}

func TestExecuteCancelledBeforeStartLeavesItemsPending(t *testing.T) {
	source, target := seededPair()
	engine := newEngine()

	plan, err := engine.Plan(context.Background(), source, target, Scope{}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executed, err := engine.Execute(ctx, plan, progress.NewReporter())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	for i, status := range executed.PerItemStatus {
		if status.State != ItemPending {
			t.Errorf("PerItemStatus[%d] = %q after pre-start cancel, want pending", i, status.State)
		}
	}
	if calls := target.Calls(); len(calls) != 0 {
		t.Errorf("cancelled run made %d mutating calls: %v", len(calls), calls)
	}
}

func TestPlanTurnsUnreadableSubjectsIntoFailedItems(t *testing.T) {
	source, target := seededPair()
	source.FailGet("b", fmt.Errorf("registry timeout"))
	engine := newEngine()

	plan, err := engine.Plan(context.Background(), source, target, Scope{}, false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := actionsBySubject(plan)["b"]; got != ActionSkipUnreadable {
		t.Fatalf("action for unreadable b = %q, want %q", got, ActionSkipUnreadable)
	}

	executed, err := engine.Execute(context.Background(), plan, progress.NewReporter())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := executed.FailedSubjects(); len(got) != 1 || got[0] != "b" {
		t.Errorf("FailedSubjects() = %v, want [b]", got)
	}
	// The rest of the plan still ran.
	if !target.Has("a") {
		t.Error("subject a was not created alongside the unreadable item")
	}
}
