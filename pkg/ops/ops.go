// package ops binds each task kind to its runnable body: parameter
// validation, engine invocation, and result aggregation. The kind → body
// mapping is declared here once and consumed by the task facade.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"schemamigration/pkg/cleanup"
	"schemamigration/pkg/compare"
	"schemamigration/pkg/migrate"
	"schemamigration/pkg/progress"
	"schemamigration/pkg/registry"
	"schemamigration/pkg/tasks"
)

// Deps are the collaborators the task bodies close over.
type Deps struct {
	Clients  map[string]registry.Client
	Comparer *compare.Engine
	Migrator *migrate.Engine
	Cleaner  *cleanup.Engine
}

// RegisterAll installs a factory for every task kind.
func RegisterAll(reg *tasks.Registry, deps Deps) {
	reg.Register(tasks.KindComparison, deps.comparisonFactory)
	reg.Register(tasks.KindSchemaMigration, deps.migrationFactory(true))
	reg.Register(tasks.KindContextMigration, deps.migrationFactory(false))
	reg.Register(tasks.KindBatchCleanup, deps.cleanupFactory)
	reg.Register(tasks.KindSync, deps.syncFactory)
}

// CompareParams are the submission parameters for a comparison task.
type CompareParams struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Context string `json:"context,omitempty"`
}

// MigrateParams are the submission parameters for migration and sync tasks.
// Subjects pins a schema migration to specific subjects; context migrations
// leave it empty and cover the whole context.
type MigrateParams struct {
	Source         string   `json:"source"`
	Target         string   `json:"target"`
	Context        string   `json:"context,omitempty"`
	Subjects       []string `json:"subjects,omitempty"`
	DryRun         bool     `json:"dry_run"`
	VerifyWrites   *bool    `json:"verify_writes,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// CleanupParams are the submission parameters for a batch cleanup task.
type CleanupParams struct {
	Targets        []cleanup.Target `json:"targets"`
	DryRun         bool             `json:"dry_run"`
	TimeoutSeconds int              `json:"timeout_seconds,omitempty"`
}

func (d Deps) resolvePair(source, target string) (registry.Client, registry.Client, error) {
	if source == "" || target == "" {
		return nil, nil, fmt.Errorf("source and target registries are required")
	}
	src, ok := d.Clients[source]
	if !ok {
		return nil, nil, fmt.Errorf("unknown registry %q (configured: %s)", source, strings.Join(d.clientNames(), ", "))
	}
	tgt, ok := d.Clients[target]
	if !ok {
		return nil, nil, fmt.Errorf("unknown registry %q (configured: %s)", target, strings.Join(d.clientNames(), ", "))
	}
	if source == target {
		return nil, nil, fmt.Errorf("source and target must differ")
	}
	return src, tgt, nil
}

func (d Deps) clientNames() []string {
	names := make([]string, 0, len(d.Clients))
	for name := range d.Clients {
		names = append(names, name)
	}
	return names
}

func (d Deps) comparisonFactory(raw json.RawMessage) (tasks.Body, error) {
	var params CompareParams
	if err := unmarshalStrict(raw, &params); err != nil {
		return nil, err
	}
	src, tgt, err := d.resolvePair(params.Source, params.Target)
	if err != nil {
		return nil, err
	}

	return tasks.BodyFunc(func(ctx context.Context, rep *progress.Reporter) (any, error) {
		rep.SetStage("enumerating subjects")
		result, err := d.Comparer.Compare(ctx, src, tgt, params.Context)
		if err != nil {
			// A partial comparison is still a delivered result; only a
			// failed enumeration or a cancellation aborts the task.
			if _, partial := err.(*compare.PartialComparisonError); !partial {
				return nil, err
			}
		}
		rep.SetStage("comparison finished")
		rep.SetPercent(100)
		return result, nil
	}), nil
}

// migrationFactory builds the factory for schema migrations (explicit
// subject list required) and context migrations (whole context).
func (d Deps) migrationFactory(requireSubjects bool) tasks.Factory {
	return func(raw json.RawMessage) (tasks.Body, error) {
		var params MigrateParams
		if err := unmarshalStrict(raw, &params); err != nil {
			return nil, err
		}
		src, tgt, err := d.resolvePair(params.Source, params.Target)
		if err != nil {
			return nil, err
		}
		if requireSubjects && len(params.Subjects) == 0 {
			return nil, fmt.Errorf("a schema migration requires an explicit subjects list")
		}
		if !requireSubjects && len(params.Subjects) > 0 {
			return nil, fmt.Errorf("a context migration covers every subject; submit a schema-migration task to pin subjects")
		}

		return tasks.BodyFunc(func(ctx context.Context, rep *progress.Reporter) (any, error) {
			return d.runMigration(ctx, rep, src, tgt, params)
		}), nil
	}
}

func (d Deps) runMigration(ctx context.Context, rep *progress.Reporter, src, tgt registry.Client, params MigrateParams) (any, error) {
	ctx, cancel := withTimeout(ctx, params.TimeoutSeconds)
	defer cancel()

	rep.SetStage("planning migration")
	scope := migrate.Scope{Context: params.Context, Subjects: params.Subjects}
	plan, err := d.Migrator.Plan(ctx, src, tgt, scope, params.DryRun)
	if err != nil {
		return nil, err
	}
	if params.VerifyWrites != nil {
		plan.VerifyWrites = *params.VerifyWrites && !params.DryRun
	}

	executed, err := d.Migrator.Execute(ctx, plan, rep)
	if err != nil {
		return executed, err
	}

	if failed := executed.Failed(); failed > 0 {
		return executed, &tasks.Failure{
			Code:    "partial",
			Message: fmt.Sprintf("%d of %d item(s) failed: %s", failed, len(executed.Items), strings.Join(executed.FailedSubjects(), ", ")),
		}
	}
	return executed, nil
}

func (d Deps) cleanupFactory(raw json.RawMessage) (tasks.Body, error) {
	var params CleanupParams
	if err := unmarshalStrict(raw, &params); err != nil {
		return nil, err
	}
	if len(params.Targets) == 0 {
		return nil, fmt.Errorf("at least one cleanup target is required")
	}
	for _, t := range params.Targets {
		if _, ok := d.Clients[t.Registry]; !ok {
			return nil, fmt.Errorf("unknown registry %q in cleanup targets", t.Registry)
		}
	}

	return tasks.BodyFunc(func(ctx context.Context, rep *progress.Reporter) (any, error) {
		ctx, cancel := withTimeout(ctx, params.TimeoutSeconds)
		defer cancel()

		op := cleanup.NewOperation(params.Targets, params.DryRun)
		executed, err := d.Cleaner.Execute(ctx, op, rep)
		if err != nil {
			return executed, err
		}

		var failed []string
		for key, status := range executed.PerTargetStatus {
			if status.State == cleanup.TargetFailed {
				failed = append(failed, key)
			}
		}
		if len(failed) > 0 {
			return executed, &tasks.Failure{
				Code:    "partial",
				Message: fmt.Sprintf("%d of %d target(s) failed: %s", len(failed), len(executed.Targets), strings.Join(failed, ", ")),
			}
		}
		return executed, nil
	}), nil
}

// syncFactory builds the one-shot sync body: plan against the live diff and
// transfer everything missing, skipping conflicts as always.
func (d Deps) syncFactory(raw json.RawMessage) (tasks.Body, error) {
	var params MigrateParams
	if err := unmarshalStrict(raw, &params); err != nil {
		return nil, err
	}
	src, tgt, err := d.resolvePair(params.Source, params.Target)
	if err != nil {
		return nil, err
	}

	return tasks.BodyFunc(func(ctx context.Context, rep *progress.Reporter) (any, error) {
		return d.runMigration(ctx, rep, src, tgt, params)
	}), nil
}

func withTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}

// unmarshalStrict rejects unknown fields so parameter typos fail at
// submission instead of silently defaulting.
func unmarshalStrict(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing parameters")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
