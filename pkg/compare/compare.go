// package compare implements the cross-registry comparison engine. It is a
// pure algorithm over two registry clients and is the shared primitive the
// migration engine plans from.
package compare

import (
	"context"
	"fmt"
	"sort"

	"schemamigration/pkg/registry"
)

// Conflict describes a subject present in both registries with structurally
// different definitions.
type Conflict struct {
	Subject       string `json:"subject"`
	SourceSummary string `json:"source_version_summary"`
	TargetSummary string `json:"target_version_summary"`
}

// Unreadable describes a subject whose definition could not be fetched from
// one side. These are reported separately, never silently treated as
// missing.
type Unreadable struct {
	Subject string `json:"subject"`
	Side    string `json:"side"` // "source" or "target"
	Reason  string `json:"reason"`
}

// Result is the structured diff of two registries. MissingInTarget,
// MissingInSource, Conflicts, and Unreadable are pairwise disjoint by
// subject; all slices are sorted by subject so repeated comparisons of
// unchanged registries yield identical results.
type Result struct {
	Source          string       `json:"source"`
	Target          string       `json:"target"`
	Context         string       `json:"context,omitempty"`
	MissingInTarget []string     `json:"missing_in_target"`
	MissingInSource []string     `json:"missing_in_source"`
	Conflicts       []Conflict   `json:"conflicts"`
	Unreadable      []Unreadable `json:"unreadable,omitempty"`
	Identical       []string     `json:"identical"`
}

// PartialComparisonError reports intersection subjects that could not be
// fetched from either side. The comparison result is still valid for every
// other subject; callers decide whether partial coverage is acceptable.
type PartialComparisonError struct {
	Subjects []Unreadable
}

func (e *PartialComparisonError) Error() string {
	return fmt.Sprintf("comparison incomplete: %d subject(s) could not be read", len(e.Subjects))
}

// Engine computes registry diffs.
type Engine struct{}

// NewEngine creates a comparison engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Compare enumerates both registries scoped to contextName (empty means the
// default context), computes the two-way set difference, and classifies the
// intersection by structural schema equality. A subject that cannot be
// fetched from either side lands in Unreadable and the call returns the
// result together with a *PartialComparisonError; only a failed subject
// listing aborts the comparison outright.
func (e *Engine) Compare(ctx context.Context, source, target registry.Client, contextName string) (*Result, error) {
	sourceSubjects, err := source.ListSubjects(ctx, contextName)
	if err != nil {
		return nil, fmt.Errorf("list subjects from source %s: %w", source.Name(), err)
	}
	targetSubjects, err := target.ListSubjects(ctx, contextName)
	if err != nil {
		return nil, fmt.Errorf("list subjects from target %s: %w", target.Name(), err)
	}

	inSource := toSet(sourceSubjects)
	inTarget := toSet(targetSubjects)

	result := &Result{
		Source:          source.Name(),
		Target:          target.Name(),
		Context:         contextName,
		MissingInTarget: []string{},
		MissingInSource: []string{},
		Conflicts:       []Conflict{},
		Identical:       []string{},
	}

	var intersection []string
	for subject := range inSource {
		if _, ok := inTarget[subject]; ok {
			intersection = append(intersection, subject)
		} else {
			result.MissingInTarget = append(result.MissingInTarget, subject)
		}
	}
	for subject := range inTarget {
		if _, ok := inSource[subject]; !ok {
			result.MissingInSource = append(result.MissingInSource, subject)
		}
	}
	sort.Strings(intersection)

	for _, subject := range intersection {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		srcSchema, srcErr := source.GetSchema(ctx, contextName, subject)
		if srcErr != nil {
			result.Unreadable = append(result.Unreadable, Unreadable{
				Subject: subject,
				Side:    "source",
				Reason:  srcErr.Error(),
			})
			continue
		}

		tgtSchema, tgtErr := target.GetSchema(ctx, contextName, subject)
		if tgtErr != nil {
			result.Unreadable = append(result.Unreadable, Unreadable{
				Subject: subject,
				Side:    "target",
				Reason:  tgtErr.Error(),
			})
			continue
		}

		if registry.SchemasEqual(srcSchema, tgtSchema) {
			result.Identical = append(result.Identical, subject)
		} else {
			result.Conflicts = append(result.Conflicts, Conflict{
				Subject:       subject,
				SourceSummary: registry.Summarize(srcSchema),
				TargetSummary: registry.Summarize(tgtSchema),
			})
		}
	}

	sort.Strings(result.MissingInTarget)
	sort.Strings(result.MissingInSource)
	sort.Strings(result.Identical)
	sort.Slice(result.Conflicts, func(i, j int) bool {
		return result.Conflicts[i].Subject < result.Conflicts[j].Subject
	})

	if len(result.Unreadable) > 0 {
		return result, &PartialComparisonError{Subjects: result.Unreadable}
	}
	return result, nil
}

// CompareSubjects is Compare restricted to an explicit subject list instead
// of a full enumeration; the migration engine uses it for scoped plans.
func (e *Engine) CompareSubjects(ctx context.Context, source, target registry.Client, contextName string, subjects []string) (*Result, error) {
	result, err := e.Compare(ctx, source, target, contextName)
	if err != nil {
		if _, partial := err.(*PartialComparisonError); !partial {
			return nil, err
		}
	}

	keep := toSet(subjects)
	filtered := &Result{
		Source:          result.Source,
		Target:          result.Target,
		Context:         result.Context,
		MissingInTarget: filterSubjects(result.MissingInTarget, keep),
		MissingInSource: filterSubjects(result.MissingInSource, keep),
		Identical:       filterSubjects(result.Identical, keep),
		Conflicts:       []Conflict{},
	}
	for _, c := range result.Conflicts {
		if _, ok := keep[c.Subject]; ok {
			filtered.Conflicts = append(filtered.Conflicts, c)
		}
	}
	for _, u := range result.Unreadable {
		if _, ok := keep[u.Subject]; ok {
			filtered.Unreadable = append(filtered.Unreadable, u)
		}
	}

	if len(filtered.Unreadable) > 0 {
		return filtered, &PartialComparisonError{Subjects: filtered.Unreadable}
	}
	return filtered, nil
}

func toSet(subjects []string) map[string]struct{} {
	set := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		set[s] = struct{}{}
	}
	return set
}

func filterSubjects(subjects []string, keep map[string]struct{}) []string {
	out := []string{}
	for _, s := range subjects {
		if _, ok := keep[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
