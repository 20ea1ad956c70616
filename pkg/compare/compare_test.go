package compare

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"schemamigration/pkg/registry"
	"schemamigration/pkg/registry/registrytest"
)

func avro(def string) *registry.Schema {
	return &registry.Schema{Type: "AVRO", Definition: def}
}

// Source holds a, b, c. Target holds b (identical), c (conflicting), d.
func seededPair() (*registrytest.Client, *registrytest.Client) {
	source := registrytest.New("staging")
	target := registrytest.New("production")

	source.Seed("a", avro(`{"type":"string"}`))
	source.Seed("b", avro(`{"type":"long"}`))
	source.Seed("c", avro(`{"type":"int"}`))

	target.Seed("b", avro(`{"type": "long"}`))
	target.Seed("c", avro(`{"type":"boolean"}`))
	target.Seed("d", avro(`{"type":"bytes"}`))

	return source, target
}

func TestCompareScopedToNamedContext(t *testing.T) {
	source := registrytest.New("staging")
	target := registrytest.New("production")

	source.SeedInContext("prod", "orders", avro(`{"type":"string"}`))
	source.SeedInContext("prod", "users", avro(`{"type":"long"}`))
	target.SeedInContext("prod", "users", avro(`{"type":"long"}`))
	source.Seed("billing", avro(`{"type":"int"}`))

	result, err := NewEngine().Compare(context.Background(), source, target, "prod")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if result.Context != "prod" {
		t.Errorf("Context = %q, want prod", result.Context)
	}
	if got, want := result.MissingInTarget, []string{"orders"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MissingInTarget = %v, want %v", got, want)
	}
	// Classification reads through the same context as the listing, so a
	// shared subject lands in Identical instead of Unreadable.
	if got, want := result.Identical, []string{"users"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Identical = %v, want %v", got, want)
	}
	for _, s := range append(result.MissingInTarget, result.MissingInSource...) {
		if s == "billing" {
			t.Error("default-context subject leaked into a scoped comparison")
		}
	}
}

func TestCompareClassifiesEverySubjectOnce(t *testing.T) {
	source, target := seededPair()
	engine := NewEngine()

	result, err := engine.Compare(context.Background(), source, target, "")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if got, want := result.MissingInTarget, []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MissingInTarget = %v, want %v", got, want)
	}
	if got, want := result.MissingInSource, []string{"d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MissingInSource = %v, want %v", got, want)
	}
	if got, want := result.Identical, []string{"b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Identical = %v, want %v", got, want)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Subject != "c" {
		t.Errorf("Conflicts = %v, want one entry for c", result.Conflicts)
	}
	if len(result.Unreadable) != 0 {
		t.Errorf("Unreadable = %v, want empty", result.Unreadable)
	}

	// No subject appears in more than one bucket.
	seen := map[string]int{}
	for _, s := range result.MissingInTarget {
		seen[s]++
	}
	for _, s := range result.MissingInSource {
		seen[s]++
	}
	for _, s := range result.Identical {
		seen[s]++
	}
	for _, c := range result.Conflicts {
		seen[c.Subject]++
	}
	for subject, n := range seen {
		if n != 1 {
			t.Errorf("subject %q classified %d times", subject, n)
		}
	}
}

func TestCompareIsIdempotent(t *testing.T) {
	source, target := seededPair()
	engine := NewEngine()

	first, err := engine.Compare(context.Background(), source, target, "")
	if err != nil {
		t.Fatalf("first Compare() error = %v", err)
	}
	second, err := engine.Compare(context.Background(), source, target, "")
	if err != nil {
		t.Fatalf("second Compare() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated comparison differs:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestCompareReportsUnreadableSubjects(t *testing.T) {
	source, target := seededPair()
	source.FailGet("b", fmt.Errorf("registry timeout"))
	engine := NewEngine()

	result, err := engine.Compare(context.Background(), source, target, "")
	if result == nil {
		t.Fatal("Compare() returned nil result for a partial comparison")
	}

	var partial *PartialComparisonError
	if !errors.As(err, &partial) {
		t.Fatalf("Compare() error = %v, want *PartialComparisonError", err)
	}
	if len(partial.Subjects) != 1 || partial.Subjects[0].Subject != "b" || partial.Subjects[0].Side != "source" {
		t.Errorf("partial subjects = %+v, want b unreadable on source", partial.Subjects)
	}

	// b must not appear as missing, identical, or conflicting.
	for _, s := range result.Identical {
		if s == "b" {
			t.Error("unreadable subject b reported as identical")
		}
	}
	for _, s := range result.MissingInTarget {
		if s == "b" {
			t.Error("unreadable subject b reported as missing in target")
		}
	}

	// The rest of the diff is still delivered.
	if got, want := result.MissingInTarget, []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MissingInTarget = %v, want %v", got, want)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Subject != "c" {
		t.Errorf("Conflicts = %v, want one entry for c", result.Conflicts)
	}
}

func TestCompareAbortsWhenListingFails(t *testing.T) {
	source, target := seededPair()
	target.FailList(fmt.Errorf("connection refused"))
	engine := NewEngine()

	result, err := engine.Compare(context.Background(), source, target, "")
	if err == nil {
		t.Fatal("Compare() succeeded with a failed subject listing")
	}
	if result != nil {
		t.Errorf("Compare() result = %+v, want nil on listing failure", result)
	}
}

func TestCompareEmptyRegistries(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Compare(context.Background(), registrytest.New("a"), registrytest.New("b"), "")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(result.MissingInTarget)+len(result.MissingInSource)+len(result.Conflicts)+len(result.Identical) != 0 {
		t.Errorf("empty registries produced a non-empty diff: %+v", result)
	}
}

func TestCompareSubjectsFiltersTheDiff(t *testing.T) {
	source, target := seededPair()
	engine := NewEngine()

	result, err := engine.CompareSubjects(context.Background(), source, target, "", []string{"a", "c"})
	if err != nil {
		t.Fatalf("CompareSubjects() error = %v", err)
	}

	if got, want := result.MissingInTarget, []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MissingInTarget = %v, want %v", got, want)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Subject != "c" {
		t.Errorf("Conflicts = %v, want one entry for c", result.Conflicts)
	}
	if len(result.Identical) != 0 {
		t.Errorf("Identical = %v, want empty (b excluded from scope)", result.Identical)
	}
	if len(result.MissingInSource) != 0 {
		t.Errorf("MissingInSource = %v, want empty (d excluded from scope)", result.MissingInSource)
	}
}

func TestCompareConflictCarriesVersionSummaries(t *testing.T) {
	source := registrytest.New("staging")
	target := registrytest.New("production")
	source.Seed("orders", &registry.Schema{Type: "AVRO", Version: 2, ID: 11, Definition: `{"type":"int"}`})
	target.Seed("orders", &registry.Schema{Type: "AVRO", Version: 5, ID: 90, Definition: `{"type":"long"}`})

	result, err := NewEngine().Compare(context.Background(), source, target, "")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want exactly one", result.Conflicts)
	}
	c := result.Conflicts[0]
	if c.SourceSummary != "version 2 (id 11, AVRO)" {
		t.Errorf("SourceSummary = %q", c.SourceSummary)
	}
	if c.TargetSummary != "version 5 (id 90, AVRO)" {
		t.Errorf("TargetSummary = %q", c.TargetSummary)
	}
}
