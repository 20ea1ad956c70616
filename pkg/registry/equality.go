package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// SchemasEqual reports whether two schemas are structurally identical:
// same schema type, same reference set, and definitions that parse to the
// same document. Serialization differences (key order, whitespace) do not
// count as a difference; a changed field, type, or default does.
func SchemasEqual(a, b *Schema) bool {
	if a == nil || b == nil {
		return a == b
	}

	if normalizeType(a.Type) != normalizeType(b.Type) {
		return false
	}

	if !referencesEqual(a.References, b.References) {
		return false
	}

	return definitionsEqual(normalizeType(a.Type), a.Definition, b.Definition)
}

// normalizeType maps an absent schemaType to AVRO, which is what registries
// report for schemas registered without an explicit type.
func normalizeType(t string) string {
	if t == "" {
		return "AVRO"
	}
	return strings.ToUpper(t)
}

func referencesEqual(a, b []Reference) bool {
	if len(a) != len(b) {
		return false
	}

	as := make([]Reference, len(a))
	bs := make([]Reference, len(b))
	copy(as, a)
	copy(bs, b)

	less := func(refs []Reference) func(i, j int) bool {
		return func(i, j int) bool {
			if refs[i].Subject != refs[j].Subject {
				return refs[i].Subject < refs[j].Subject
			}
			if refs[i].Name != refs[j].Name {
				return refs[i].Name < refs[j].Name
			}
			return refs[i].Version < refs[j].Version
		}
	}
	sort.Slice(as, less(as))
	sort.Slice(bs, less(bs))

	return reflect.DeepEqual(as, bs)
}

func definitionsEqual(schemaType, a, b string) bool {
	// AVRO and JSON schema definitions are JSON documents; compare the
	// parsed values so formatting never masks or fakes a difference.
	if schemaType == "AVRO" || schemaType == "JSON" {
		var av, bv any
		errA := json.Unmarshal([]byte(a), &av)
		errB := json.Unmarshal([]byte(b), &bv)
		if errA == nil && errB == nil {
			return reflect.DeepEqual(av, bv)
		}
		// One side unparseable: fall through to text comparison.
	}

	// PROTOBUF (or malformed JSON) definitions are compared line by line
	// with surrounding whitespace stripped.
	return normalizeText(a) == normalizeText(b)
}

func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

// Summarize renders a short human-readable description of a schema for
// conflict reporting: version, id, and type.
func Summarize(s *Schema) string {
	if s == nil {
		return "absent"
	}
	return fmt.Sprintf("version %d (id %d, %s)", s.Version, s.ID, normalizeType(s.Type))
}
