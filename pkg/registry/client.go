// package registry defines the capability interface the engines use to talk
// to a schema registry, plus the error taxonomy adapters must map to.
package registry

import (
	"context"
	"fmt"
	"strings"
)

// Sentinel errors adapters wrap so engines can classify failures with errors.Is.
var (
	ErrNotFound     = fmt.Errorf("resource not found")
	ErrConflict     = fmt.Errorf("incompatible resource already registered")
	ErrUnauthorized = fmt.Errorf("write access denied")
)

// Reference points at another schema a definition depends on.
type Reference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// Schema is the latest registered definition under a subject.
type Schema struct {
	Subject    string      `json:"subject"`
	Version    int         `json:"version"`
	ID         int         `json:"id"`
	Type       string      `json:"schemaType"` // AVRO, JSON, or PROTOBUF
	Definition string      `json:"schema"`
	References []Reference `json:"references,omitempty"`
}

// Client is the read/write capability against a single named registry
// endpoint. Implementations must be safe for concurrent use; every call is
// bounded by the supplied context.
type Client interface {
	// Name identifies the registry endpoint in results and logs.
	Name() string

	// ListSubjects enumerates subject names. An empty contextName means the
	// default context; a non-empty name scopes the listing to that context.
	// Returned names are always bare: the caller passes the same contextName
	// and a listed name back into GetSchema, RegisterSchema, or
	// DeleteSubject.
	ListSubjects(ctx context.Context, contextName string) ([]string, error)

	// GetSchema fetches the latest schema registered under subject within
	// contextName. Returns an error wrapping ErrNotFound if the subject is
	// absent.
	GetSchema(ctx context.Context, contextName, subject string) (*Schema, error)

	// RegisterSchema registers schema under subject within contextName.
	// Returns an error wrapping ErrConflict if an incompatible definition
	// already exists, ErrUnauthorized if the registry denies writes.
	RegisterSchema(ctx context.Context, contextName, subject string, schema *Schema) error

	// DeleteSubject removes the subject and all of its versions from
	// contextName.
	DeleteSubject(ctx context.Context, contextName, subject string) error
}

// ContextPrefix builds the subject-name prefix for a named registry context.
// The default context has no prefix.
func ContextPrefix(contextName string) string {
	if contextName == "" {
		return ""
	}
	if !strings.HasPrefix(contextName, ".") {
		contextName = "." + contextName
	}
	return ":" + contextName + ":"
}

// QualifiedSubject renders the wire-level subject name for subject within
// contextName, using the ":.context:" prefix convention.
func QualifiedSubject(contextName, subject string) string {
	return ContextPrefix(contextName) + subject
}
