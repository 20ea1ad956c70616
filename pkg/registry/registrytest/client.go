// package registrytest provides an in-memory registry.Client for tests:
// it records every mutating call and supports per-subject fault injection.
package registrytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"schemamigration/pkg/registry"
)

// Call records one mutating call made against the fake.
type Call struct {
	Method  string // "RegisterSchema" or "DeleteSubject"
	Context string
	Subject string
}

// Client is a fake registry.Client backed by a map of wire-level subject
// name → schema. Named contexts follow the same ":.context:" prefix
// convention as the REST adapter, so context scoping is observable in tests.
// The zero value is not usable; create one with New.
type Client struct {
	name string

	mu      sync.Mutex
	schemas map[string]*registry.Schema
	calls   []Call

	// Fault injection, all keyed by bare subject name.
	getErrs      map[string]error
	registerErrs map[string]error
	deleteErrs   map[string]error
	listErr      error

	// CallDelay, when set, is slept per call so tests can hold tasks in the
	// running state long enough to observe them.
	CallDelay time.Duration
}

// New creates a fake registry named name.
func New(name string) *Client {
	return &Client{
		name:         name,
		schemas:      make(map[string]*registry.Schema),
		getErrs:      make(map[string]error),
		registerErrs: make(map[string]error),
		deleteErrs:   make(map[string]error),
	}
}

// Seed registers a schema in the default context, bypassing call recording.
func (c *Client) Seed(subject string, schema *registry.Schema) {
	c.SeedInContext("", subject, schema)
}

// SeedInContext registers a schema under subject within contextName,
// bypassing call recording.
func (c *Client) SeedInContext(contextName, subject string, schema *registry.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *schema
	cp.Subject = subject
	if cp.Version == 0 {
		cp.Version = 1
	}
	c.schemas[registry.QualifiedSubject(contextName, subject)] = &cp
}

// FailGet makes GetSchema for subject return err.
func (c *Client) FailGet(subject string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getErrs[subject] = err
}

// FailRegister makes RegisterSchema for subject return err.
func (c *Client) FailRegister(subject string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerErrs[subject] = err
}

// FailDelete makes DeleteSubject for subject return err.
func (c *Client) FailDelete(subject string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteErrs[subject] = err
}

// FailList makes ListSubjects return err.
func (c *Client) FailList(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

// Calls returns a copy of the recorded mutating calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// RegisterCalls returns the subjects RegisterSchema was called with, in order.
func (c *Client) RegisterCalls() []string {
	var out []string
	for _, call := range c.Calls() {
		if call.Method == "RegisterSchema" {
			out = append(out, call.Subject)
		}
	}
	return out
}

// Has reports whether subject currently exists in the default context.
func (c *Client) Has(subject string) bool {
	return c.HasInContext("", subject)
}

// HasInContext reports whether subject currently exists within contextName.
func (c *Client) HasInContext(contextName, subject string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.schemas[registry.QualifiedSubject(contextName, subject)]
	return ok
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) ListSubjects(ctx context.Context, contextName string) ([]string, error) {
	c.sleep(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listErr != nil {
		return nil, c.listErr
	}

	subjects := make([]string, 0, len(c.schemas))
	if contextName == "" {
		for s := range c.schemas {
			if !strings.HasPrefix(s, ":.") {
				subjects = append(subjects, s)
			}
		}
	} else {
		prefix := registry.ContextPrefix(contextName)
		for s := range c.schemas {
			if strings.HasPrefix(s, prefix) {
				subjects = append(subjects, strings.TrimPrefix(s, prefix))
			}
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (c *Client) GetSchema(ctx context.Context, contextName, subject string) (*registry.Schema, error) {
	c.sleep(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.getErrs[subject]; err != nil {
		return nil, err
	}

	schema, ok := c.schemas[registry.QualifiedSubject(contextName, subject)]
	if !ok {
		return nil, fmt.Errorf("%w: subject %q", registry.ErrNotFound, subject)
	}
	cp := *schema
	return &cp, nil
}

func (c *Client) RegisterSchema(ctx context.Context, contextName, subject string, schema *registry.Schema) error {
	c.sleep(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Method: "RegisterSchema", Context: contextName, Subject: subject})

	if err := c.registerErrs[subject]; err != nil {
		return err
	}

	cp := *schema
	cp.Subject = subject
	key := registry.QualifiedSubject(contextName, subject)
	if existing, ok := c.schemas[key]; ok {
		cp.Version = existing.Version + 1
	} else if cp.Version == 0 {
		cp.Version = 1
	}
	c.schemas[key] = &cp
	return nil
}

func (c *Client) DeleteSubject(ctx context.Context, contextName, subject string) error {
	c.sleep(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Method: "DeleteSubject", Context: contextName, Subject: subject})

	if err := c.deleteErrs[subject]; err != nil {
		return err
	}

	key := registry.QualifiedSubject(contextName, subject)
	if _, ok := c.schemas[key]; !ok {
		return fmt.Errorf("%w: subject %q", registry.ErrNotFound, subject)
	}
	delete(c.schemas, key)
	return nil
}

func (c *Client) sleep(ctx context.Context) {
	if c.CallDelay <= 0 {
		return
	}
	select {
	case <-time.After(c.CallDelay):
	case <-ctx.Done():
	}
}
