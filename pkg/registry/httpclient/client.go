// package httpclient implements registry.Client against the Confluent-style
// schema registry REST API. Each call is bounded by a per-request timeout and
// an outbound rate limiter so a large migration cannot exhaust a registry's
// API quota.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"schemamigration/pkg/registry"
)

// Config holds configuration for a registry REST client.
type Config struct {
	Name           string        // Logical registry name used in results
	BaseURL        string        // e.g. http://schema-registry:8081
	RequestTimeout time.Duration // Per-call timeout (default 30s)
	RequestsPerSec float64       // Outbound rate limit (default 20)
}

// Client talks to a single schema registry endpoint.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a registry REST client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("registry base URL is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 20
	}

	name := cfg.Name
	if name == "" {
		name = cfg.BaseURL
	}

	return &Client{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
	}, nil
}

// Name returns the logical registry name.
func (c *Client) Name() string {
	return c.name
}

// ListSubjects enumerates subject names, scoped to contextName when set.
// Context scoping uses the ":.context:" subject prefix convention, so the
// full listing is filtered client side.
func (c *Client) ListSubjects(ctx context.Context, contextName string) ([]string, error) {
	var subjects []string
	if err := c.getJSON(ctx, "/subjects", &subjects); err != nil {
		return nil, fmt.Errorf("list subjects from %s: %w", c.name, err)
	}

	if contextName == "" {
		// Default context: drop subjects that belong to a named context.
		out := subjects[:0]
		for _, s := range subjects {
			if !strings.HasPrefix(s, ":.") {
				out = append(out, s)
			}
		}
		return out, nil
	}

	prefix := registry.ContextPrefix(contextName)
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if strings.HasPrefix(s, prefix) {
			out = append(out, strings.TrimPrefix(s, prefix))
		}
	}
	return out, nil
}

// GetSchema fetches the latest version registered under subject within
// contextName. Subject is the bare name as returned by ListSubjects; the
// context prefix is re-applied here.
func (c *Client) GetSchema(ctx context.Context, contextName, subject string) (*registry.Schema, error) {
	var schema registry.Schema
	qualified := registry.QualifiedSubject(contextName, subject)
	path := fmt.Sprintf("/subjects/%s/versions/latest", url.PathEscape(qualified))
	if err := c.getJSON(ctx, path, &schema); err != nil {
		return nil, fmt.Errorf("get schema %q from %s: %w", subject, c.name, err)
	}
	return &schema, nil
}

// RegisterSchema registers schema under subject within contextName.
func (c *Client) RegisterSchema(ctx context.Context, contextName, subject string, schema *registry.Schema) error {
	body := map[string]any{
		"schema": schema.Definition,
	}
	if schema.Type != "" {
		body["schemaType"] = schema.Type
	}
	if len(schema.References) > 0 {
		body["references"] = schema.References
	}

	qualified := registry.QualifiedSubject(contextName, subject)
	path := fmt.Sprintf("/subjects/%s/versions", url.PathEscape(qualified))
	if err := c.postJSON(ctx, path, body); err != nil {
		return fmt.Errorf("register schema %q on %s: %w", subject, c.name, err)
	}
	return nil
}

// DeleteSubject removes a subject and all of its versions from contextName.
func (c *Client) DeleteSubject(ctx context.Context, contextName, subject string) error {
	qualified := registry.QualifiedSubject(contextName, subject)
	path := fmt.Sprintf("/subjects/%s", url.PathEscape(qualified))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete subject %q on %s: %w", subject, c.name, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", registry.ErrNotFound, strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", registry.ErrConflict, strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", registry.ErrUnauthorized, strings.TrimSpace(string(data)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("registry returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode registry response: %w", err)
		}
	}
	return nil
}
