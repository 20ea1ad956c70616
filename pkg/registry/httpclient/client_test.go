package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"schemamigration/pkg/registry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{Name: "test", BaseURL: srv.URL, RequestsPerSec: 1000})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestListSubjectsDefaultContext(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subjects" {
			t.Errorf("path = %q, want /subjects", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]string{"orders", ":.team-a:payments", "users"})
	}))

	subjects, err := client.ListSubjects(context.Background(), "")
	if err != nil {
		t.Fatalf("ListSubjects() error = %v", err)
	}
	if want := []string{"orders", "users"}; !reflect.DeepEqual(subjects, want) {
		t.Errorf("subjects = %v, want %v (named-context subjects filtered out)", subjects, want)
	}
}

func TestListSubjectsNamedContext(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"orders", ":.team-a:payments", ":.team-b:ledger"})
	}))

	subjects, err := client.ListSubjects(context.Background(), "team-a")
	if err != nil {
		t.Fatalf("ListSubjects() error = %v", err)
	}
	if want := []string{"payments"}; !reflect.DeepEqual(subjects, want) {
		t.Errorf("subjects = %v, want %v", subjects, want)
	}
}

func TestNamedContextListedSubjectsRoundTrip(t *testing.T) {
	const qualified = "/subjects/:.prod:orders"
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/subjects":
			json.NewEncoder(w).Encode([]string{":.prod:orders", "users"})
		case r.Method == http.MethodGet && r.URL.Path == qualified+"/versions/latest":
			json.NewEncoder(w).Encode(map[string]any{
				"subject": ":.prod:orders",
				"version": 1,
				"schema":  `{"type":"string"}`,
			})
		case r.Method == http.MethodPost && r.URL.Path == qualified+"/versions":
			json.NewEncoder(w).Encode(map[string]int{"id": 9})
		case r.Method == http.MethodDelete && r.URL.Path == qualified:
			json.NewEncoder(w).Encode([]int{1})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	subjects, err := client.ListSubjects(context.Background(), "prod")
	if err != nil {
		t.Fatalf("ListSubjects() error = %v", err)
	}
	if want := []string{"orders"}; !reflect.DeepEqual(subjects, want) {
		t.Fatalf("subjects = %v, want %v", subjects, want)
	}

	// The listed name must be usable as-is with every other call in the
	// same context.
	schema, err := client.GetSchema(context.Background(), "prod", subjects[0])
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if err := client.RegisterSchema(context.Background(), "prod", subjects[0], schema); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	if err := client.DeleteSubject(context.Background(), "prod", subjects[0]); err != nil {
		t.Fatalf("DeleteSubject() error = %v", err)
	}
}

func TestGetSchemaLatestVersion(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subjects/orders/versions/latest" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"subject": "orders",
			"version": 3,
			"id":      42,
			"schema":  `{"type":"string"}`,
		})
	}))

	schema, err := client.GetSchema(context.Background(), "", "orders")
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if schema.Version != 3 || schema.ID != 42 || schema.Definition != `{"type":"string"}` {
		t.Errorf("schema = %+v", schema)
	}
}

func TestGetSchemaNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":40401,"message":"Subject not found"}`, http.StatusNotFound)
	}))

	_, err := client.GetSchema(context.Background(), "", "ghost")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRegisterSchemaPostsDefinition(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/subjects/orders/versions" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/vnd.schemaregistry.v1+json" {
			t.Errorf("content type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]int{"id": 7})
	}))

	schema := &registry.Schema{
		Type:       "PROTOBUF",
		Definition: "message User {}",
		References: []registry.Reference{{Name: "dep", Subject: "dep-subj", Version: 1}},
	}
	if err := client.RegisterSchema(context.Background(), "", "orders", schema); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	if got["schema"] != "message User {}" || got["schemaType"] != "PROTOBUF" {
		t.Errorf("posted body = %v", got)
	}
	if _, ok := got["references"]; !ok {
		t.Error("references omitted from the payload")
	}
}

func TestRegisterSchemaConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":409,"message":"Incompatible schema"}`, http.StatusConflict)
	}))

	err := client.RegisterSchema(context.Background(), "", "orders", &registry.Schema{Definition: `{"type":"string"}`})
	if !errors.Is(err, registry.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestDeleteSubject(t *testing.T) {
	deleted := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/subjects/orders" {
			deleted = true
			json.NewEncoder(w).Encode([]int{1, 2, 3})
			return
		}
		http.NotFound(w, r)
	}))

	if err := client.DeleteSubject(context.Background(), "", "orders"); err != nil {
		t.Fatalf("DeleteSubject() error = %v", err)
	}
	if !deleted {
		t.Error("delete request never reached the server")
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := client.ListSubjects(context.Background(), "")
	if !errors.Is(err, registry.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() accepted an empty base URL")
	}
}
