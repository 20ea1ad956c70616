package tasks

import (
	"fmt"
	"sync"
)

// Package errors returned by the facade.
var (
	ErrTaskNotFound  = fmt.Errorf("task not found")
	ErrUnknownKind   = fmt.Errorf("unknown task kind")
	ErrInvalidParams = fmt.Errorf("invalid task parameters")
)

// Store is the in-memory task record table, the single source of truth for
// status queries. It is constructed explicitly and injected; records are
// retained for the lifetime of the process.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // insertion order for stable listings
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Add registers a new task record. The id must be unique.
func (s *Store) Add(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.id]; exists {
		return fmt.Errorf("duplicate task id %q", t.id)
	}
	s.tasks[t.id] = t
	s.order = append(s.order, t.id)
	return nil
}

// Get looks up a task by id.
func (s *Store) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List returns snapshots of all tasks in submission order, optionally
// filtered by kind (empty kind means all).
func (s *Store) List(kind Kind) []Snapshot {
	s.mu.RLock()
	ordered := make([]*Task, 0, len(s.order))
	for _, id := range s.order {
		ordered = append(ordered, s.tasks[id])
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(ordered))
	for _, t := range ordered {
		if kind != "" && t.kind != kind {
			continue
		}
		out = append(out, t.Snapshot())
	}
	return out
}

// Len returns the number of stored task records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
