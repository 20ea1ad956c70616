package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"schemamigration/pkg/metrics"
)

// Factory validates raw submission parameters and builds the runnable body
// for one task kind. Validation failures are returned synchronously from
// Submit; no task record is created.
type Factory func(params json.RawMessage) (Body, error)

// Registry maps task kinds to their body factories. Kinds are registered
// once at wiring time; dispatch never branches on kind strings elsewhere.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry creates an empty kind registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register binds a factory to a kind, replacing any previous binding.
func (r *Registry) Register(kind Kind, factory Factory) {
	r.factories[kind] = factory
}

func (r *Registry) lookup(kind Kind) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Service is the task facade: the only API surface exposed to the protocol
// layer. Submit validates synchronously and enqueues; Get/List read
// snapshots; Cancel requests cooperative cancellation.
type Service struct {
	logger   *log.Logger
	store    *Store
	runner   *Runner
	registry *Registry
}

// NewService wires the facade from its collaborators.
func NewService(logger *log.Logger, store *Store, runner *Runner, registry *Registry) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		runner:   runner,
		registry: registry,
	}
}

// Submit validates parameters for the given kind, creates a pending task,
// and enqueues it. Returns the new task's snapshot immediately.
func (s *Service) Submit(kind Kind, params json.RawMessage) (Snapshot, error) {
	factory, ok := s.registry.lookup(kind)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	body, err := factory(params)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	t := newTask(uuid.New().String(), kind, body)
	if err := s.store.Add(t); err != nil {
		return Snapshot{}, err
	}
	if err := s.runner.Enqueue(t); err != nil {
		return Snapshot{}, err
	}

	metrics.TasksSubmitted.WithLabelValues(string(kind)).Inc()
	s.logger.Info("task submitted", "task_id", t.ID(), "kind", kind)
	return t.Snapshot(), nil
}

// Get returns a read-only snapshot of a task.
func (s *Service) Get(id string) (Snapshot, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return t.Snapshot(), nil
}

// List returns snapshots of all tasks, optionally filtered by kind.
func (s *Service) List(kindFilter string) ([]Snapshot, error) {
	var kind Kind
	if kindFilter != "" {
		parsed, err := ParseKind(kindFilter)
		if err != nil {
			return nil, err
		}
		kind = parsed
	}
	return s.store.List(kind), nil
}

// Cancel requests cancellation of a task. A pending task becomes cancelled
// immediately; a running task finishes cooperatively at its next checkpoint.
func (s *Service) Cancel(id string) (Snapshot, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}

	before := t.State()
	snap := t.requestCancel()
	if before == StatePending && snap.State == StateCancelled {
		metrics.TasksFinished.WithLabelValues(string(snap.Kind), string(StateCancelled)).Inc()
	}

	s.logger.Info("task cancel requested", "task_id", id, "state", snap.State)
	return snap, nil
}

// PoolSize returns the runner's concurrency bound.
func (s *Service) PoolSize() int {
	return s.runner.Size()
}
