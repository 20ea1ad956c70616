// package schedule manages recurring sync tasks: cron-triggered submissions
// of one-shot compare-and-transfer runs through the task facade.
package schedule

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"schemamigration/pkg/ops"
	"schemamigration/pkg/tasks"
)

// Schedule is one recurring sync definition.
type Schedule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CronExpr   string    `json:"cron_expr"`
	Enabled    bool      `json:"enabled"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Context    string    `json:"context,omitempty"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	LastTaskID string    `json:"last_task_id,omitempty"`
	RunCount   int       `json:"run_count"`
	FailCount  int       `json:"fail_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Submitter is the slice of the task facade the scheduler needs.
type Submitter interface {
	Submit(kind tasks.Kind, params json.RawMessage) (tasks.Snapshot, error)
}

// Scheduler manages recurring sync schedules.
type Scheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	submitter Submitter
	logger    *log.Logger
	running   bool
}

// NewScheduler creates a scheduler that submits sync tasks through submitter.
func NewScheduler(logger *log.Logger, submitter Submitter) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
		submitter: submitter,
		logger:    logger,
	}
}

// Start starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the cron loop and waits for in-flight firings to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}
	<-s.cron.Stop().Done()
	s.running = false
	return nil
}

// Create validates and registers a new schedule, returning it with metadata
// filled in.
func (s *Scheduler) Create(sched *Schedule) (*Schedule, error) {
	if sched.Source == "" || sched.Target == "" {
		return nil, fmt.Errorf("source and target registries are required")
	}

	cronSchedule, err := cron.ParseStandard(sched.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	if _, exists := s.schedules[sched.ID]; exists {
		return nil, fmt.Errorf("schedule %s already exists", sched.ID)
	}

	now := time.Now()
	sched.CreatedAt = now
	sched.UpdatedAt = now
	sched.NextRun = cronSchedule.Next(now)

	if sched.Enabled {
		if err := s.addEntryLocked(sched.ID, sched.CronExpr); err != nil {
			return nil, err
		}
	}

	s.schedules[sched.ID] = sched
	s.logger.Info("schedule created", "schedule_id", sched.ID, "cron", sched.CronExpr, "enabled", sched.Enabled)
	return sched, nil
}

// Update replaces a schedule's definition, preserving its counters.
func (s *Scheduler) Update(sched *Schedule) (*Schedule, error) {
	cronSchedule, err := cron.ParseStandard(sched.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.schedules[sched.ID]
	if !exists {
		return nil, fmt.Errorf("schedule %s not found", sched.ID)
	}

	sched.CreatedAt = old.CreatedAt
	sched.RunCount = old.RunCount
	sched.FailCount = old.FailCount
	sched.LastRun = old.LastRun
	sched.UpdatedAt = time.Now()
	sched.NextRun = cronSchedule.Next(time.Now())

	s.removeEntryLocked(sched.ID)
	if sched.Enabled {
		if err := s.addEntryLocked(sched.ID, sched.CronExpr); err != nil {
			return nil, err
		}
	}

	s.schedules[sched.ID] = sched
	return sched, nil
}

// Delete removes a schedule.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	s.removeEntryLocked(id)
	delete(s.schedules, id)
	return nil
}

// Get retrieves a copy of a schedule.
func (s *Scheduler) Get(id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, exists := s.schedules[id]
	if !exists {
		return nil, fmt.Errorf("schedule %s not found", id)
	}
	cp := *sched
	return &cp, nil
}

// List returns copies of all schedules.
func (s *Scheduler) List() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		cp := *sched
		out = append(out, &cp)
	}
	return out
}

// Enable activates a schedule's cron entry.
func (s *Scheduler) Enable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, exists := s.schedules[id]
	if !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	if sched.Enabled {
		return nil
	}

	if err := s.addEntryLocked(id, sched.CronExpr); err != nil {
		return err
	}
	sched.Enabled = true
	sched.UpdatedAt = time.Now()
	return nil
}

// Disable deactivates a schedule's cron entry; the definition is kept.
func (s *Scheduler) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, exists := s.schedules[id]
	if !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	if !sched.Enabled {
		return nil
	}

	s.removeEntryLocked(id)
	sched.Enabled = false
	sched.UpdatedAt = time.Now()
	return nil
}

// RunNow fires a schedule immediately, outside its cron cadence.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	_, exists := s.schedules[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("schedule %s not found", id)
	}

	go s.fire(id)
	return nil
}

// Stats summarizes the scheduler's state.
type Stats struct {
	TotalSchedules    int       `json:"total_schedules"`
	ActiveSchedules   int       `json:"active_schedules"`
	DisabledSchedules int       `json:"disabled_schedules"`
	NextRun           time.Time `json:"next_run"`
}

// GetStats returns scheduler statistics.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalSchedules: len(s.schedules)}
	var nextRun time.Time
	for _, sched := range s.schedules {
		if !sched.Enabled {
			stats.DisabledSchedules++
			continue
		}
		stats.ActiveSchedules++
		if nextRun.IsZero() || sched.NextRun.Before(nextRun) {
			nextRun = sched.NextRun
		}
	}
	stats.NextRun = nextRun
	return stats
}

func (s *Scheduler) addEntryLocked(id, expr string) error {
	entryID, err := s.cron.AddFunc(expr, func() { s.fire(id) })
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}
	s.entries[id] = entryID
	return nil
}

func (s *Scheduler) removeEntryLocked(id string) {
	if entryID, exists := s.entries[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// fire submits one sync task for the schedule and records the outcome.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	sched, exists := s.schedules[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	sched.LastRun = time.Now()
	sched.RunCount++
	params := ops.MigrateParams{
		Source:  sched.Source,
		Target:  sched.Target,
		Context: sched.Context,
	}
	s.mu.Unlock()

	raw, err := json.Marshal(params)
	if err == nil {
		var snap tasks.Snapshot
		snap, err = s.submitter.Submit(tasks.KindSync, raw)
		if err == nil {
			s.mu.Lock()
			if sched, ok := s.schedules[id]; ok {
				sched.LastTaskID = snap.ID
			}
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sched, exists = s.schedules[id]
	if !exists {
		return
	}
	if err != nil {
		sched.FailCount++
		s.logger.Warn("schedule firing failed", "schedule_id", id, "error", err)
	}
	if cronSchedule, parseErr := cron.ParseStandard(sched.CronExpr); parseErr == nil {
		sched.NextRun = cronSchedule.Next(time.Now())
	}
}
