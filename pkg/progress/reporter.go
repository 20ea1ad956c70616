package progress

import (
	"sync"
	"time"
)

// Reporter tracks the progress of one running task. The task body writes
// through SetStage/SetPercent while status queries read snapshots
// concurrently; a snapshot always reflects a single consistent update.
type Reporter struct {
	mu      sync.RWMutex
	stage   string
	percent int
	history []StageTransition
}

// StageTransition records one stage change with the percent at which it
// happened.
type StageTransition struct {
	Stage   string    `json:"stage"`
	Percent int       `json:"percent"`
	At      time.Time `json:"at"`
}

// Snapshot is a consistent view of the current stage and percent pair.
type Snapshot struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

// NewReporter creates a reporter starting at stage "queued", 0 percent.
func NewReporter() *Reporter {
	r := &Reporter{}
	r.SetStage("queued")
	return r
}

// SetStage records a new stage label. Stage changes are unrestricted.
func (r *Reporter) SetStage(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if label == r.stage {
		return
	}
	r.stage = label
	r.history = append(r.history, StageTransition{
		Stage:   label,
		Percent: r.percent,
		At:      time.Now(),
	})
}

// SetPercent updates completion percent. Values are clamped to [0, 100] and
// the percent never decreases; a stale lower value is ignored.
func (r *Reporter) SetPercent(value int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	if value > r.percent {
		r.percent = value
	}
}

// Current returns the stage/percent pair as one consistent snapshot.
func (r *Reporter) Current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{Stage: r.stage, Percent: r.percent}
}

// History returns a copy of all recorded stage transitions.
func (r *Reporter) History() []StageTransition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StageTransition, len(r.history))
	copy(out, r.history)
	return out
}
