package model

import "time"

// Job status constants. A job walks created→admitted→initialized→simulated→
// persisted→done; "failed" and "skipped" are terminal side exits.
const (
	StatusCreated     = "created"
	StatusAdmitted    = "admitted"
	StatusInitialized = "initialized"
	StatusSimulated   = "simulated"
	StatusPersisted   = "persisted"
	StatusDone        = "done"
	StatusFailed      = "failed"
	StatusSkipped     = "skipped"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusCreated: {
		StatusAdmitted: true,
		StatusSkipped:  true,
	},
	StatusAdmitted: {
		StatusInitialized: true,
		StatusFailed:      true,
	},
	StatusInitialized: {
		StatusSimulated: true,
		StatusFailed:    true,
	},
	StatusSimulated: {
		StatusPersisted: true,
		StatusFailed:    true,
	},
	StatusPersisted: {
		StatusDone: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Run represents one invocation of the generator.
type Run struct {
	ID         string     `json:"id"`
	ConfigPath string     `json:"config_path"`
	TotalJobs  int        `json:"total_jobs"`
	Workers    int        `json:"workers"`
	BudgetKB   int64      `json:"budget_kb"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobRecord is the persisted history entry for a single simulation job.
type JobRecord struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Scenario   string     `json:"scenario"`
	LeakConfig string     `json:"leak_config"`
	Status     string     `json:"status"`
	MemoryKB   int64      `json:"memory_kb"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
