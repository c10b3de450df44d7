package model

import "time"

// Load status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
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

// Terminal reports whether status is a final state.
func Terminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// Event is one per-resource progress notification recorded for a load.
type Event struct {
	ID        int64     `json:"id"`
	LoadID    string    `json:"load_id"`
	Seq       int       `json:"seq"`
	Kind      Kind      `json:"kind"`
	URL       string    `json:"url"`
	Ready     bool      `json:"ready"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Load is a persisted preload batch and its outcome.
type Load struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Request    Request    `json:"request"`
	TimeoutMS  int        `json:"timeout_ms"`
	Error      string     `json:"error,omitempty"`
	FailedKind Kind       `json:"failed_kind,omitempty"`
	FailedURL  string     `json:"failed_url,omitempty"`
	TimedOut   bool       `json:"timed_out,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
