package dashboard

import (
	"time"

	"github.com/efebarandurmaz/sqllineage/internal/report"
)

// RunStatus is the state of a tracked run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// Run is the live view of one lineage run. Planned is zero for runs first
// seen through a single file, as happens on a Temporal worker.
type Run struct {
	ID          string        `json:"id"`
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Mode        string        `json:"llm_mode,omitempty"`
	Status      RunStatus     `json:"status"`
	Planned     int           `json:"planned"`
	Totals      report.Totals `json:"totals"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Done reports whether the run has stopped.
func (r *Run) Done() bool { return r.Status != StatusRunning }

// FileEvent records one processed file.
type FileEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	Path       string    `json:"path"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Statements int       `json:"statements"`
	Saved      int       `json:"saved"`
	DurationMS int64     `json:"duration_ms"`
}

// Stats aggregates every tracked run.
type Stats struct {
	TotalRuns     int     `json:"total_runs"`
	ActiveRuns    int     `json:"active_runs"`
	CompletedRuns int     `json:"completed_runs"`
	FailedRuns    int     `json:"failed_runs"`
	Files         int     `json:"files"`
	Lineages      int     `json:"lineages"`
	AvgDuration   float64 `json:"avg_duration_seconds"`
	// SuccessRate is successful files over attempted (non-skipped) files.
	SuccessRate float64 `json:"success_rate"`
}

// Event is pushed to server-sent event subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Event types.
const (
	EventConnected   = "connected"
	EventRunStarted  = "run.started"
	EventFileDone    = "file.done"
	EventRunFinished = "run.finished"
)
