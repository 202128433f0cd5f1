package schedule

import (
	"context"
	"time"
)

// JobFunc is the function a scheduled job executes. It reports what the run
// did; errors are for failures of the run itself, not per-item failures.
type JobFunc func(ctx context.Context) (*Result, error)

// Job represents a single periodic job registered with the manager
type Job struct {
	Key  string // Unique identifier for the job
	Spec string // Cron expression controlling when the job runs

	Run JobFunc
}

// Result summarizes one execution of a job
type Result struct {
	Key        string    `json:"key"`
	Processed  int       `json:"processed"`  // Items handled successfully
	Errors     int       `json:"errors"`     // Items that failed (caught, not propagated)
	Skipped    int       `json:"skipped"`    // Items deliberately not acted on
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
