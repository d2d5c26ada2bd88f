package models

import "time"

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job type constants
const (
	JobTypeProcessDocument = "process_document"
)

// DefaultMaxRetries bounds how often a failed job is re-queued.
const DefaultMaxRetries = 3

// Job is one queued unit of pipeline work tied to a single document.
// At most one job per document may be pending or processing at a time.
type Job struct {
	ID              int64      `json:"id"`
	DocumentID      int64      `json:"document_id"`
	JobType         string     `json:"job_type"`
	Status          string     `json:"status"`
	Priority        int        `json:"priority"` // higher first, FIFO within equal priority
	CurrentStep     string     `json:"current_step,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
}

// IsActive reports whether the job still occupies the per-document slot.
func (j *Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// QueueStats summarises the queue for the admin surface.
type QueueStats struct {
	Pending          int64   `json:"pending"`
	Processing       int64   `json:"processing"`
	Completed        int64   `json:"completed"`
	Failed           int64   `json:"failed"`
	OldestPendingAge float64 `json:"oldest_pending_age_seconds"`
}
