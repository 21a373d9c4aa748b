package store

import (
	"errors"
	"time"

	"crosspub/internal/platform"
)

// Config configures the repository backend.
//
// Driver values:
//   - "memory": in-process maps (tests, local development)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

var (
	ErrJobNotFound        = errors.New("store: job not found")
	ErrPostNotFound       = errors.New("store: post not found")
	ErrCredentialNotFound = errors.New("store: credential not found")
	ErrScheduledNotFound  = errors.New("store: scheduled publication not found")
)

// JobStatus is the dispatch state machine:
// pending -> processing -> {completed | failed | partial}.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobPartial    JobStatus = "partial"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobPartial
}

// Job is one dispatch run: a single post fanned out to a set of platforms.
//
// Invariants:
//   - Platforms contains no duplicates (enforced at submission).
//   - A terminal status implies Results holds an entry for every platform.
//   - Once terminal, the record is immutable.
type Job struct {
	ID          string                            `json:"id"`
	PostID      string                            `json:"post_id"`
	Platforms   []string                          `json:"platforms"`
	ScheduledAt *time.Time                        `json:"scheduled_at,omitempty"`
	Status      JobStatus                         `json:"status"`
	Results     map[string]platform.PublishResult `json:"results"`
	CreatedAt   time.Time                         `json:"created_at"`
	UpdatedAt   time.Time                         `json:"updated_at"`
}

// ScheduleStatus tracks a durable publish intent.
// PENDING rows are sweepable; PROCESSING rows are claimed; the rest are
// terminal and never re-processed.
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "PENDING"
	ScheduleProcessing ScheduleStatus = "PROCESSING"
	ScheduleCompleted  ScheduleStatus = "COMPLETED"
	ScheduleFailed     ScheduleStatus = "FAILED"
	ScheduleCancelled  ScheduleStatus = "CANCELLED"
)

func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleCompleted || s == ScheduleFailed || s == ScheduleCancelled
}

// ScheduledPublication is a per-platform intent to publish a post in the
// future. One row per (post, platform) so cancellation and partial
// rescheduling stay per-platform operations.
type ScheduledPublication struct {
	ID           string         `json:"id"`
	PostID       string         `json:"post_id"`
	Platform     string         `json:"platform"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Status       ScheduleStatus `json:"status"`
	JobID        string         `json:"job_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Publication is the durable record of a successful publish, used by the
// analytics aggregation.
type Publication struct {
	PostID         string    `json:"post_id"`
	Platform       string    `json:"platform"`
	PlatformPostID string    `json:"platform_post_id"`
	URL            string    `json:"url,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}
