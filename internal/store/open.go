package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"crosspub/internal/platform"
	logx "crosspub/pkg/logx"
)

// Store is the repository boundary the orchestrator works through. The
// post-snapshot and credential methods stand in for the surrounding
// platform's stores; the orchestrator only ever reads them.
type Store interface {
	// Jobs.
	CreateJob(ctx context.Context, j *Job) error
	UpdateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)

	// Scheduled publications.
	CreateScheduled(ctx context.Context, sp *ScheduledPublication) error
	GetScheduled(ctx context.Context, id string) (*ScheduledPublication, error)
	// DueScheduled returns PENDING rows with scheduled_for <= now.
	DueScheduled(ctx context.Context, now time.Time) ([]ScheduledPublication, error)
	// ClaimScheduled transitions PENDING -> PROCESSING atomically.
	// It reports false (no error) when another sweep won the row.
	ClaimScheduled(ctx context.Context, id string) (bool, error)
	// FinishScheduled records the terminal outcome of a claimed row.
	FinishScheduled(ctx context.Context, id string, status ScheduleStatus, jobID, errMsg string) error
	// CancelScheduled transitions PENDING -> CANCELLED atomically.
	// Claimed or terminal rows report false, not an error.
	CancelScheduled(ctx context.Context, id string) (bool, error)

	// Post collaborator.
	LoadPostSnapshot(ctx context.Context, postID string) (platform.PostData, error)
	MarkPostPublished(ctx context.Context, postID string, status JobStatus) error

	// Publications index (analytics).
	RecordPublication(ctx context.Context, p Publication) error
	PublicationsForPost(ctx context.Context, postID string) ([]Publication, error)

	// Credential collaborator. The returned credential is transient; it is
	// never written back.
	ResolveCredential(ctx context.Context, userID, platformName string) (platform.Credential, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}
