package platform

import (
	"context"
	"time"
)

// PostData is the immutable snapshot of a post handed to adapters.
// The orchestrator never mutates it; adapters must treat it as read-only.
type PostData struct {
	ID        string     `json:"id"`
	AuthorID  string     `json:"author_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Excerpt   string     `json:"excerpt,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
}

// Credential is the transient auth material for one publish attempt.
// It is owned by the credential store; the orchestrator must never persist
// a copy beyond the lifetime of a single attempt.
type Credential struct {
	AccessToken  string
	RefreshToken string
	// Extra carries platform-specific fields declared by the capability
	// model (e.g. a Telegram channel id).
	Extra map[string]string
}

// ValidationResult is the outcome of a pure, offline post check.
// Errors block publishing; warnings are attached to the eventual result.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// PublishResult is the per-platform outcome of one publish attempt.
//
// Expected failures (bad credentials, validation, remote rejection) are
// expressed here as Success=false plus a Reason — never as an error crossing
// the dispatcher boundary. Once written into a job it is append-only; a
// retry produces a new attempt record, not an in-place update.
type PublishResult struct {
	Success        bool     `json:"success"`
	PlatformPostID string   `json:"platform_post_id,omitempty"`
	URL            string   `json:"url,omitempty"`
	Error          string   `json:"error,omitempty"`
	Reason         Reason   `json:"reason,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// AnalyticsData is a best-effort engagement snapshot for a published post.
// Platforms without analytics support return Supported=false rather than an
// error.
type AnalyticsData struct {
	Supported   bool    `json:"supported"`
	Views       int64   `json:"views"`
	Likes       int64   `json:"likes"`
	Comments    int64   `json:"comments"`
	Shares      int64   `json:"shares"`
	Impressions int64   `json:"impressions,omitempty"`
	Engagement  float64 `json:"engagement"`
	Error       string  `json:"error,omitempty"`
}

// Adapter is the uniform contract every publishing target implements.
//
// Validate and Format are pure: no I/O, no blocking, and Format must be
// deterministic for identical input (replays of a manual retry must produce
// the same payload). Authenticate and Publish are the only methods allowed
// network side effects; Publish returns an error only for unexpected
// failures (timeouts, malformed responses) — expected rejections come back
// as a failed PublishResult.
//
// Adapters hold no state across runs; credentials are passed per call.
type Adapter interface {
	Name() string
	Capability() Capability

	Authenticate(ctx context.Context, cred Credential) (bool, error)
	Validate(post PostData) ValidationResult
	Format(post PostData) ([]byte, error)
	Publish(ctx context.Context, payload []byte, cred Credential) (PublishResult, error)
	FetchAnalytics(ctx context.Context, cred Credential, platformPostID string) (AnalyticsData, error)
}
