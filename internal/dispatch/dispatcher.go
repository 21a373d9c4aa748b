// Package dispatch executes publishing jobs: one post fanned out
// concurrently to a set of platform adapters, with per-branch isolation and
// uniform result aggregation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crosspub/internal/eventbus"
	"crosspub/internal/platform"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

type Config struct {
	// BranchTimeout caps one platform branch (credential lookup, auth and
	// publish included). A hung platform must never stall its siblings.
	BranchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BranchTimeout <= 0 {
		c.BranchTimeout = 30 * time.Second
	}
	return c
}

// Dispatcher runs the job state machine:
// pending -> processing -> {completed | failed | partial}.
//
// Expected per-platform failures never cross this boundary as errors; they
// are aggregated as failed PublishResults. The only errors Run returns are
// job-store failures, where no outcome can be durably recorded.
type Dispatcher struct {
	cfg Config
	log logx.Logger
	reg *platform.Registry
	st  store.Store
	bus eventbus.Bus
}

func New(cfg Config, log logx.Logger, reg *platform.Registry, st store.Store, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg.withDefaults(), log: log, reg: reg, st: st, bus: bus}
}

// NewJob builds a pending job for a post and platform set.
func NewJob(postID string, platforms []string, scheduledAt *time.Time) *store.Job {
	now := time.Now()
	return &store.Job{
		ID:          uuid.NewString(),
		PostID:      postID,
		Platforms:   append([]string(nil), platforms...),
		ScheduledAt: scheduledAt,
		Status:      store.JobPending,
		Results:     map[string]platform.PublishResult{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type jobEvent struct {
	JobID    string `json:"job_id"`
	PostID   string `json:"post_id"`
	Platform string `json:"platform,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Run drives the given pending job to a terminal status and persists it.
// The job must already exist in the store.
func (d *Dispatcher) Run(ctx context.Context, job *store.Job) error {
	start := time.Now()

	job.Status = store.JobProcessing
	job.UpdatedAt = start
	if err := d.st.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("dispatch: mark processing: %w", err)
	}
	d.publish(eventbus.TypeJobStarted, jobEvent{JobID: job.ID, PostID: job.PostID})

	post, err := d.st.LoadPostSnapshot(ctx, job.PostID)
	if err != nil {
		if !errors.Is(err, store.ErrPostNotFound) {
			// Store unreachable: fatal, nothing can be recorded reliably.
			return fmt.Errorf("dispatch: load post %s: %w", job.PostID, err)
		}
		// A missing post fails every branch without touching the network,
		// keeping the terminal invariant (a result per requested platform).
		for _, name := range job.Platforms {
			job.Results[name] = platform.PublishResult{
				Success: false,
				Error:   "post not found: " + job.PostID,
			}
		}
		return d.finalize(ctx, job, start)
	}

	type branch struct {
		name string
		res  platform.PublishResult
	}
	out := make(chan branch, len(job.Platforms))

	var wg sync.WaitGroup
	for _, name := range job.Platforms {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			out <- branch{name: name, res: d.runBranch(ctx, post, name)}
		}(name)
	}
	wg.Wait()
	close(out)

	for b := range out {
		job.Results[b.name] = b.res
		if b.res.Success {
			d.publish(eventbus.TypePlatformPublished, jobEvent{JobID: job.ID, PostID: job.PostID, Platform: b.name})
			// Bounded like a branch: a stalled write must not hold the job
			// open after every platform already finished.
			wctx, cancel := context.WithTimeout(ctx, d.cfg.BranchTimeout)
			err := d.st.RecordPublication(wctx, store.Publication{
				PostID:         job.PostID,
				Platform:       b.name,
				PlatformPostID: b.res.PlatformPostID,
				URL:            b.res.URL,
				PublishedAt:    time.Now(),
			})
			cancel()
			if err != nil {
				d.log.Warn("failed recording publication",
					logx.String("job", job.ID), logx.String("platform", b.name), logx.Err(err))
			}
		} else {
			d.publish(eventbus.TypePlatformFailed, jobEvent{JobID: job.ID, PostID: job.PostID, Platform: b.name, Error: b.res.Error})
		}
	}

	return d.finalize(ctx, job, start)
}

// runBranch executes one isolated platform branch under its own timeout.
// It never returns an error: every failure mode becomes a failed result.
func (d *Dispatcher) runBranch(ctx context.Context, post platform.PostData, name string) (res platform.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in publish branch",
				logx.String("platform", name), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			res = platform.Failed(platform.ReasonPublishFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	adapter, ok := d.reg.Resolve(name)
	if !ok {
		// No network contact for unknown platforms.
		return platform.Failed(platform.ReasonAdapterNotFound, "no adapter registered for "+name)
	}

	bctx, cancel := context.WithTimeout(ctx, d.cfg.BranchTimeout)
	defer cancel()

	if err := d.reg.Wait(bctx, name); err != nil {
		return platform.Failed(platform.ReasonPublishFailed, "rate limit wait: "+err.Error())
	}

	cred, err := d.st.ResolveCredential(bctx, post.AuthorID, name)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return platform.Failed(platform.ReasonAuthUnavailable, "no credential for "+name+"; reconnect this platform")
		}
		return platform.Failed(platform.ReasonAuthUnavailable, "credential lookup: "+err.Error())
	}

	authed, err := adapter.Authenticate(bctx, cred)
	if err != nil {
		return platform.Failed(platform.ReasonAuthRejected, "authentication check: "+err.Error())
	}
	if !authed {
		return platform.Failed(platform.ReasonAuthRejected, "credentials rejected by "+name+"; reconnect this platform")
	}

	vr := adapter.Validate(post)
	if len(vr.Errors) > 0 {
		// Blocking violations: never attempt to publish.
		return platform.Failed(platform.ReasonValidationFailed, strings.Join(vr.Errors, "; "), vr.Warnings...)
	}

	payload, err := adapter.Format(post)
	if err != nil {
		return platform.Failed(platform.ReasonPublishFailed, "format: "+err.Error(), vr.Warnings...)
	}

	res, err = adapter.Publish(bctx, payload, cred)
	if err != nil {
		// Unexpected failure (timeout, malformed response) converted to a
		// failed result so aggregation stays uniform.
		return platform.Failed(platform.ReasonPublishFailed, err.Error(), vr.Warnings...)
	}
	if !res.Success && res.Reason == "" {
		res.Reason = platform.ReasonPublishFailed
	}
	// Non-fatal validation notices ride along on the final result.
	res.Warnings = append(append([]string(nil), vr.Warnings...), res.Warnings...)
	return res
}

// finalize aggregates results, persists the terminal job and flips the
// source post when at least one platform succeeded.
func (d *Dispatcher) finalize(ctx context.Context, job *store.Job, start time.Time) error {
	success := 0
	for _, r := range job.Results {
		if r.Success {
			success++
		}
	}
	switch {
	case success == 0:
		job.Status = store.JobFailed
	case success == len(job.Platforms):
		job.Status = store.JobCompleted
	default:
		job.Status = store.JobPartial
	}
	job.UpdatedAt = time.Now()

	if err := d.st.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("dispatch: persist job %s: %w", job.ID, err)
	}

	if success > 0 {
		if err := d.st.MarkPostPublished(ctx, job.PostID, job.Status); err != nil {
			d.log.Warn("failed marking post published",
				logx.String("job", job.ID), logx.String("post", job.PostID), logx.Err(err))
		}
	}

	dur := time.Since(start)
	d.log.Info("job finished",
		logx.String("job", job.ID),
		logx.String("post", job.PostID),
		logx.String("status", string(job.Status)),
		logx.Int("platforms", len(job.Platforms)),
		logx.Int("succeeded", success),
		logx.Duration("dur", dur))
	d.publish(eventbus.TypeJobFinished, jobEvent{JobID: job.ID, PostID: job.PostID, Status: string(job.Status)})
	return nil
}

func (d *Dispatcher) publish(typ string, data jobEvent) {
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
	}
}
