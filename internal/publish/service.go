// Package publish is the front door for publishing requests: it validates
// the platform set, routes between immediate dispatch and deferred
// scheduling, and answers status and analytics queries.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crosspub/internal/dispatch"
	"crosspub/internal/platform"
	"crosspub/internal/scheduler"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

var (
	ErrNoPlatforms       = errors.New("publish: no target platforms")
	ErrDuplicatePlatform = errors.New("publish: duplicate target platform")
)

type Service struct {
	log   logx.Logger
	st    store.Store
	reg   *platform.Registry
	disp  *dispatch.Dispatcher
	sched *scheduler.Service
}

func New(st store.Store, reg *platform.Registry, disp *dispatch.Dispatcher, sched *scheduler.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, st: st, reg: reg, disp: disp, sched: sched}
}

// Request is one publishing submission.
type Request struct {
	PostID    string     `json:"post_id"`
	Platforms []string   `json:"platforms"`
	// ScheduledAt in the future defers the publication; nil or omitted
	// publishes immediately. A past timestamp is rejected.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// Submission is the outcome of Submit: either a terminal job (immediate)
// or the set of pending scheduled rows (deferred).
type Submission struct {
	Mode      string                       `json:"mode"` // "immediate" or "scheduled"
	Job       *store.Job                   `json:"job,omitempty"`
	Scheduled []store.ScheduledPublication `json:"scheduled,omitempty"`
}

// Submit validates the request and either runs it now or schedules it.
// Immediate submissions block until the job is terminal; per-platform
// failures are inside the job, not in the returned error.
func (s *Service) Submit(ctx context.Context, req Request) (*Submission, error) {
	if strings.TrimSpace(req.PostID) == "" {
		return nil, fmt.Errorf("publish: post_id is required")
	}
	platforms, err := normalizePlatforms(req.Platforms)
	if err != nil {
		return nil, err
	}

	if req.ScheduledAt != nil {
		rows, err := s.sched.Schedule(ctx, req.PostID, platforms, *req.ScheduledAt)
		if err != nil {
			return nil, err
		}
		return &Submission{Mode: "scheduled", Scheduled: rows}, nil
	}

	job := dispatch.NewJob(req.PostID, platforms, nil)
	if err := s.st.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("publish: create job: %w", err)
	}
	if err := s.disp.Run(ctx, job); err != nil {
		return nil, err
	}
	return &Submission{Mode: "immediate", Job: job}, nil
}

// Resubmit builds a new job covering only the platforms that failed in a
// previous terminal job.
func (s *Service) Resubmit(ctx context.Context, jobID string) (*store.Job, error) {
	prev, err := s.st.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !prev.Status.Terminal() {
		return nil, fmt.Errorf("publish: job %s still running", jobID)
	}
	var failed []string
	for _, name := range prev.Platforms {
		if res, ok := prev.Results[name]; !ok || !res.Success {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return nil, fmt.Errorf("publish: job %s has no failed platforms", jobID)
	}

	job := dispatch.NewJob(prev.PostID, failed, nil)
	if err := s.st.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("publish: create job: %w", err)
	}
	if err := s.disp.Run(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// JobStatus returns the job with its per-platform results.
func (s *Service) JobStatus(ctx context.Context, jobID string) (*store.Job, error) {
	return s.st.GetJob(ctx, jobID)
}

// CancelScheduled cancels a pending scheduled publication. False means it
// was already claimed, finished or cancelled.
func (s *Service) CancelScheduled(ctx context.Context, id string) (bool, error) {
	return s.sched.Cancel(ctx, id)
}

// ScheduledStatus returns one scheduled publication row.
func (s *Service) ScheduledStatus(ctx context.Context, id string) (*store.ScheduledPublication, error) {
	return s.st.GetScheduled(ctx, id)
}

// PlatformInfo is the public capability listing for one adapter.
type PlatformInfo struct {
	Name       string              `json:"name"`
	Capability platform.Capability `json:"capability"`
}

// Platforms lists registered adapters with their capabilities.
func (s *Service) Platforms() []PlatformInfo {
	caps := s.reg.Capabilities()
	out := make([]PlatformInfo, 0, len(caps))
	for name, c := range caps {
		out = append(out, PlatformInfo{Name: name, Capability: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PostAnalytics fetches engagement numbers for every recorded publication
// of a post. Best-effort: a platform that errors (or does not support
// analytics) contributes a marker entry instead of failing the call.
func (s *Service) PostAnalytics(ctx context.Context, postID string) (map[string]platform.AnalyticsData, error) {
	pubs, err := s.st.PublicationsForPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	post, err := s.st.LoadPostSnapshot(ctx, postID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]platform.AnalyticsData, len(pubs))
	for _, pub := range pubs {
		adapter, ok := s.reg.Resolve(pub.Platform)
		if !ok {
			out[pub.Platform] = platform.AnalyticsData{Supported: false, Error: "adapter not registered"}
			continue
		}
		if !adapter.Capability().SupportsAnalytics {
			out[pub.Platform] = platform.AnalyticsData{Supported: false}
			continue
		}
		cred, err := s.st.ResolveCredential(ctx, post.AuthorID, pub.Platform)
		if err != nil {
			out[pub.Platform] = platform.AnalyticsData{Supported: true, Error: "credential unavailable"}
			continue
		}
		data, err := adapter.FetchAnalytics(ctx, cred, pub.PlatformPostID)
		if err != nil {
			s.log.Debug("analytics fetch failed",
				logx.String("post", postID), logx.String("platform", pub.Platform), logx.Err(err))
			out[pub.Platform] = platform.AnalyticsData{Supported: true, Error: err.Error()}
			continue
		}
		out[pub.Platform] = data
	}
	return out, nil
}

func normalizePlatforms(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, ErrNoPlatforms
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			return nil, ErrNoPlatforms
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlatform, name)
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
