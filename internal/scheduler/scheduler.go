// Package scheduler owns deferred publishing: one row per (post, platform)
// with a requested time, and a periodic sweep that claims due rows and
// hands them to the dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"crosspub/internal/dispatch"
	"crosspub/internal/eventbus"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

// ErrScheduleInPast rejects schedule requests whose time already passed.
var ErrScheduleInPast = errors.New("scheduler: scheduled time is in the past")

type Config struct {
	Enabled bool
	// SweepInterval is the poll period for due publications; default 30s.
	SweepInterval time.Duration
	Timezone      string
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	return c
}

// Service runs the sweep loop. Claiming is a compare-and-set on the store,
// so multiple processes can sweep the same database and each due row is
// dispatched exactly once.
type Service struct {
	log  logx.Logger
	st   store.Store
	disp *dispatch.Dispatcher
	bus  eventbus.Bus

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron

	// sweepMu serializes sweeps; an overdue sweep is skipped, not queued.
	sweepMu sync.Mutex

	// baseCtx bounds in-flight sweeps; cancelled by Stop.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, st store.Store, disp *dispatch.Dispatcher, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), st: st, disp: disp, log: log, bus: bus}
}

// Schedule records one pending publication per platform for the given post.
// The platform list must already be validated (non-empty, no duplicates).
func (s *Service) Schedule(ctx context.Context, postID string, platforms []string, at time.Time) ([]store.ScheduledPublication, error) {
	if !at.After(time.Now()) {
		return nil, ErrScheduleInPast
	}
	now := time.Now()
	out := make([]store.ScheduledPublication, 0, len(platforms))
	for _, name := range platforms {
		sp := store.ScheduledPublication{
			ID:           uuid.NewString(),
			PostID:       postID,
			Platform:     name,
			ScheduledFor: at,
			Status:       store.SchedulePending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.st.CreateScheduled(ctx, &sp); err != nil {
			return nil, fmt.Errorf("scheduler: create scheduled %s/%s: %w", postID, name, err)
		}
		out = append(out, sp)
	}
	s.log.Info("publication scheduled",
		logx.String("post", postID),
		logx.Strings("platforms", platforms),
		logx.Time("at", at))
	return out, nil
}

// Cancel flips a pending publication to CANCELLED. It returns false when
// the row was already claimed or finished; a claimed row keeps running.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := s.st.CancelScheduled(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Info("scheduled publication cancelled", logx.String("id", id))
	}
	return ok, nil
}

// Start begins the periodic sweep. Safe to call once; a disabled config
// leaves the service idle.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Debug("scheduler disabled; sweep not started")
		return
	}

	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(loc))
	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := s.c.AddFunc(spec, s.sweep); err != nil {
		// Only reachable with a mangled interval; withDefaults guards zero.
		s.log.Error("sweep registration failed", logx.String("spec", spec), logx.Err(err))
		s.c = nil
		return
	}
	s.c.Start()
	s.log.Info("service started",
		logx.Duration("sweep_interval", s.cfg.SweepInterval),
		logx.String("tz", loc.String()))
}

// Stop halts triggering and waits for in-flight sweeps up to ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Apply updates the sweep interval/timezone; a running sweep loop is
// restarted when either changed.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	changed := cfg.SweepInterval != s.cfg.SweepInterval ||
		!strings.EqualFold(strings.TrimSpace(cfg.Timezone), strings.TrimSpace(s.cfg.Timezone)) ||
		cfg.Enabled != s.cfg.Enabled
	running := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	if changed && running {
		s.Stop(context.Background())
		s.Start(context.Background())
	} else if changed && cfg.Enabled {
		s.Start(context.Background())
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// sweep claims due publications and dispatches them. An overlapping tick
// is skipped so a slow platform never stacks sweeps.
func (s *Service) sweep() {
	if !s.sweepMu.TryLock() {
		s.log.Debug("sweep still running; tick skipped")
		return
	}
	defer s.sweepMu.Unlock()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.Sweep(ctx, time.Now())
}

// Sweep runs one claim-and-dispatch pass for everything due at now.
// Exposed for tests and for a one-shot CLI sweep.
func (s *Service) Sweep(ctx context.Context, now time.Time) {
	due, err := s.st.DueScheduled(ctx, now)
	if err != nil {
		s.log.Warn("due query failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}

	// Claim first; rows lost to a concurrent sweeper are someone else's.
	claimed := due[:0]
	for _, sp := range due {
		ok, err := s.st.ClaimScheduled(ctx, sp.ID)
		if err != nil {
			s.log.Warn("claim failed", logx.String("id", sp.ID), logx.Err(err))
			continue
		}
		if !ok {
			continue
		}
		claimed = append(claimed, sp)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepClaimed, Data: map[string]string{
				"id": sp.ID, "post_id": sp.PostID, "platform": sp.Platform,
			}})
		}
	}
	if len(claimed) == 0 {
		return
	}
	s.log.Info("sweep claimed publications", logx.Int("count", len(claimed)))

	// Group by post so one job fans out to all platforms due together.
	byPost := map[string][]store.ScheduledPublication{}
	for _, sp := range claimed {
		byPost[sp.PostID] = append(byPost[sp.PostID], sp)
	}
	posts := make([]string, 0, len(byPost))
	for id := range byPost {
		posts = append(posts, id)
	}
	sort.Strings(posts)

	for _, postID := range posts {
		if ctx.Err() != nil {
			return
		}
		s.dispatchGroup(ctx, postID, byPost[postID])
	}
}

func (s *Service) dispatchGroup(ctx context.Context, postID string, group []store.ScheduledPublication) {
	// Separate Schedule calls can leave two due rows for the same
	// (post, platform); the job gets the platform once and every row
	// mirrors that one result.
	platforms := make([]string, 0, len(group))
	seen := make(map[string]bool, len(group))
	earliest := group[0].ScheduledFor
	for _, sp := range group {
		if !seen[sp.Platform] {
			seen[sp.Platform] = true
			platforms = append(platforms, sp.Platform)
		}
		if sp.ScheduledFor.Before(earliest) {
			earliest = sp.ScheduledFor
		}
	}

	job := dispatch.NewJob(postID, platforms, &earliest)
	if err := s.st.CreateJob(ctx, job); err != nil {
		s.log.Error("job create failed", logx.String("post", postID), logx.Err(err))
		s.finishGroup(ctx, group, job, err)
		return
	}

	runErr := s.disp.Run(ctx, job)
	if runErr != nil {
		s.log.Error("dispatch failed", logx.String("job", job.ID), logx.Err(runErr))
	}
	s.finishGroup(ctx, group, job, runErr)
}

// finishGroup mirrors per-platform job results back onto the claimed rows.
func (s *Service) finishGroup(ctx context.Context, group []store.ScheduledPublication, job *store.Job, runErr error) {
	for _, sp := range group {
		status := store.ScheduleFailed
		errMsg := ""
		switch {
		case runErr != nil:
			errMsg = runErr.Error()
		default:
			if res, ok := job.Results[sp.Platform]; ok && res.Success {
				status = store.ScheduleCompleted
			} else if ok {
				errMsg = res.Error
			} else {
				errMsg = "no result recorded"
			}
		}
		if err := s.st.FinishScheduled(ctx, sp.ID, status, job.ID, errMsg); err != nil {
			s.log.Warn("finish failed", logx.String("id", sp.ID), logx.Err(err))
		}
	}
}
