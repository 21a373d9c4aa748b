package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"crosspub/internal/platform"
)

func pendingRow(id string, at time.Time) *ScheduledPublication {
	now := time.Now()
	return &ScheduledPublication{
		ID:           id,
		PostID:       "post-1",
		Platform:     "alpha",
		ScheduledFor: at,
		Status:       SchedulePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestClaimScheduledExactlyOnce(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateScheduled(ctx, pendingRow("sp-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ClaimScheduled(ctx, "sp-1")
			if err != nil {
				t.Error(err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("claim won %d times, want exactly 1", won)
	}
}

func TestClaimScheduledSkipsNonPending(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateScheduled(ctx, pendingRow("sp-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.CancelScheduled(ctx, "sp-1"); !ok {
		t.Fatal("cancel failed")
	}
	if ok, _ := m.ClaimScheduled(ctx, "sp-1"); ok {
		t.Fatal("claimed a cancelled row")
	}
	// Unknown ids claim as false, not as an error (lost races are normal).
	if ok, err := m.ClaimScheduled(ctx, "nope"); ok || err != nil {
		t.Fatalf("unknown claim = %v, %v", ok, err)
	}
}

func TestDueScheduledBoundary(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	_ = m.CreateScheduled(ctx, pendingRow("past", now.Add(-time.Minute)))
	_ = m.CreateScheduled(ctx, pendingRow("exact", now))
	_ = m.CreateScheduled(ctx, pendingRow("future", now.Add(time.Minute)))

	due, err := m.DueScheduled(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, sp := range due {
		ids[sp.ID] = true
	}
	if !ids["past"] || !ids["exact"] || ids["future"] {
		t.Fatalf("due = %v", ids)
	}
}

func TestJobRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	job := &Job{
		ID:        "job-1",
		PostID:    "post-1",
		Platforms: []string{"alpha"},
		Status:    JobPending,
		Results:   map[string]platform.PublishResult{},
	}
	if err := m.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = JobCompleted
	job.Results["alpha"] = platform.PublishResult{Success: true, PlatformPostID: "a1"}
	if err := m.UpdateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != JobCompleted || !got.Results["alpha"].Success {
		t.Fatalf("job = %+v", got)
	}

	// The stored job is a copy; mutating the caller's map must not leak in.
	job.Results["beta"] = platform.PublishResult{}
	got, _ = m.GetJob(ctx, "job-1")
	if _, leaked := got.Results["beta"]; leaked {
		t.Fatal("store shares result map with caller")
	}

	if _, err := m.GetJob(ctx, "missing"); err != ErrJobNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestTerminalStatus(t *testing.T) {
	t.Parallel()

	terminal := []JobStatus{JobCompleted, JobFailed, JobPartial}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	if JobPending.Terminal() || JobProcessing.Terminal() {
		t.Fatal("pending/processing must not be terminal")
	}
}

func TestResolveCredential(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.SeedCredential("user-1", "alpha", platform.Credential{AccessToken: "tok"})

	cred, err := m.ResolveCredential(context.Background(), "user-1", "alpha")
	if err != nil || cred.AccessToken != "tok" {
		t.Fatalf("cred = %+v, err %v", cred, err)
	}
	if _, err := m.ResolveCredential(context.Background(), "user-1", "beta"); err != ErrCredentialNotFound {
		t.Fatalf("err = %v", err)
	}
}
