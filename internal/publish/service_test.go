package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"crosspub/internal/dispatch"
	"crosspub/internal/platform"
	"crosspub/internal/scheduler"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

type fakeAdapter struct {
	name      string
	failOnce  bool
	attempts  int
	analytics platform.AnalyticsData
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Capability() platform.Capability {
	return platform.Capability{SupportsAnalytics: f.analytics.Supported}
}
func (f *fakeAdapter) Validate(platform.PostData) platform.ValidationResult {
	return platform.ValidationResult{Valid: true}
}
func (f *fakeAdapter) Format(platform.PostData) ([]byte, error) { return []byte(`{}`), nil }
func (f *fakeAdapter) Authenticate(context.Context, platform.Credential) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) Publish(context.Context, []byte, platform.Credential) (platform.PublishResult, error) {
	f.attempts++
	if f.failOnce && f.attempts == 1 {
		return platform.Failed(platform.ReasonPublishFailed, "transient"), nil
	}
	return platform.PublishResult{Success: true, PlatformPostID: f.name + "-1"}, nil
}
func (f *fakeAdapter) FetchAnalytics(context.Context, platform.Credential, string) (platform.AnalyticsData, error) {
	return f.analytics, nil
}

func newService(t *testing.T, adapters ...platform.Adapter) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	st.SeedPost(platform.PostData{ID: "post-1", AuthorID: "user-1", Title: "T", Body: "B"})
	reg := platform.NewRegistry(logx.Nop())
	reg.Register(adapters...)
	for _, a := range adapters {
		st.SeedCredential("user-1", a.Name(), platform.Credential{AccessToken: "tok"})
	}
	disp := dispatch.New(dispatch.Config{}, logx.Nop(), reg, st, nil)
	sched := scheduler.New(scheduler.Config{Enabled: true}, st, disp, logx.Nop(), nil)
	return New(st, reg, disp, sched, logx.Nop()), st
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeAdapter{name: "alpha"})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, Request{PostID: "post-1"}); !errors.Is(err, ErrNoPlatforms) {
		t.Fatalf("err = %v", err)
	}
	_, err := svc.Submit(ctx, Request{PostID: "post-1", Platforms: []string{"alpha", "Alpha"}})
	if !errors.Is(err, ErrDuplicatePlatform) {
		t.Fatalf("duplicate (case-folded) err = %v", err)
	}
	if _, err := svc.Submit(ctx, Request{Platforms: []string{"alpha"}}); err == nil {
		t.Fatal("missing post_id accepted")
	}
}

func TestSubmitImmediate(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeAdapter{name: "alpha"})

	sub, err := svc.Submit(context.Background(), Request{PostID: "post-1", Platforms: []string{"alpha"}})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Mode != "immediate" || sub.Job == nil {
		t.Fatalf("submission = %+v", sub)
	}
	if sub.Job.Status != store.JobCompleted {
		t.Fatalf("job status = %s", sub.Job.Status)
	}
}

func TestSubmitScheduled(t *testing.T) {
	t.Parallel()

	svc, st := newService(t, &fakeAdapter{name: "alpha"})
	at := time.Now().Add(time.Hour)

	sub, err := svc.Submit(context.Background(), Request{
		PostID:      "post-1",
		Platforms:   []string{"alpha"},
		ScheduledAt: &at,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Mode != "scheduled" || len(sub.Scheduled) != 1 {
		t.Fatalf("submission = %+v", sub)
	}
	row, err := st.GetScheduled(context.Background(), sub.Scheduled[0].ID)
	if err != nil || row.Status != store.SchedulePending {
		t.Fatalf("row = %+v, err %v", row, err)
	}
}

func TestSubmitScheduledPastRejected(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeAdapter{name: "alpha"})
	at := time.Now().Add(-time.Minute)

	_, err := svc.Submit(context.Background(), Request{
		PostID:      "post-1",
		Platforms:   []string{"alpha"},
		ScheduledAt: &at,
	})
	if !errors.Is(err, scheduler.ErrScheduleInPast) {
		t.Fatalf("err = %v", err)
	}
}

func TestResubmitRetriesOnlyFailed(t *testing.T) {
	t.Parallel()

	flaky := &fakeAdapter{name: "flaky", failOnce: true}
	solid := &fakeAdapter{name: "solid"}
	svc, _ := newService(t, flaky, solid)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, Request{PostID: "post-1", Platforms: []string{"flaky", "solid"}})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Job.Status != store.JobPartial {
		t.Fatalf("first job = %s", sub.Job.Status)
	}

	retry, err := svc.Resubmit(ctx, sub.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(retry.Platforms) != 1 || retry.Platforms[0] != "flaky" {
		t.Fatalf("retry platforms = %v", retry.Platforms)
	}
	if retry.Status != store.JobCompleted {
		t.Fatalf("retry status = %s", retry.Status)
	}
	// The solid platform published once; a replay would double-post.
	if solid.attempts != 1 {
		t.Fatalf("solid attempts = %d", solid.attempts)
	}

	if _, err := svc.Resubmit(ctx, retry.ID); err == nil {
		t.Fatal("resubmit of a fully-successful job accepted")
	}
}

func TestPostAnalytics(t *testing.T) {
	t.Parallel()

	withStats := &fakeAdapter{
		name:      "stats",
		analytics: platform.AnalyticsData{Supported: true, Views: 10, Likes: 3},
	}
	noStats := &fakeAdapter{name: "nostats"}
	svc, _ := newService(t, withStats, noStats)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, Request{PostID: "post-1", Platforms: []string{"stats", "nostats"}}); err != nil {
		t.Fatal(err)
	}

	data, err := svc.PostAnalytics(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := data["stats"]; !got.Supported || got.Likes != 3 {
		t.Fatalf("stats = %+v", got)
	}
	if got := data["nostats"]; got.Supported {
		t.Fatalf("nostats = %+v", got)
	}
}

func TestPlatformsSorted(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeAdapter{name: "zeta"}, &fakeAdapter{name: "alpha"})
	infos := svc.Platforms()
	if len(infos) != 2 || infos[0].Name != "alpha" || infos[1].Name != "zeta" {
		t.Fatalf("infos = %+v", infos)
	}
}
