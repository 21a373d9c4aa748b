package dispatch

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"crosspub/internal/eventbus"
	"crosspub/internal/platform"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

type fakeAdapter struct {
	name     string
	authOK   bool
	authErr  error
	valErrs  []string
	valWarns []string
	pubRes   platform.PublishResult
	pubErr   error
	blockPub bool
	panicPub bool

	authCalls int32
	pubCalls  int32
}

func okAdapter(name string) *fakeAdapter {
	return &fakeAdapter{
		name:   name,
		authOK: true,
		pubRes: platform.PublishResult{Success: true, PlatformPostID: name + "-1"},
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Capability() platform.Capability {
	return platform.Capability{CredentialFields: []string{"access_token"}}
}

func (f *fakeAdapter) Authenticate(ctx context.Context, cred platform.Credential) (bool, error) {
	atomic.AddInt32(&f.authCalls, 1)
	return f.authOK, f.authErr
}

func (f *fakeAdapter) Validate(post platform.PostData) platform.ValidationResult {
	return platform.ValidationResult{
		Valid:    len(f.valErrs) == 0,
		Errors:   f.valErrs,
		Warnings: f.valWarns,
	}
}

func (f *fakeAdapter) Format(post platform.PostData) ([]byte, error) {
	return []byte(`{}`), nil
}

func (f *fakeAdapter) Publish(ctx context.Context, payload []byte, cred platform.Credential) (platform.PublishResult, error) {
	atomic.AddInt32(&f.pubCalls, 1)
	if f.panicPub {
		panic("adapter exploded")
	}
	if f.blockPub {
		<-ctx.Done()
		return platform.PublishResult{}, ctx.Err()
	}
	return f.pubRes, f.pubErr
}

func (f *fakeAdapter) FetchAnalytics(ctx context.Context, cred platform.Credential, id string) (platform.AnalyticsData, error) {
	return platform.AnalyticsData{}, nil
}

type fixture struct {
	st   *store.Memory
	reg  *platform.Registry
	disp *Dispatcher
}

func newFixture(t *testing.T, cfg Config, adapters ...platform.Adapter) *fixture {
	t.Helper()
	st := store.NewMemory()
	st.SeedPost(platform.PostData{ID: "post-1", AuthorID: "user-1", Title: "T", Body: "B"})
	reg := platform.NewRegistry(logx.Nop())
	reg.Register(adapters...)
	for _, a := range adapters {
		st.SeedCredential("user-1", a.Name(), platform.Credential{AccessToken: "tok"})
	}
	return &fixture{
		st:   st,
		reg:  reg,
		disp: New(cfg, logx.Nop(), reg, st, eventbus.New()),
	}
}

func (f *fixture) run(t *testing.T, platforms ...string) *store.Job {
	t.Helper()
	job := NewJob("post-1", platforms, nil)
	if err := f.st.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if err := f.disp.Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestRunAllSucceed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, okAdapter("alpha"), okAdapter("beta"))
	job := f.run(t, "alpha", "beta")

	if job.Status != store.JobCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if len(job.Results) != 2 {
		t.Fatalf("results = %v", job.Results)
	}
	for name, res := range job.Results {
		if !res.Success {
			t.Fatalf("%s failed: %+v", name, res)
		}
	}
	if got := f.st.PostStatus("post-1"); got != "published" {
		t.Fatalf("post status = %q", got)
	}
	pubs, err := f.st.PublicationsForPost(context.Background(), "post-1")
	if err != nil || len(pubs) != 2 {
		t.Fatalf("publications = %v, err %v", pubs, err)
	}
}

func TestRunPartial(t *testing.T) {
	t.Parallel()

	bad := okAdapter("bad")
	bad.valErrs = []string{"too long"}

	f := newFixture(t, Config{}, okAdapter("good"), bad)
	job := f.run(t, "good", "bad")

	if job.Status != store.JobPartial {
		t.Fatalf("status = %s", job.Status)
	}
	res := job.Results["bad"]
	if res.Success || res.Reason != platform.ReasonValidationFailed {
		t.Fatalf("bad result = %+v", res)
	}
	// Validation failure must short-circuit before any network publish.
	if atomic.LoadInt32(&bad.pubCalls) != 0 {
		t.Fatal("publish called despite validation failure")
	}
	if got := f.st.PostStatus("post-1"); got != "published_partial" {
		t.Fatalf("post status = %q", got)
	}
}

func TestRunAllFail(t *testing.T) {
	t.Parallel()

	a := okAdapter("alpha")
	a.pubRes = platform.PublishResult{}
	a.pubErr = context.DeadlineExceeded

	f := newFixture(t, Config{}, a)
	job := f.run(t, "alpha")

	if job.Status != store.JobFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if res := job.Results["alpha"]; res.Success || res.Reason != platform.ReasonPublishFailed {
		t.Fatalf("result = %+v", res)
	}
	// No success, so the post must not be flipped.
	if got := f.st.PostStatus("post-1"); got != "" {
		t.Fatalf("post status = %q", got)
	}
}

func TestRunUnknownPlatform(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, okAdapter("alpha"))
	job := f.run(t, "alpha", "ghost")

	if job.Status != store.JobPartial {
		t.Fatalf("status = %s", job.Status)
	}
	res := job.Results["ghost"]
	if res.Success || res.Reason != platform.ReasonAdapterNotFound {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunMissingCredential(t *testing.T) {
	t.Parallel()

	a := okAdapter("alpha")
	st := store.NewMemory()
	st.SeedPost(platform.PostData{ID: "post-1", AuthorID: "user-1", Body: "B"})
	// No credential seeded for alpha.
	reg := platform.NewRegistry(logx.Nop())
	reg.Register(a)
	disp := New(Config{}, logx.Nop(), reg, st, nil)

	job := NewJob("post-1", []string{"alpha"}, nil)
	if err := st.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if err := disp.Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	res := job.Results["alpha"]
	if res.Success || res.Reason != platform.ReasonAuthUnavailable {
		t.Fatalf("result = %+v", res)
	}
	if atomic.LoadInt32(&a.authCalls) != 0 {
		t.Fatal("adapter contacted without a credential")
	}
}

func TestRunAuthRejected(t *testing.T) {
	t.Parallel()

	a := okAdapter("alpha")
	a.authOK = false

	f := newFixture(t, Config{}, a)
	job := f.run(t, "alpha")

	res := job.Results["alpha"]
	if res.Success || res.Reason != platform.ReasonAuthRejected {
		t.Fatalf("result = %+v", res)
	}
	if atomic.LoadInt32(&a.pubCalls) != 0 {
		t.Fatal("publish attempted with rejected credentials")
	}
}

func TestRunHungBranchIsolated(t *testing.T) {
	t.Parallel()

	hung := okAdapter("hung")
	hung.blockPub = true

	f := newFixture(t, Config{BranchTimeout: 100 * time.Millisecond}, okAdapter("fast"), hung)

	start := time.Now()
	job := f.run(t, "fast", "hung")
	elapsed := time.Since(start)

	if job.Status != store.JobPartial {
		t.Fatalf("status = %s", job.Status)
	}
	if !job.Results["fast"].Success {
		t.Fatalf("fast branch dragged down: %+v", job.Results["fast"])
	}
	if res := job.Results["hung"]; res.Success || res.Reason != platform.ReasonPublishFailed {
		t.Fatalf("hung result = %+v", res)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("hung branch stalled the job for %s", elapsed)
	}
}

func TestRunPanicBecomesResult(t *testing.T) {
	t.Parallel()

	a := okAdapter("alpha")
	a.panicPub = true

	f := newFixture(t, Config{}, a)
	job := f.run(t, "alpha")

	res := job.Results["alpha"]
	if res.Success || res.Reason != platform.ReasonPublishFailed {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Error, "panic") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestRunPostNotFound(t *testing.T) {
	t.Parallel()

	a := okAdapter("alpha")
	st := store.NewMemory()
	st.SeedCredential("user-1", "alpha", platform.Credential{AccessToken: "tok"})
	reg := platform.NewRegistry(logx.Nop())
	reg.Register(a)
	disp := New(Config{}, logx.Nop(), reg, st, nil)

	job := NewJob("missing-post", []string{"alpha"}, nil)
	if err := st.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if err := disp.Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if job.Status != store.JobFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if _, ok := job.Results["alpha"]; !ok {
		t.Fatal("missing per-platform result for unloadable post")
	}
	if atomic.LoadInt32(&a.authCalls) != 0 || atomic.LoadInt32(&a.pubCalls) != 0 {
		t.Fatal("adapter contacted for a missing post")
	}
}

func TestRunWarningsAttached(t *testing.T) {
	t.Parallel()

	a := okAdapter("alpha")
	a.valWarns = []string{"title is long"}

	f := newFixture(t, Config{}, a)
	job := f.run(t, "alpha")

	res := job.Results["alpha"]
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "title is long" {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestRunPersistsTerminalJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, okAdapter("alpha"))
	job := f.run(t, "alpha")

	stored, err := f.st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != store.JobCompleted {
		t.Fatalf("stored status = %s", stored.Status)
	}
	if !stored.Status.Terminal() {
		t.Fatal("stored job is not terminal")
	}
	if len(stored.Results) != 1 {
		t.Fatalf("stored results = %v", stored.Results)
	}
}

// stallingStore stalls publication writes until the context expires.
type stallingStore struct {
	*store.Memory
}

func (s *stallingStore) RecordPublication(ctx context.Context, p store.Publication) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunBoundsStalledPublicationWrite(t *testing.T) {
	t.Parallel()

	st := &stallingStore{Memory: store.NewMemory()}
	st.SeedPost(platform.PostData{ID: "post-1", AuthorID: "user-1", Title: "T", Body: "B"})
	st.SeedCredential("user-1", "alpha", platform.Credential{AccessToken: "tok"})
	reg := platform.NewRegistry(logx.Nop())
	reg.Register(okAdapter("alpha"))
	disp := New(Config{BranchTimeout: 100 * time.Millisecond}, logx.Nop(), reg, st, nil)

	job := NewJob("post-1", []string{"alpha"}, nil)
	if err := st.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := disp.Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("stalled write held the job open for %v", elapsed)
	}
	// The publish succeeded; only the bookkeeping write was lost.
	if job.Status != store.JobCompleted {
		t.Fatalf("status = %s", job.Status)
	}
}
