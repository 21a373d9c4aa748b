package store

import (
	"context"
	"sync"
	"time"

	"crosspub/internal/platform"
)

// Memory is an in-process Store used by tests and local development.
// All methods are safe for concurrent use; ClaimScheduled and
// CancelScheduled give the same single-writer-wins guarantee as the
// sqlite driver.
type Memory struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	scheduled   map[string]*ScheduledPublication
	posts       map[string]platform.PostData
	postStatus  map[string]string
	credentials map[string]platform.Credential // key: userID + "/" + platform
	pubs        []Publication
}

func NewMemory() *Memory {
	return &Memory{
		jobs:        map[string]*Job{},
		scheduled:   map[string]*ScheduledPublication{},
		posts:       map[string]platform.PostData{},
		postStatus:  map[string]string{},
		credentials: map[string]platform.Credential{},
	}
}

// SeedPost installs a post snapshot (test/dev helper, not part of Store).
func (m *Memory) SeedPost(p platform.PostData) {
	m.mu.Lock()
	m.posts[p.ID] = p
	m.mu.Unlock()
}

// SeedCredential installs a credential (test/dev helper, not part of Store).
func (m *Memory) SeedCredential(userID, platformName string, cred platform.Credential) {
	m.mu.Lock()
	m.credentials[userID+"/"+platformName] = cred
	m.mu.Unlock()
}

// PostStatus reports the publish status recorded by MarkPostPublished.
func (m *Memory) PostStatus(postID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.postStatus[postID]
}

func (m *Memory) Close() error { return nil }

// ---- jobs ----

func (m *Memory) CreateJob(ctx context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyJob(j)
	m.jobs[j.ID] = cp
	return nil
}

func (m *Memory) UpdateJob(ctx context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return ErrJobNotFound
	}
	m.jobs[j.ID] = copyJob(j)
	return nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(j), nil
}

// ---- scheduled publications ----

func (m *Memory) CreateScheduled(ctx context.Context, sp *ScheduledPublication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sp
	m.scheduled[sp.ID] = &cp
	return nil
}

func (m *Memory) GetScheduled(ctx context.Context, id string) (*ScheduledPublication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.scheduled[id]
	if !ok {
		return nil, ErrScheduledNotFound
	}
	cp := *sp
	return &cp, nil
}

func (m *Memory) DueScheduled(ctx context.Context, now time.Time) ([]ScheduledPublication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ScheduledPublication
	for _, sp := range m.scheduled {
		if sp.Status == SchedulePending && !sp.ScheduledFor.After(now) {
			out = append(out, *sp)
		}
	}
	return out, nil
}

func (m *Memory) ClaimScheduled(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.scheduled[id]
	if !ok || sp.Status != SchedulePending {
		return false, nil
	}
	sp.Status = ScheduleProcessing
	sp.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) FinishScheduled(ctx context.Context, id string, status ScheduleStatus, jobID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.scheduled[id]
	if !ok {
		return ErrScheduledNotFound
	}
	sp.Status = status
	sp.JobID = jobID
	sp.Error = errMsg
	sp.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) CancelScheduled(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.scheduled[id]
	if !ok || sp.Status != SchedulePending {
		return false, nil
	}
	sp.Status = ScheduleCancelled
	sp.UpdatedAt = time.Now()
	return true, nil
}

// ---- posts ----

func (m *Memory) LoadPostSnapshot(ctx context.Context, postID string) (platform.PostData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return platform.PostData{}, ErrPostNotFound
	}
	return p, nil
}

func (m *Memory) MarkPostPublished(ctx context.Context, postID string, status JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return ErrPostNotFound
	}
	if status == JobPartial {
		m.postStatus[postID] = "published_partial"
	} else {
		m.postStatus[postID] = "published"
	}
	return nil
}

// ---- publications ----

func (m *Memory) RecordPublication(ctx context.Context, p Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubs = append(m.pubs, p)
	return nil
}

func (m *Memory) PublicationsForPost(ctx context.Context, postID string) ([]Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Publication
	for _, p := range m.pubs {
		if p.PostID == postID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ---- credentials ----

func (m *Memory) ResolveCredential(ctx context.Context, userID, platformName string) (platform.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[userID+"/"+platformName]
	if !ok {
		return platform.Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func copyJob(j *Job) *Job {
	cp := *j
	cp.Platforms = append([]string(nil), j.Platforms...)
	cp.Results = make(map[string]platform.PublishResult, len(j.Results))
	for k, v := range j.Results {
		cp.Results[k] = v
	}
	return &cp
}
