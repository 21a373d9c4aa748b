package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"crosspub/internal/platform"
	logx "crosspub/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- jobs ----

func (s *sqliteStore) CreateJob(ctx context.Context, j *Job) error {
	platforms, err := json.Marshal(j.Platforms)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, post_id, platforms, scheduled_at, status, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)`,
		j.ID, j.PostID, string(platforms), nullTime(j.ScheduledAt), string(j.Status),
		j.CreatedAt.Format(time.RFC3339Nano), j.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) UpdateJob(ctx context.Context, j *Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status=?, updated_at=? WHERE id=?`,
		string(j.Status), j.UpdatedAt.Format(time.RFC3339Nano), j.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}

	for name, r := range j.Results {
		warnings, err := json.Marshal(r.Warnings)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_results(job_id, platform, success, platform_post_id, url, error, reason, warnings)
			 VALUES(?,?,?,?,?,?,?,?)
			 ON CONFLICT(job_id, platform) DO UPDATE SET
			   success=excluded.success, platform_post_id=excluded.platform_post_id,
			   url=excluded.url, error=excluded.error, reason=excluded.reason,
			   warnings=excluded.warnings`,
			j.ID, name, boolInt(r.Success), nullStr(r.PlatformPostID), nullStr(r.URL),
			nullStr(r.Error), nullStr(string(r.Reason)), string(warnings),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var (
		j           Job
		platforms   string
		scheduledAt sql.NullString
		createdAt   string
		updatedAt   string
		status      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, platforms, scheduled_at, status, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.PostID, &platforms, &scheduledAt, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(platforms), &j.Platforms); err != nil {
		return nil, fmt.Errorf("store: corrupt platforms for job %s: %w", id, err)
	}
	j.Status = JobStatus(status)
	j.ScheduledAt = parseNullTime(scheduledAt)
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	j.Results = map[string]platform.PublishResult{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, success, platform_post_id, url, error, reason, warnings
		 FROM job_results WHERE job_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name     string
			success  int
			postID   sql.NullString
			url      sql.NullString
			errMsg   sql.NullString
			reason   sql.NullString
			warnings sql.NullString
		)
		if err := rows.Scan(&name, &success, &postID, &url, &errMsg, &reason, &warnings); err != nil {
			return nil, err
		}
		r := platform.PublishResult{
			Success:        success != 0,
			PlatformPostID: postID.String,
			URL:            url.String,
			Error:          errMsg.String,
			Reason:         platform.Reason(reason.String),
		}
		if warnings.Valid && warnings.String != "" {
			_ = json.Unmarshal([]byte(warnings.String), &r.Warnings)
		}
		j.Results[name] = r
	}
	return &j, rows.Err()
}

// ---- scheduled publications ----

func (s *sqliteStore) CreateScheduled(ctx context.Context, sp *ScheduledPublication) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_publications(id, post_id, platform, scheduled_for, status, job_id, error, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		sp.ID, sp.PostID, sp.Platform, sp.ScheduledFor.UnixMilli(), string(sp.Status),
		nullStr(sp.JobID), nullStr(sp.Error),
		sp.CreatedAt.Format(time.RFC3339Nano), sp.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetScheduled(ctx context.Context, id string) (*ScheduledPublication, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, platform, scheduled_for, status, job_id, error, created_at, updated_at
		 FROM scheduled_publications WHERE id = ?`, id)
	sp, err := scanScheduled(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduledNotFound
	}
	if err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *sqliteStore) DueScheduled(ctx context.Context, now time.Time) ([]ScheduledPublication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, platform, scheduled_for, status, job_id, error, created_at, updated_at
		 FROM scheduled_publications
		 WHERE status = ? AND scheduled_for <= ?
		 ORDER BY scheduled_for ASC`,
		string(SchedulePending), now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledPublication
	for rows.Next() {
		sp, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sp)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClaimScheduled(ctx context.Context, id string) (bool, error) {
	// The WHERE clause is the compare-and-swap: exactly one concurrent
	// sweep can move the row out of PENDING.
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_publications SET status=?, updated_at=?
		 WHERE id=? AND status=?`,
		string(ScheduleProcessing), time.Now().Format(time.RFC3339Nano), id, string(SchedulePending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *sqliteStore) FinishScheduled(ctx context.Context, id string, status ScheduleStatus, jobID, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_publications SET status=?, job_id=?, error=?, updated_at=? WHERE id=?`,
		string(status), nullStr(jobID), nullStr(errMsg), time.Now().Format(time.RFC3339Nano), id)
	return err
}

func (s *sqliteStore) CancelScheduled(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_publications SET status=?, updated_at=?
		 WHERE id=? AND status=?`,
		string(ScheduleCancelled), time.Now().Format(time.RFC3339Nano), id, string(SchedulePending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduled(row rowScanner) (*ScheduledPublication, error) {
	var (
		sp        ScheduledPublication
		dueMillis int64
		status    string
		jobID     sql.NullString
		errMsg    sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&sp.ID, &sp.PostID, &sp.Platform, &dueMillis, &status, &jobID, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sp.ScheduledFor = time.UnixMilli(dueMillis)
	sp.Status = ScheduleStatus(status)
	sp.JobID = jobID.String
	sp.Error = errMsg.String
	sp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sp.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sp, nil
}

// ---- posts ----

func (s *sqliteStore) LoadPostSnapshot(ctx context.Context, postID string) (platform.PostData, error) {
	var (
		p        platform.PostData
		excerpt  sql.NullString
		tags     sql.NullString
		imageURL sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, title, body, excerpt, tags, image_url FROM posts WHERE id = ?`,
		postID,
	).Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &excerpt, &tags, &imageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return platform.PostData{}, ErrPostNotFound
	}
	if err != nil {
		return platform.PostData{}, err
	}
	p.Excerpt = excerpt.String
	p.ImageURL = imageURL.String
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &p.Tags)
	}
	return p, nil
}

func (s *sqliteStore) MarkPostPublished(ctx context.Context, postID string, status JobStatus) error {
	publishStatus := "published"
	if status == JobPartial {
		publishStatus = "published_partial"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET publish_status=?, published_at=? WHERE id=?`,
		publishStatus, time.Now().Format(time.RFC3339Nano), postID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPostNotFound
	}
	return nil
}

// ---- publications ----

func (s *sqliteStore) RecordPublication(ctx context.Context, p Publication) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publications(post_id, platform, platform_post_id, url, published_at)
		 VALUES(?,?,?,?,?)`,
		p.PostID, p.Platform, p.PlatformPostID, nullStr(p.URL),
		p.PublishedAt.Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) PublicationsForPost(ctx context.Context, postID string) ([]Publication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, platform, platform_post_id, url, published_at
		 FROM publications WHERE post_id = ? ORDER BY published_at ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Publication
	for rows.Next() {
		var (
			p           Publication
			url         sql.NullString
			publishedAt string
		)
		if err := rows.Scan(&p.PostID, &p.Platform, &p.PlatformPostID, &url, &publishedAt); err != nil {
			return nil, err
		}
		p.URL = url.String
		p.PublishedAt, _ = time.Parse(time.RFC3339Nano, publishedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- credentials ----

func (s *sqliteStore) ResolveCredential(ctx context.Context, userID, platformName string) (platform.Credential, error) {
	var (
		cred    platform.Credential
		refresh sql.NullString
		extra   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, extra FROM credentials
		 WHERE user_id = ? AND platform = ?`,
		userID, platformName,
	).Scan(&cred.AccessToken, &refresh, &extra)
	if errors.Is(err, sql.ErrNoRows) {
		return platform.Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return platform.Credential{}, err
	}
	cred.RefreshToken = refresh.String
	if extra.Valid && extra.String != "" {
		_ = json.Unmarshal([]byte(extra.String), &cred.Extra)
	}
	return cred, nil
}

// ---- helpers ----

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
