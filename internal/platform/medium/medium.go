// Package medium publishes posts as Medium stories.
package medium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"crosspub/internal/platform"
)

const (
	defaultBaseURL = "https://api.medium.com/v1"

	// Titles longer than this get cut off in Medium feeds.
	titleHint = 100
)

type Adapter struct {
	baseURL string
	http    *http.Client
}

type Option func(*Adapter)

func WithBaseURL(u string) Option { return func(a *Adapter) { a.baseURL = u } }

func WithHTTPClient(c *http.Client) Option { return func(a *Adapter) { a.http = c } }

func New(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "medium" }

func (a *Adapter) Capability() platform.Capability {
	return platform.Capability{
		MaxTitleLen:        titleHint,
		SupportsScheduling: false,
		SupportsAnalytics:  false, // Medium exposes no analytics API for regular users
		CredentialFields:   []string{"access_token"},
	}
}

func (a *Adapter) Authenticate(ctx context.Context, cred platform.Credential) (bool, error) {
	if cred.AccessToken == "" {
		return false, nil
	}
	_, err := a.me(ctx, cred)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *Adapter) Validate(post platform.PostData) platform.ValidationResult {
	var errs, warns []string

	if post.Title == "" {
		errs = append(errs, "medium posts require a title")
	}
	if post.Body == "" {
		errs = append(errs, "medium posts require content")
	}
	if utf8.RuneCountInString(post.Title) > titleHint {
		warns = append(warns, fmt.Sprintf("titles over %d characters may be truncated in feeds", titleHint))
	}

	return platform.ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

type story struct {
	Title         string   `json:"title"`
	ContentFormat string   `json:"contentFormat"`
	Content       string   `json:"content"`
	Tags          []string `json:"tags,omitempty"`
	PublishStatus string   `json:"publishStatus"`
	License       string   `json:"license"`
}

func (a *Adapter) Format(post platform.PostData) ([]byte, error) {
	return json.Marshal(story{
		Title:         post.Title,
		ContentFormat: "html",
		Content:       post.Body,
		Tags:          post.Tags,
		PublishStatus: "public",
		License:       "all-rights-reserved",
	})
}

func (a *Adapter) Publish(ctx context.Context, payload []byte, cred platform.Credential) (platform.PublishResult, error) {
	if cred.AccessToken == "" {
		return platform.PublishResult{}, platform.ErrNotAuthenticated
	}

	// Story creation is scoped to the authenticated user id.
	userID, err := a.me(ctx, cred)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return platform.Failed(platform.ReasonPublishFailed,
				fmt.Sprintf("medium api %d resolving user", se.code)), nil
		}
		return platform.PublishResult{}, err
	}

	url := fmt.Sprintf("%s/users/%s/posts", a.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return platform.PublishResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return platform.PublishResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return platform.Failed(platform.ReasonPublishFailed,
			fmt.Sprintf("medium api %d: %s", resp.StatusCode, string(raw))), nil
	}

	var out struct {
		Data struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return platform.PublishResult{}, fmt.Errorf("medium: decode response: %w", err)
	}
	return platform.PublishResult{Success: true, PlatformPostID: out.Data.ID, URL: out.Data.URL}, nil
}

func (a *Adapter) FetchAnalytics(ctx context.Context, cred platform.Credential, platformPostID string) (platform.AnalyticsData, error) {
	// Declared unsupported in the capability model; not an error.
	return platform.AnalyticsData{Supported: false}, nil
}

func (a *Adapter) me(ctx context.Context, cred platform.Credential) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode}
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("medium api status %d", e.code) }
