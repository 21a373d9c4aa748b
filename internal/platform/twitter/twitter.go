// Package twitter publishes posts as tweets via the v2 API.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"crosspub/internal/platform"
)

const (
	defaultBaseURL = "https://api.twitter.com/2"

	// Hard limit enforced by the API; exceeding it is a validation error,
	// not a warning.
	maxTweetLen = 280
	hashtagHint = 2
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

func (a *Adapter) Name() string { return "twitter" }

func (a *Adapter) Capability() platform.Capability {
	return platform.Capability{
		MaxBodyLen:         maxTweetLen,
		HardBodyLimit:      true,
		MaxHashtags:        hashtagHint,
		SupportsScheduling: false,
		SupportsAnalytics:  true,
		CredentialFields:   []string{"access_token"},
	}
}

func (a *Adapter) Authenticate(ctx context.Context, cred platform.Credential) (bool, error) {
	if cred.AccessToken == "" {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/users/me", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (a *Adapter) Validate(post platform.PostData) platform.ValidationResult {
	var errs, warns []string

	if post.Title == "" && post.Body == "" {
		errs = append(errs, "tweet must have content")
	}
	// The API limit is in characters; byte length overcounts emoji and CJK.
	if utf8.RuneCountInString(composeTweet(post)) > maxTweetLen {
		errs = append(errs, fmt.Sprintf("tweet exceeds %d character limit", maxTweetLen))
	}
	if len(post.Tags) > hashtagHint {
		warns = append(warns, fmt.Sprintf("works best with 1-%d hashtags per tweet", hashtagHint))
	}

	return platform.ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func composeTweet(post platform.PostData) string {
	text := platform.ComposeText(post.Title, post.Body)
	if line := platform.HashtagLine(post.Tags); line != "" {
		text += " " + line
	}
	return text
}

type tweet struct {
	Text string `json:"text"`
}

func (a *Adapter) Format(post platform.PostData) ([]byte, error) {
	// Validate reports the overflow; Format still guards the API limit so a
	// caller that skipped validation cannot send an over-long tweet.
	return json.Marshal(tweet{Text: platform.Truncate(composeTweet(post), maxTweetLen)})
}

func (a *Adapter) Publish(ctx context.Context, payload []byte, cred platform.Credential) (platform.PublishResult, error) {
	if cred.AccessToken == "" {
		return platform.PublishResult{}, platform.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/tweets", bytes.NewReader(payload))
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
			fmt.Sprintf("twitter api %d: %s", resp.StatusCode, string(raw))), nil
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return platform.PublishResult{}, fmt.Errorf("twitter: decode response: %w", err)
	}
	return platform.PublishResult{
		Success:        true,
		PlatformPostID: out.Data.ID,
		URL:            "https://twitter.com/i/web/status/" + out.Data.ID,
	}, nil
}

func (a *Adapter) FetchAnalytics(ctx context.Context, cred platform.Credential, platformPostID string) (platform.AnalyticsData, error) {
	url := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", a.baseURL, platformPostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return platform.AnalyticsData{}, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return platform.AnalyticsData{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return platform.AnalyticsData{}, fmt.Errorf("twitter analytics api %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			PublicMetrics struct {
				Retweets    int64 `json:"retweet_count"`
				Replies     int64 `json:"reply_count"`
				Likes       int64 `json:"like_count"`
				Impressions int64 `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return platform.AnalyticsData{}, err
	}

	m := out.Data.PublicMetrics
	data := platform.AnalyticsData{
		Supported:   true,
		Likes:       m.Likes,
		Comments:    m.Replies,
		Shares:      m.Retweets,
		Impressions: m.Impressions,
	}
	if m.Impressions > 0 {
		data.Engagement = float64(m.Likes+m.Replies+m.Retweets) / float64(m.Impressions) * 100
	}
	return data, nil
}
