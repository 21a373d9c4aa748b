// Package linkedin publishes posts as LinkedIn UGC shares.
package linkedin

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
	defaultBaseURL = "https://api.linkedin.com/v2"

	// LinkedIn renders roughly the first 3000 characters before folding.
	softBodyLimit = 3000
	hashtagHint   = 3
)

type Adapter struct {
	baseURL string
	http    *http.Client
}

type Option func(*Adapter)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
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

func (a *Adapter) Name() string { return "linkedin" }

func (a *Adapter) Capability() platform.Capability {
	return platform.Capability{
		MaxBodyLen:         softBodyLimit,
		MaxHashtags:        hashtagHint,
		SupportsScheduling: false,
		SupportsAnalytics:  true,
		CredentialFields:   []string{"access_token", "person_urn"},
	}
}

func (a *Adapter) Authenticate(ctx context.Context, cred platform.Credential) (bool, error) {
	if missing := a.Capability().MissingCredentialFields(cred); len(missing) > 0 {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/me", nil)
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
		errs = append(errs, "post must have either title or content")
	}
	if utf8.RuneCountInString(post.Body) > softBodyLimit {
		warns = append(warns, fmt.Sprintf("posts over %d characters may be truncated", softBodyLimit))
	}
	if len(post.Tags) > hashtagHint {
		warns = append(warns, fmt.Sprintf("works best with 1-%d hashtags", hashtagHint))
	}

	return platform.ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// ugcPost mirrors the subset of the UGC Posts schema we write.
type ugcPost struct {
	Author          string         `json:"author"`
	LifecycleState  string         `json:"lifecycleState"`
	SpecificContent map[string]any `json:"specificContent"`
	Visibility      map[string]any `json:"visibility"`
}

func (a *Adapter) Format(post platform.PostData) ([]byte, error) {
	text := platform.ComposeText(post.Title, post.Body)
	if line := platform.HashtagLine(post.Tags); line != "" {
		text += "\n\n" + line
	}

	// The author URN is credential-scoped and substituted at publish time.
	p := ugcPost{
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		Visibility: map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	return json.Marshal(p)
}

func (a *Adapter) Publish(ctx context.Context, payload []byte, cred platform.Credential) (platform.PublishResult, error) {
	if cred.AccessToken == "" {
		return platform.PublishResult{}, platform.ErrNotAuthenticated
	}

	var p ugcPost
	if err := json.Unmarshal(payload, &p); err != nil {
		return platform.PublishResult{}, fmt.Errorf("linkedin: bad payload: %w", err)
	}
	p.Author = cred.Extra["person_urn"]

	body, err := json.Marshal(p)
	if err != nil {
		return platform.PublishResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return platform.PublishResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.http.Do(req)
	if err != nil {
		return platform.PublishResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return platform.Failed(platform.ReasonPublishFailed,
			fmt.Sprintf("linkedin api %d: %s", resp.StatusCode, string(raw))), nil
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return platform.PublishResult{}, fmt.Errorf("linkedin: decode response: %w", err)
	}
	return platform.PublishResult{Success: true, PlatformPostID: out.ID}, nil
}

func (a *Adapter) FetchAnalytics(ctx context.Context, cred platform.Credential, platformPostID string) (platform.AnalyticsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/socialActions/"+platformPostID, nil)
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
		return platform.AnalyticsData{}, fmt.Errorf("linkedin analytics api %d", resp.StatusCode)
	}

	var out struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalComments int64 `json:"totalFirstLevelComments"`
		} `json:"commentsSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return platform.AnalyticsData{}, err
	}
	return platform.AnalyticsData{
		Supported: true,
		Likes:     out.LikesSummary.TotalLikes,
		Comments:  out.CommentsSummary.TotalComments,
	}, nil
}
