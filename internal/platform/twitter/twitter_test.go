package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"crosspub/internal/platform"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	a := New()

	cases := []struct {
		name      string
		post      platform.PostData
		wantValid bool
		wantWarns int
	}{
		{
			name:      "short post ok",
			post:      platform.PostData{Title: "Hi", Body: "short"},
			wantValid: true,
		},
		{
			name:      "empty post rejected",
			post:      platform.PostData{},
			wantValid: false,
		},
		{
			name:      "over 280 is a hard error",
			post:      platform.PostData{Body: strings.Repeat("x", 300)},
			wantValid: false,
		},
		{
			// 150 characters but ~600 bytes; the limit counts characters.
			name:      "non-ascii under the limit ok",
			post:      platform.PostData{Body: strings.Repeat("火", 150)},
			wantValid: true,
		},
		{
			name:      "non-ascii over the limit rejected",
			post:      platform.PostData{Body: strings.Repeat("火", 300)},
			wantValid: false,
		},
		{
			name:      "too many hashtags warns only",
			post:      platform.PostData{Body: "ok", Tags: []string{"a", "b", "c"}},
			wantValid: true,
			wantWarns: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			vr := a.Validate(tc.post)
			if vr.Valid != tc.wantValid {
				t.Fatalf("Valid = %v, errors %v", vr.Valid, vr.Errors)
			}
			if len(vr.Warnings) != tc.wantWarns {
				t.Fatalf("warnings = %v", vr.Warnings)
			}
		})
	}
}

func TestFormatDeterministic(t *testing.T) {
	t.Parallel()

	a := New()
	post := platform.PostData{Title: "Title", Body: "Body", Tags: []string{"go"}}

	first, err := a.Format(post)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Format(post)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("payload differs between calls:\n%s\n%s", first, second)
	}

	var tw tweet
	if err := json.Unmarshal(first, &tw); err != nil {
		t.Fatal(err)
	}
	if tw.Text != "Title\n\nBody #go" {
		t.Fatalf("text = %q", tw.Text)
	}
}

func TestFormatGuardsLength(t *testing.T) {
	t.Parallel()

	a := New()
	payload, err := a.Format(platform.PostData{Body: strings.Repeat("y", 500)})
	if err != nil {
		t.Fatal(err)
	}
	var tw tweet
	if err := json.Unmarshal(payload, &tw); err != nil {
		t.Fatal(err)
	}
	if utf8.RuneCountInString(tw.Text) > maxTweetLen {
		t.Fatalf("formatted tweet is %d chars", utf8.RuneCountInString(tw.Text))
	}

	// Truncation of a multi-byte body must not split a character.
	payload, err = a.Format(platform.PostData{Body: strings.Repeat("火", 500)})
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(payload, &tw); err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(tw.Text) {
		t.Fatal("truncated tweet contains invalid UTF-8")
	}
	if utf8.RuneCountInString(tw.Text) != maxTweetLen {
		t.Fatalf("formatted tweet is %d chars", utf8.RuneCountInString(tw.Text))
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tweets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1234"}}`))
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL))
	payload, _ := a.Format(platform.PostData{Body: "hello"})

	res, err := a.Publish(context.Background(), payload, platform.Credential{AccessToken: "tok"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.PlatformPostID != "1234" {
		t.Fatalf("result = %+v", res)
	}
}

func TestPublishRejectionIsResultNotError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"duplicate"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL))
	res, err := a.Publish(context.Background(), []byte(`{"text":"x"}`), platform.Credential{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if res.Success || res.Reason != platform.ReasonPublishFailed {
		t.Fatalf("result = %+v", res)
	}
}

func TestFetchAnalytics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"public_metrics":{"retweet_count":2,"reply_count":3,"like_count":5,"impression_count":100}}}`))
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL))
	data, err := a.FetchAnalytics(context.Background(), platform.Credential{AccessToken: "tok"}, "1234")
	if err != nil {
		t.Fatal(err)
	}
	if !data.Supported || data.Likes != 5 || data.Shares != 2 || data.Comments != 3 {
		t.Fatalf("data = %+v", data)
	}
	if data.Engagement != 10 {
		t.Fatalf("engagement = %v", data.Engagement)
	}
}
