// Package telegram publishes posts to a Telegram channel through the Bot API.
//
// The credential's access token is the bot token and Extra["chat_id"] names
// the target channel. A fresh telebot instance is built per call so the
// adapter stays stateless across job runs.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"crosspub/internal/platform"
)

const (
	// Bot API hard limit for a single text message.
	maxMessageLen = 4096
)

type Adapter struct {
	apiURL  string // empty means api.telegram.org
	timeout time.Duration
}

type Option func(*Adapter)

// WithAPIURL points the adapter at a different Bot API endpoint (tests).
func WithAPIURL(u string) Option { return func(a *Adapter) { a.apiURL = u } }

func WithTimeout(d time.Duration) Option { return func(a *Adapter) { a.timeout = d } }

func New(opts ...Option) *Adapter {
	a := &Adapter{timeout: 10 * time.Second}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Capability() platform.Capability {
	return platform.Capability{
		MaxBodyLen:         maxMessageLen,
		HardBodyLimit:      true,
		SupportsScheduling: false,
		SupportsAnalytics:  false, // Bot API exposes no per-message view counters
		CredentialFields:   []string{"access_token", "chat_id"},
	}
}

func (a *Adapter) bot(cred platform.Credential, offline bool) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{
		Token:   cred.AccessToken,
		URL:     a.apiURL,
		Offline: offline,
		Client:  &http.Client{Timeout: a.timeout},
	})
}

func (a *Adapter) Authenticate(ctx context.Context, cred platform.Credential) (bool, error) {
	if missing := a.Capability().MissingCredentialFields(cred); len(missing) > 0 {
		return false, nil
	}
	// NewBot performs a getMe call, which is exactly the read-only
	// verification we want here.
	if _, err := a.bot(cred, false); err != nil {
		return false, nil
	}
	return true, nil
}

func (a *Adapter) Validate(post platform.PostData) platform.ValidationResult {
	var errs, warns []string

	if post.Title == "" && post.Body == "" {
		errs = append(errs, "message must have content")
	}
	if utf8.RuneCountInString(composeMessage(post)) > maxMessageLen {
		errs = append(errs, fmt.Sprintf("message exceeds %d character limit", maxMessageLen))
	}

	return platform.ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func composeMessage(post platform.PostData) string {
	text := platform.ComposeText(post.Title, post.Body)
	if line := platform.HashtagLine(post.Tags); line != "" {
		text += "\n\n" + line
	}
	return text
}

type message struct {
	Text string `json:"text"`
}

func (a *Adapter) Format(post platform.PostData) ([]byte, error) {
	return json.Marshal(message{Text: composeMessage(post)})
}

func (a *Adapter) Publish(ctx context.Context, payload []byte, cred platform.Credential) (platform.PublishResult, error) {
	if cred.AccessToken == "" || cred.Extra["chat_id"] == "" {
		return platform.PublishResult{}, platform.ErrNotAuthenticated
	}

	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return platform.PublishResult{}, fmt.Errorf("telegram: bad payload: %w", err)
	}

	chatID, err := strconv.ParseInt(cred.Extra["chat_id"], 10, 64)
	if err != nil {
		return platform.Failed(platform.ReasonPublishFailed,
			fmt.Sprintf("invalid chat_id %q", cred.Extra["chat_id"])), nil
	}

	b, err := a.bot(cred, true)
	if err != nil {
		return platform.PublishResult{}, fmt.Errorf("telegram: init bot: %w", err)
	}

	// telebot has no context plumbing on Send; honour the branch deadline
	// by running the call in a goroutine the dispatcher can abandon.
	type sendOut struct {
		msg *tele.Message
		err error
	}
	done := make(chan sendOut, 1)
	go func() {
		msg, err := b.Send(tele.ChatID(chatID), m.Text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- sendOut{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return platform.PublishResult{}, ctx.Err()
	case out := <-done:
		if out.err != nil {
			// Telegram rejections (bad chat, kicked bot, flood wait) are
			// expected failure modes, not infrastructure errors.
			return platform.Failed(platform.ReasonPublishFailed, out.err.Error()), nil
		}
		res := platform.PublishResult{
			Success:        true,
			PlatformPostID: strconv.Itoa(out.msg.ID),
		}
		if out.msg.Chat != nil && out.msg.Chat.Username != "" {
			res.URL = fmt.Sprintf("https://t.me/%s/%d", out.msg.Chat.Username, out.msg.ID)
		}
		return res, nil
	}
}

func (a *Adapter) FetchAnalytics(ctx context.Context, cred platform.Credential, platformPostID string) (platform.AnalyticsData, error) {
	return platform.AnalyticsData{Supported: false}, nil
}
