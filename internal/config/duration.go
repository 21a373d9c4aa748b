package config

import (
	"fmt"
	"strings"
	"time"
)

// Timeout and interval fields (scheduler.sweep_interval,
// dispatch.branch_timeout, storage.busy_timeout, the http timeouts) are Go
// duration strings so "30s" or "2m" read naturally in the file. Empty means
// "use the built-in default"; negative values are rejected at load time so a
// bad file never reaches the services.

// DurationField parses one duration-string field. path names the field in
// error text, e.g. "scheduler.sweep_interval".
func DurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %q is not a duration (want \"30s\", \"2m\", ...): %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s: negative duration %q", path, raw)
	}
	return d, nil
}

// DurationFieldOr is DurationField with a fallback for empty fields.
func DurationFieldOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := DurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
