package platform

import "errors"

// Reason classifies a failed PublishResult so callers can render an
// actionable message ("reconnect this platform") without parsing error text.
type Reason string

const (
	ReasonAdapterNotFound  Reason = "ADAPTER_NOT_FOUND"
	ReasonAuthUnavailable  Reason = "AUTH_UNAVAILABLE"
	ReasonAuthRejected     Reason = "AUTH_REJECTED"
	ReasonValidationFailed Reason = "VALIDATION_FAILED"
	ReasonPublishFailed    Reason = "PUBLISH_FAILED"
)

// ErrNotAuthenticated is returned by adapters when a network method is
// called with credentials missing required fields.
var ErrNotAuthenticated = errors.New("platform: not authenticated")

// Failed builds a failed PublishResult with a reason code.
func Failed(reason Reason, msg string, warnings ...string) PublishResult {
	return PublishResult{Success: false, Reason: reason, Error: msg, Warnings: warnings}
}
