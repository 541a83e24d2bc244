// Package apierr provides the shared failure taxonomy for upstream API
// calls, plus retry infrastructure for clients that are allowed to retry.
//
// Two kinds of consumers exist:
//
//   - The reddit client classifies its structured multi-error payloads into
//     a *ClassifiedError at the adapter boundary. Callers switch on Kind to
//     decide the user-facing consequence (404, 429, warning, fatal exit).
//   - The summarizer maps provider HTTP errors to the sentinel errors below
//     using fmt.Errorf("%s: %w", msg, sentinel) and checks them with
//     errors.Is when deciding whether to retry.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the internal classification of a failed upstream call.
type Kind int

const (
	// KindTransient covers unknown and network-level failures. Reported as
	// an empty result (CLI) or a 500 (server), never retried here.
	KindTransient Kind = iota

	// KindAuthFailure covers login/authentication failures. Fatal to the
	// process in CLI mode.
	KindAuthFailure

	// KindNotFound means the requested resource does not exist or is not
	// accessible.
	KindNotFound

	// KindRateLimited means the upstream throttled us. Carries a wait hint;
	// the caller decides whether to wait, this package never retries.
	KindRateLimited
)

// String returns a stable name for the kind, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindAuthFailure:
		return "auth_failure"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// ClassifiedError is the result of classifying a failed upstream call.
// RetryAfterSeconds is meaningful only when Kind is KindRateLimited.
type ClassifiedError struct {
	Kind              Kind
	Message           string
	RetryAfterSeconds int
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Kind == KindRateLimited {
		return fmt.Sprintf("%s: %s (retry after %ds)", e.Kind, e.Message, e.RetryAfterSeconds)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Sentinel errors for provider interaction failures. Providers map HTTP
// status codes to these at the adapter boundary.
var (
	// ErrRateLimit indicates the provider rate limit was exceeded (temporary).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the provider quota was exceeded (billing
	// issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out or the provider returned a
	// retryable server error.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates authentication against the provider failed.
	ErrAuthFailed = errors.New("authentication failed")
)
