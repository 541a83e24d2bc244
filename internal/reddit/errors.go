package reddit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Upstream error-type codes this client understands. Anything else is
// treated as transient.
const (
	ErrorTypeSubredditNoExist    = "SUBREDDIT_NOEXIST"
	ErrorTypeSubredditNotAllowed = "SUBREDDIT_NOTALLOWED"
	ErrorTypeRateLimit           = "RATELIMIT"
	ErrorTypeQuotaFilled         = "QUOTA_FILLED"
)

// ErrNotAuthenticated indicates a request was attempted before a successful
// Authenticate call.
var ErrNotAuthenticated = errors.New("client is not authenticated")

// APIErrorItem is one entry of the upstream multi-error payload.
type APIErrorItem struct {
	ErrorType string
	Message   string
	Field     string
}

// APIError is the structured error the upstream API returns. A single failed
// request may carry several sub-errors; classification must inspect all of
// them.
type APIError struct {
	StatusCode int
	Items      []APIErrorItem
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("reddit API error (HTTP %d)", e.StatusCode)
	}

	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s: %s", item.ErrorType, item.Message))
	}
	return fmt.Sprintf("reddit API error (HTTP %d): %s", e.StatusCode, strings.Join(parts, "; "))
}

// errorEnvelope is the JSON shape of the upstream error payload:
//
//	{"json": {"errors": [["RATELIMIT", "try again in 2 minutes", "vdelay"]]}}
//
// Each inner array is [errorTypeCode, message, field].
type errorEnvelope struct {
	JSON struct {
		Errors [][]string `json:"errors"`
	} `json:"json"`
}

// parseAPIError builds an *APIError from a non-2xx response. Structured
// error envelopes are decoded; responses without one get a synthetic item
// derived from the HTTP status so classification still sees a code/message
// pair.
func parseAPIError(statusCode int, header http.Header, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.JSON.Errors) > 0 {
		apiErr := &APIError{StatusCode: statusCode}
		for _, raw := range env.JSON.Errors {
			item := APIErrorItem{}
			if len(raw) > 0 {
				item.ErrorType = raw[0]
			}
			if len(raw) > 1 {
				item.Message = raw[1]
			}
			if len(raw) > 2 {
				item.Field = raw[2]
			}
			apiErr.Items = append(apiErr.Items, item)
		}
		return apiErr
	}

	return &APIError{
		StatusCode: statusCode,
		Items:      []APIErrorItem{syntheticItem(statusCode, header)},
	}
}

// syntheticItem maps a bare HTTP status onto the upstream error-type codes
// so downstream classification has a single vocabulary.
func syntheticItem(statusCode int, header http.Header) APIErrorItem {
	switch statusCode {
	case http.StatusNotFound:
		return APIErrorItem{
			ErrorType: ErrorTypeSubredditNoExist,
			Message:   "subreddit does not exist",
		}
	case http.StatusForbidden:
		return APIErrorItem{
			ErrorType: ErrorTypeSubredditNotAllowed,
			Message:   "subreddit is private or quarantined",
		}
	case http.StatusTooManyRequests:
		msg := "you are doing that too much"
		if retryAfter := header.Get("Retry-After"); retryAfter != "" {
			msg = fmt.Sprintf("try again in %s seconds", retryAfter)
		}
		return APIErrorItem{ErrorType: ErrorTypeRateLimit, Message: msg}
	default:
		return APIErrorItem{
			ErrorType: "UNKNOWN",
			Message:   fmt.Sprintf("unexpected HTTP status %d", statusCode),
		}
	}
}
