package reddit

import (
	"errors"

	"github.com/subfeed/subfeed/internal/apierr"
)

// Classify translates a failed upstream call into the internal taxonomy.
// Returns nil for a nil error.
//
// Every sub-error of a multi-error payload is inspected in order; the first
// actionable one (rate-limited or not-found) decides the classification,
// even when unrecognized codes precede or follow it. When nothing is
// recognized the original message text is preserved in a transient result.
func Classify(err error) *apierr.ClassifiedError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if errors.Is(err, apierr.ErrAuthFailed) {
		return &apierr.ClassifiedError{
			Kind:    apierr.KindAuthFailure,
			Message: err.Error(),
		}
	}

	// Network errors, cancelled contexts, decode failures.
	return &apierr.ClassifiedError{
		Kind:    apierr.KindTransient,
		Message: err.Error(),
	}
}

func classifyAPIError(apiErr *APIError) *apierr.ClassifiedError {
	var fallback *apierr.ClassifiedError

	for _, item := range apiErr.Items {
		switch item.ErrorType {
		case ErrorTypeRateLimit, ErrorTypeQuotaFilled:
			return &apierr.ClassifiedError{
				Kind:              apierr.KindRateLimited,
				Message:           item.Message,
				RetryAfterSeconds: apierr.WaitTime(item.Message),
			}
		case ErrorTypeSubredditNoExist, ErrorTypeSubredditNotAllowed:
			return &apierr.ClassifiedError{
				Kind:    apierr.KindNotFound,
				Message: item.Message,
			}
		default:
			if fallback == nil {
				fallback = &apierr.ClassifiedError{
					Kind:    apierr.KindTransient,
					Message: item.Message,
				}
			}
		}
	}

	if fallback != nil {
		return fallback
	}
	return &apierr.ClassifiedError{
		Kind:    apierr.KindTransient,
		Message: apiErr.Error(),
	}
}
