package errs

import (
	"errors"
	"fmt"
	"time"
)

// TransientNetworkError covers transport failures, timeouts and 5xx responses. Retryable.
type TransientNetworkError struct {
	Platform   string
	StatusCode int
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient error (status %d): %v", e.Platform, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient error: %v", e.Platform, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// PlatformRejectedContentError is a 4xx or a validation failure reported by the platform.
// Retried up to the task's attempt limit; the body ends up in the record's error message.
type PlatformRejectedContentError struct {
	Platform       string
	StatusCode     int
	Body           string
	RetryAfterHint time.Duration
}

func (e *PlatformRejectedContentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: rejected (status %d): %s", e.Platform, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: rejected: %s", e.Platform, e.Body)
}

// RetryAfter reports the platform's requested wait, zero when none was sent.
func (e *PlatformRejectedContentError) RetryAfter() time.Duration { return e.RetryAfterHint }

// TokenExpiredError means the account can no longer be authenticated. Never retried.
type TokenExpiredError struct {
	Platform  string
	AccountID int64
	Reason    string
	Err       error
}

func (e *TokenExpiredError) Error() string {
	msg := fmt.Sprintf("%s: token expired for account %d: %s", e.Platform, e.AccountID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenExpiredError) Unwrap() error { return e.Err }

// ProcessingTimeoutError is raised when uploaded media never became ready within the poll bound.
type ProcessingTimeoutError struct {
	Platform   string
	Attempts   int
	LastStatus string
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("%s: media processing timed out after %d polls (last status %q)", e.Platform, e.Attempts, e.LastStatus)
}

// MediaProcessingFailedError is an explicit "failed" status from the platform's processing pipeline.
type MediaProcessingFailedError struct {
	Platform string
	Status   string
	Reason   string
}

func (e *MediaProcessingFailedError) Error() string {
	return fmt.Sprintf("%s: media processing failed (status %q): %s", e.Platform, e.Status, e.Reason)
}

// MetricsFetchError wraps any failure of a metrics refresh. Logged and swallowed.
type MetricsFetchError struct {
	Platform string
	PostID   string
	Err      error
}

func (e *MetricsFetchError) Error() string {
	return fmt.Sprintf("%s: fetch metrics for %s: %v", e.Platform, e.PostID, e.Err)
}

func (e *MetricsFetchError) Unwrap() error { return e.Err }

// IsNonRetryable reports whether err must end the task without further attempts.
func IsNonRetryable(err error) bool {
	var expired *TokenExpiredError
	return errors.As(err, &expired)
}

// IsTransient reports whether err is a network-level failure.
func IsTransient(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}
