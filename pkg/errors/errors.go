package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

var (
	// ErrSessionInvalid means the platform definitively rejected the cookies
	ErrSessionInvalid = stderrors.New("session invalid")
	// ErrSessionIndeterminate means validity could not be established
	ErrSessionIndeterminate = stderrors.New("session validity indeterminate")
	// ErrNoCredentials means the vault holds no cookies for the platform
	ErrNoCredentials = stderrors.New("no credentials configured")
	// ErrVaultDecrypt means a stored credential blob could not be opened
	ErrVaultDecrypt = stderrors.New("credential decrypt failed")
	// ErrJobBusy means another job already holds the platform lock
	ErrJobBusy = stderrors.New("job already running")
)

// Error represents an API error with type information
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatus classifies a non-2xx response. It returns nil for success codes.
func FromStatus(code int, header http.Header) *Error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		return &Error{
			Type:       ErrorTypeRateLimit,
			Message:    "rate limit exceeded",
			Code:       code,
			RetryAfter: ParseRetryAfter(header.Get("Retry-After"), time.Now()),
		}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &Error{Type: ErrorTypeAuth, Message: "authentication rejected", Code: code}
	case code == http.StatusNotFound:
		return &Error{Type: ErrorTypeNotFound, Message: "resource not found", Code: code}
	case code >= 500:
		return &Error{Type: ErrorTypeServerError, Message: "server error", Code: code}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: "unexpected status", Code: code}
	}
}

// ParseRetryAfter reads either delay-seconds or an HTTP date. Unparseable or
// past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// Stage names the pipeline step a failure came from
type Stage string

const (
	StageVault       Stage = "vault"
	StageValidation  Stage = "validation"
	StageSync        Stage = "sync"
	StageScrape      Stage = "scrape"
	StagePersistence Stage = "persistence"
)

// StageError tags a failure with the stage and, when relevant, the target
// account or group it happened on.
type StageError struct {
	Stage  Stage
	Target string
	Err    error
}

func (e *StageError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Target, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err with a stage. A nil err stays nil.
func AtStage(stage Stage, target string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Target: target, Err: err}
}

// StageOf returns the outermost stage recorded on err
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if stderrors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
