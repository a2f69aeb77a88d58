// Package apierr defines the typed error kinds shared by every platform
// fetcher and the orchestrator: not-found, forbidden, rate-limited, and
// validation failures. Anything else is treated as unexpected.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies an Error.
type Kind int

const (
	// KindNotFound means the target does not exist on the platform.
	KindNotFound Kind = iota
	// KindForbidden means the target exists but access is denied
	// (private, suspended, protected).
	KindForbidden
	// KindRateLimited means the platform or LLM provider refused the
	// request due to rate limiting.
	KindRateLimited
	// KindValidation means the request itself was malformed and no
	// network activity should be attempted.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate limited"
	case KindValidation:
		return "validation"
	}
	return "unknown"
}

// Error is a classified failure from a platform API or the LLM provider.
// ResetAt carries a best-effort rate-limit reset estimate when available.
type Error struct {
	Kind    Kind
	Message string
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a KindRateLimited error.
func RateLimited(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsRateLimited reports whether err is a rate-limit error.
func IsRateLimited(err error) bool { return IsKind(err, KindRateLimited) }

// IsFatalForTarget reports whether err is one of the typed kinds that are
// fatal for a single target (as opposed to an unexpected error).
func IsFatalForTarget(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// FromStatus classifies an HTTP status code for a platform request, or
// returns nil for statuses that are not one of the typed kinds.
func FromStatus(status int, platform, username string) error {
	switch status {
	case http.StatusNotFound:
		return NotFound("%s user %q not found", platform, username)
	case http.StatusForbidden:
		return Forbidden("access to %s user %q is forbidden", platform, username)
	case http.StatusUnauthorized:
		return Forbidden("%s rejected credentials for %q", platform, username)
	case http.StatusTooManyRequests:
		return RateLimited("%s API rate limit exceeded", platform)
	}
	return nil
}

// CheckRateHeaders inspects standard rate-limit response headers and
// returns a KindRateLimited error with a reset estimate when the quota is
// exhausted. GitHub signals rate limiting this way even on 403 responses.
func CheckRateHeaders(h http.Header, platform string) error {
	if remaining := h.Get("X-Ratelimit-Remaining"); remaining == "0" {
		e := RateLimited("%s API rate limit exceeded", platform)
		if reset := h.Get("X-Ratelimit-Reset"); reset != "" {
			if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
				e.ResetAt = time.Unix(secs, 0).UTC()
				e.Message = fmt.Sprintf("%s. Resets at %s", e.Message, e.ResetAt.Format(time.RFC3339))
			}
		}
		return e
	}
	if retry := h.Get("Retry-After"); retry != "" {
		if secs, err := strconv.ParseInt(retry, 10, 64); err == nil {
			e := RateLimited("%s API rate limit exceeded. Retry after %d seconds", platform, secs)
			e.ResetAt = time.Now().UTC().Add(time.Duration(secs) * time.Second)
			return e
		}
	}
	return nil
}
