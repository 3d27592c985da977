package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSourceUnavailable is returned when the capability source cannot be reached or prepared.
var ErrSourceUnavailable = errors.New("capability source unavailable")

// QuotaExceededError indicates the source rejected a request because its rate ceiling was hit.
type QuotaExceededError struct {
	RecordType RecordType
	Message    string
}

func (e *QuotaExceededError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("quota exceeded reading %s", e.RecordType)
	}
	return fmt.Sprintf("quota exceeded reading %s: %s", e.RecordType, e.Message)
}

// TransportError wraps a non-quota failure talking to the source.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: source responded with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsQuotaExceeded reports whether err, or anything it wraps, is a quota failure.
func IsQuotaExceeded(err error) bool {
	var quota *QuotaExceededError
	return errors.As(err, &quota)
}

// LooksLikeQuota classifies free-form source messages that signal rate limiting.
func LooksLikeQuota(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate-limit") ||
		strings.Contains(lower, "too many requests")
}
