package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnresolvedIdentity means no business matched the identity hints.
	ErrUnresolvedIdentity = errors.New("business not found")
	// ErrDuplicateReview means the review already exists.
	ErrDuplicateReview = errors.New("duplicate review")
	// ErrPersistence wraps single-record write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrConfiguration marks missing or malformed configuration that was replaced by defaults.
	ErrConfiguration = errors.New("configuration failure")
	// ErrNotFound is returned by lookups with no result.
	ErrNotFound = errors.New("not found")
	// ErrNoJobAvailable is returned by Claim when nothing is claimable.
	ErrNoJobAvailable = errors.New("no job available")
)

// SourceError is a failure reported by the scrape provider.
type SourceError struct {
	PlaceID    string
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s: status %d: %v", e.PlaceID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.PlaceID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient (network, timeout, 429, 5xx).
func (e *SourceError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsTransient reports whether err is a retryable scrape failure.
func IsTransient(err error) bool {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Retryable()
	}
	return false
}
