package client

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

// Common errors returned by the client.
var (
	// ErrPageUnavailable is matched by every error FetchPage returns. Callers
	// scanning many pages should skip the page and continue.
	ErrPageUnavailable = errors.New("leaderboard page unavailable")

	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = fmt.Errorf("%w: page must be >= 1", ErrPageUnavailable)

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents 2xx responses whose body is unusable.
	ErrorClassMalformed ErrorClass = "malformed"
)

// PageError describes why one page could not be fetched.
type PageError struct {
	Timeframe  leaderboard.Timeframe
	Page       int
	StatusCode int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("leaderboard %s page %d: %s error (status %d): %v",
			e.Timeframe, e.Page, e.ErrorClass, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("leaderboard %s page %d: %s error: %v",
		e.Timeframe, e.Page, e.ErrorClass, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// Is makes every PageError match ErrPageUnavailable.
func (e *PageError) Is(target error) bool {
	return target == ErrPageUnavailable
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx and unusable bodies will not improve on retry
		return false
	}
}

// classifyStatus maps a non-2xx HTTP status to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}
