package search

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the search client.
var (
	// ErrQueryMissing is returned when a search is requested without a query.
	ErrQueryMissing = errors.New("no query specified")

	// ErrInvalidPage is returned when a page number below 1 is requested.
	ErrInvalidPage = errors.New("page number must be at least 1")

	// ErrQuotaExceeded is returned when the API answers 429 Too Many Requests.
	ErrQuotaExceeded = errors.New("API quota exceeded")

	// ErrMalformedResponse is returned when the first page of a run lacks last_page.
	ErrMalformedResponse = errors.New("malformed search response")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ClassRateLimit represents 429 quota responses.
	ClassRateLimit ErrorClass = "rate_limit"

	// ClassClient represents other 4xx responses.
	ClassClient ErrorClass = "client"

	// ClassServer represents 5xx responses.
	ClassServer ErrorClass = "server"

	// ClassNetwork represents transport failures (dial, proxy, timeout).
	ClassNetwork ErrorClass = "network"

	// ClassDecode represents unreadable or incomplete response bodies.
	ClassDecode ErrorClass = "decode"
)

// Error is a failed search request with its classification.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("search %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or "" when err is not a search error.
func ClassOf(err error) ErrorClass {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return ""
}

// IsQuotaExceeded reports whether err signals an exhausted API quota.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ClassRateLimit
	case code >= 400 && code < 500:
		return ClassClient
	case code >= 500:
		return ClassServer
	default:
		// 1xx/3xx that survived redirect handling are unexpected answers
		return ClassClient
	}
}
