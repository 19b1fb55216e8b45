package model

import (
	"fmt"
	"time"
)

// FetchResult is a raw price/availability candidate produced by an adapter,
// before validation.
type FetchResult struct {
	PricePence int64
	Currency   string
	InStock    bool
	FetchedAt  time.Time
}

// FetchErrorKind classifies adapter failures for the retry policy.
type FetchErrorKind string

const (
	// NetworkError covers timeouts, DNS failures and 5xx responses. Retryable.
	NetworkError FetchErrorKind = "network"
	// ParseError means the page fetched but the selectors found no price.
	// Retryable a bounded number of times, then escalates via the breaker.
	ParseError FetchErrorKind = "parse"
	// BlockedError means an anti-bot challenge or 403/429. Not retried within
	// the cycle; the whole retailer is cooled down.
	BlockedError FetchErrorKind = "blocked"
)

// FetchError wraps an adapter failure with its retry classification.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}
