package model

import "time"

type ValidationStatus string

const (
	StatusAccepted ValidationStatus = "accepted"
	StatusRejected ValidationStatus = "rejected"
)

// ReasonKind names a validation rule outcome. Reject reasons and
// non-blocking flags share the namespace so both end up auditable.
type ReasonKind string

const (
	BelowCategoryRange          ReasonKind = "BelowCategoryRange"
	AboveCategoryRange          ReasonKind = "AboveCategoryRange"
	SuspectedPromotionalContent ReasonKind = "SuspectedPromotionalContent"
	AnomalousDrop               ReasonKind = "AnomalousDrop"

	// Flags: recorded on accepted observations, never block.
	CrossRetailerOutlier ReasonKind = "CrossRetailerOutlier"
	LargeRise            ReasonKind = "LargeRise"
	OutsideTypicalRange  ReasonKind = "OutsideTypicalRange"
)

// ValidationResult is the validator's decision for one FetchResult.
type ValidationResult struct {
	Accepted bool
	Reason   ReasonKind
	Flags    []ReasonKind
}

// PriceObservation is one price/availability reading for a target.
// Append-only; rejected observations are persisted too.
type PriceObservation struct {
	ID           string
	ProductID    string
	RetailerID   string
	PricePence   int64
	Currency     string
	InStock      bool
	ObservedAt   time.Time
	RawURL       string
	Status       ValidationStatus
	RejectReason ReasonKind
	Flags        []ReasonKind
}

type AttemptStatus string

const (
	AttemptSuccess     AttemptStatus = "success"
	AttemptError       AttemptStatus = "error"
	AttemptNotFound    AttemptStatus = "not_found"
	AttemptRejected    AttemptStatus = "rejected"
	AttemptCircuitOpen AttemptStatus = "circuit_open"
	AttemptCooldown    AttemptStatus = "cooldown"
)

// ScrapeAttempt is the diagnostic record behind success-rate monitoring and
// the circuit breaker.
type ScrapeAttempt struct {
	ID             string
	RetailerID     string
	ProductID      string
	Status         AttemptStatus
	ErrorDetail    string
	ResponseTimeMs int64
	AttemptedAt    time.Time
}
