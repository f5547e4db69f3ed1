package domain

import "errors"

var (
	// ErrValidation marks missing or malformed input, detected before
	// any mutation.
	ErrValidation = errors.New("invalid input")

	// ErrNoFunds is returned when a user has no cashable gifts.
	ErrNoFunds = errors.New("no cashable gifts")

	// ErrNotFound is returned when a cashout request does not exist.
	ErrNotFound = errors.New("cashout not found")

	// ErrAlreadyProcessed is the concurrency guard: the request was not
	// in the state the operation requires. The losing caller of a
	// concurrent review receives this, never a crash.
	ErrAlreadyProcessed = errors.New("cashout already processed")

	// ErrInexactRate is returned when the configured conversion rate
	// does not divide a coin total into a whole number of kobo.
	ErrInexactRate = errors.New("conversion is not exact at configured rate")

	// ErrPayoutFailed wraps a gateway failure after gifts have been
	// marked cashed. The request is parked in failed for manual review.
	ErrPayoutFailed = errors.New("payout failed")
)
