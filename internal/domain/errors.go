package domain

import "errors"

// Error taxonomy for marketplace operations. Services return these sentinels
// (usually wrapped with operation context) and the HTTP layer maps them to
// status codes with errors.Is.
var (
	// ErrValidation indicates malformed or out-of-range input: empty name or
	// metadata ref, non-positive price, fee above cap, payment that does not
	// match the listing price, or a seller trying to buy their own listing.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates the caller lacks the required relationship to
	// the entity (not the seller, buyer, or owner for the operation).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState indicates the operation is not valid for the entity's
	// current lifecycle stage: listing not active, escrow already settled,
	// delivery already marked, receipt already confirmed, not disputed.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict indicates a uniqueness violation, e.g. an agent name that is
	// already bound to a different address.
	ErrConflict = errors.New("conflict")

	// ErrTransfer indicates a fund movement failed. It is fatal to the
	// triggering operation: all bookkeeping mutations are rolled back and the
	// core never retries.
	ErrTransfer = errors.New("transfer failed")

	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
