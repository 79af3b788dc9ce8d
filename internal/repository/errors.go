package repository

import "errors"

// Sentinel errors surfaced by conditional writes. Services map these onto the
// HTTP-aware error taxonomy.
var (
	// ErrStaleAppend means the ledger append's from_status no longer matched
	// the grievance's current state: a concurrent transition won.
	ErrStaleAppend = errors.New("stale ledger append")

	// ErrTicketCodeTaken means the generated ticket code collided with an
	// existing grievance.
	ErrTicketCodeTaken = errors.New("ticket code already taken")
)
