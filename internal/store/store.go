// Package store holds the account persistence implementations. Both enforce
// the same contract: between LoadForUpdate and Commit on one account no other
// transition may interleave observably. Commit is all-or-nothing and fails
// with ErrConflict when the account moved since the load, in which case the
// caller reloads and re-runs its transition.
package store

import "errors"

// Global error declarations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrConflict        = errors.New("account modified since load")
)
