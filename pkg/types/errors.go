// Standard errors for the Larder storage system.
// See docs/ARCHITECTURE.md § System Components.
package types

import "errors"

// Sentinel errors returned by the storage layer. Callers match them with
// errors.Is; the concrete error usually wraps the offending SQL or reason.
var (
	// ErrConnectionFailure indicates the database handle could not be
	// opened or has become unusable.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrNotOpen is returned by operations on a store that has not been
	// opened or has been closed.
	ErrNotOpen = errors.New("store is not open")

	// ErrInvalidSQL indicates a malformed statement.
	ErrInvalidSQL = errors.New("invalid SQL")

	// ErrConstraintViolation indicates a unique, foreign-key, or check
	// constraint rejected the statement.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrExecutionFailure is the generic statement-failure error.
	ErrExecutionFailure = errors.New("execution failure")

	// ErrInvalidData indicates a value could not be encoded to or decoded
	// from its storage representation.
	ErrInvalidData = errors.New("invalid data")

	// ErrTransactionNotActive is returned when a transaction-scoped
	// operation runs outside a transaction.
	ErrTransactionNotActive = errors.New("transaction not active")

	// ErrTransactionFailure indicates begin, commit, or rollback failed.
	ErrTransactionFailure = errors.New("transaction failure")

	// ErrMigrationFailure indicates a migration body or its ledger update
	// failed.
	ErrMigrationFailure = errors.New("migration failure")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation indicates a call that is not valid in the current
	// state, such as nesting transactions.
	ErrInvalidOperation = errors.New("invalid operation")
)
