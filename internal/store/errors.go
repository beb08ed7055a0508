package store

import "fmt"

// ValidationError reports malformed or out-of-range input, naming the
// offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a referenced id that does not resolve.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientStockError reports a requested quantity exceeding available
// stock for a named product.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

// SequenceExhaustedError reports invoice-sequence overflow for a period
// (more than 9999 sales in one calendar month).
type SequenceExhaustedError struct {
	Period string
}

func (e *SequenceExhaustedError) Error() string {
	return fmt.Sprintf("invoice sequence exhausted for period %s", e.Period)
}

// TransactionConflictError reports storage-layer contention. The operation
// committed nothing and may be retried.
type TransactionConflictError struct {
	Err error
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("transaction conflict: %v", e.Err)
}

func (e *TransactionConflictError) Unwrap() error { return e.Err }

// StorageUnavailableError reports a connectivity failure. Fatal to the
// current request; not retried automatically.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }
