/*
errors.go - Error taxonomy for the sync engine

PURPOSE:
  Separates the two failure classes the engine deals with:

  1. Per-account errors (AuthError/FetchError from the upstream client):
     expected, transient, recorded in the pass results, never abort the
     other accounts.
  2. Fatal errors (storage failures, no accounts configured): indicate a
     systemic problem and abort the whole job invocation as a single
     top-level failure.

  Storage failures are wrapped in StorageError at the call site so the
  orchestration loop can tell them apart with errors.As.

USAGE:
  if engine.IsStorageError(err) { abort the job }

SEE ALSO:
  - linisco/errors.go: The per-account error types
  - engine.go: Classification in the account loop
*/
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAccounts is returned when no vendor accounts are configured.
	ErrNoAccounts = errors.New("no accounts configured")

	// ErrInvalidDateRange is returned when an operator-supplied range
	// has fromDate after toDate. Rejected before any network call.
	ErrInvalidDateRange = errors.New("invalid date range: fromDate after toDate")
)

// StorageError wraps a persistence failure. Fatal to the job invocation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
