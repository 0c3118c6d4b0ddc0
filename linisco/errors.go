/*
errors.go - Typed upstream failures

Both error types are per-account and per-pass: a failed login or fetch
terminates that account's sync pass and is recorded in the pass results,
never aborting the other accounts.
*/
package linisco

import (
	"errors"
	"fmt"

	"github.com/h4srl/salesync/pos"
)

// AuthError means the credential/token exchange failed for one account.
type AuthError struct {
	Email  string
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("login failed for %s (status %d): %s", e.Email, e.Status, e.Reason)
	}
	return fmt.Sprintf("login failed for %s: %s", e.Email, e.Reason)
}

// FetchError means the upstream returned non-success or a malformed
// payload for one entity type.
type FetchError struct {
	Entity pos.EntityType
	Email  string
	Status int
	Reason string
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed for %s (status %d): %s", e.Entity, e.Email, e.Status, e.Reason)
	}
	return fmt.Sprintf("fetch %s failed for %s: %s", e.Entity, e.Email, e.Reason)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}
