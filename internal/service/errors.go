// Package service orchestrates registry operations: every state-changing
// call runs resolve → policy check → store mutation (with its audit event in
// the same transaction) → response.  Handlers translate the errors defined
// here into HTTP statuses.
package service

import (
	"errors"

	"github.com/microvault/strain-registry/internal/policy"
)

// ErrNotFound is returned when the target record is absent or soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials is returned on login failure.  Unknown email and
// wrong password produce this same error so responses cannot be used as an
// account enumeration oracle.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNoFieldsToUpdate is returned when an update request changes nothing.
var ErrNoFieldsToUpdate = errors.New("no fields to update")

// DenyError wraps a policy denial.  Handlers map the reason to a status code
// and echo the machine-readable reason in the body.
type DenyError struct {
	Decision policy.Decision
}

func (e *DenyError) Error() string { return "forbidden: " + string(e.Decision.Reason) }

// Denied wraps a denying decision into an error.
func Denied(d policy.Decision) error { return &DenyError{Decision: d} }

// AsDeny unwraps a DenyError if err carries one.
func AsDeny(err error) (*DenyError, bool) {
	var de *DenyError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
