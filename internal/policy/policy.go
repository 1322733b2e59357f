// Package policy holds the single decision table for the registry's access
// control.  Every rule couples the account role with the numeric biosafety
// clearance; handlers and services must go through these functions instead of
// branching on role or clearance inline.  All functions are pure: they take a
// Principal and resource attributes and return a Decision without touching
// the database.
package policy

import (
	"time"

	"github.com/microvault/strain-registry/internal/model"
)

// Principal is the per-request identity resolved from the store.  It is
// rebuilt on every request from the account's current row, never from claims
// embedded in a previously issued token, so role and clearance changes take
// effect immediately.
type Principal struct {
	ID        uint64
	Role      string
	Clearance int // biosafety clearance 1..4; 0 when none assigned
	Active    bool
}

// Reason identifies why a Decision denied an action.  The values are
// machine-readable and surface in 403/400 response bodies.
type Reason string

const (
	ReasonAccountDisabled       Reason = "account_disabled"
	ReasonInsufficientClearance Reason = "insufficient_clearance"
	ReasonRoleForbidden         Reason = "role_forbidden"
	ReasonNotOwner              Reason = "not_owner"
	ReasonSelfActionBlocked     Reason = "self_action_blocked"
	ReasonNotDeleted            Reason = "not_deleted"
	ReasonAlreadyInitialized    Reason = "already_initialized"
)

// Decision is the outcome of a policy evaluation.  For clearance denials,
// Required and Current carry the level comparison so responses can echo it
// back to the caller.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Required int
	Current  int
}

// Allow returns a permitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denying decision with the given reason.
func Deny(r Reason) Decision { return Decision{Reason: r} }

// DenyClearance denies with the level comparison attached.
func DenyClearance(required, current int) Decision {
	return Decision{Reason: ReasonInsufficientClearance, Required: required, Current: current}
}

// activeGate is the first rule of every evaluation: a disabled account can do
// nothing.  The principal resolver enforces this before handlers run, but the
// policy re-checks so synthetic principals cannot bypass it.
func activeGate(p Principal) (Decision, bool) {
	if !p.Active {
		return Deny(ReasonAccountDisabled), false
	}
	return Decision{}, true
}

// CanView decides whether the principal may see a strain at the given
// biosafety level.  Listing must apply the same comparison as a query filter;
// this function backs the single-record fetch, where an over-clearance record
// is reported as forbidden rather than not found.
func CanView(p Principal, level int) Decision {
	if d, ok := activeGate(p); !ok {
		return d
	}
	if level > p.Clearance {
		return DenyClearance(level, p.Clearance)
	}
	return Allow()
}

// CanCreate decides whether the principal may register a strain at the
// requested biosafety level.  Any active role may create, bounded by the
// principal's own clearance.
func CanCreate(p Principal, requestedLevel int) Decision {
	if d, ok := activeGate(p); !ok {
		return d
	}
	if requestedLevel > p.Clearance {
		return DenyClearance(requestedLevel, p.Clearance)
	}
	return Allow()
}

// CanMutate decides update/delete/restore rights over a strain owned by
// createdBy: technicians never mutate, researchers mutate only their own
// records, admins mutate anything.
func CanMutate(p Principal, createdBy uint64) Decision {
	if d, ok := activeGate(p); !ok {
		return d
	}
	switch p.Role {
	case model.RoleTechnician:
		return Deny(ReasonRoleForbidden)
	case model.RoleResearcher:
		if p.ID != createdBy {
			return Deny(ReasonNotOwner)
		}
		return Allow()
	case model.RoleAdmin:
		return Allow()
	}
	return Deny(ReasonRoleForbidden)
}

// CanChangeLevel guards a biosafety level change within an update.  It is
// evaluated in addition to CanMutate: even an owner or admin may not raise a
// record above their own clearance.
func CanChangeLevel(p Principal, newLevel int) Decision {
	if d, ok := activeGate(p); !ok {
		return d
	}
	if newLevel > p.Clearance {
		return DenyClearance(newLevel, p.Clearance)
	}
	return Allow()
}

// CanRestore decides whether a soft-deleted strain may be restored.  The
// role/ownership rules are those of CanMutate; additionally the record must
// actually be deleted.
func CanRestore(p Principal, createdBy uint64, deletedAt *time.Time) Decision {
	if d := CanMutate(p, createdBy); !d.Allowed {
		return d
	}
	if deletedAt == nil {
		return Deny(ReasonNotDeleted)
	}
	return Allow()
}

// CanProvisionAccount decides whether the principal may create accounts.
// Only admins provision; self-service registration is permanently disabled
// once the system is bootstrapped.
func CanProvisionAccount(p Principal) Decision {
	if d, ok := activeGate(p); !ok {
		return d
	}
	if p.Role != model.RoleAdmin {
		return Deny(ReasonRoleForbidden)
	}
	return Allow()
}

// CanDeleteAccount decides whether the principal may soft-delete the target
// account.  Admin only, and never their own account.
func CanDeleteAccount(p Principal, targetID uint64) Decision {
	if d, ok := activeGate(p); !ok {
		return d
	}
	if p.Role != model.RoleAdmin {
		return Deny(ReasonRoleForbidden)
	}
	if p.ID == targetID {
		return Deny(ReasonSelfActionBlocked)
	}
	return Allow()
}

// CanBootstrap decides whether the unauthenticated bootstrap-admin path is
// still open.  It is self-limiting: once any non-deleted admin exists the
// path closes for good.
func CanBootstrap(adminCount int) Decision {
	if adminCount > 0 {
		return Deny(ReasonAlreadyInitialized)
	}
	return Allow()
}
