package model

import (
	"encoding/json"
	"time"
)

// Audit actions written to the `audit_logs` table.  Every state-changing
// operation records exactly one of these.
const (
	ActionUserRegistered = "USER_REGISTERED"
	ActionUserLogin      = "USER_LOGIN"
	ActionUserCreated    = "USER_CREATED"
	ActionUserDeleted    = "USER_DELETED"
	ActionCreateStrain   = "CREATE_STRAIN"
	ActionUpdateStrain   = "UPDATE_STRAIN"
	ActionDeleteStrain   = "DELETE_STRAIN"
	ActionRestoreStrain  = "RESTORE_STRAIN"
)

// Resource type discriminators stored alongside audit events.
const (
	ResourceUser   = "user"
	ResourceStrain = "strain"
)

// AuditEvent is an append-only record of a state-changing action.  Details
// holds a JSON payload describing the relevant fields of the change.
type AuditEvent struct {
	ID           uint64          `json:"id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   uint64          `json:"resource_id"`
	ActorID      uint64          `json:"actor_id"`
	IPAddress    *string         `json:"ip_address,omitempty"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAuditEvent builds an event with the details payload marshalled to JSON.
// A nil details value is stored as an empty object.
func NewAuditEvent(action, resourceType string, resourceID, actorID uint64, details any) AuditEvent {
	body, err := json.Marshal(details)
	if err != nil || details == nil {
		body = []byte("{}")
	}
	return AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		Details:      body,
	}
}
