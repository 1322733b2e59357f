// Package queue defines message payloads exchanged over the message broker.
package queue

// ContainmentAlert is published when a strain at or above the containment
// threshold (BSL-3) is created, updated, deleted or restored.  It carries
// enough information for downstream consumers to notify safety officers
// without querying the primary database.
type ContainmentAlert struct {
	StrainID       uint64 `json:"strain_id"`
	StrainCode     string `json:"strain_code"`
	BiosafetyLevel int    `json:"biosafety_level"`
	Action         string `json:"action"`
	ActorID        uint64 `json:"actor_id"`
	OccurredAt     string `json:"occurred_at"`
}
