package repository

import (
	"context"
	"database/sql"

	"github.com/microvault/strain-registry/internal/model"
)

// AuditRepo appends events to the `audit_logs` table.  The table is
// append-only; there are no update or delete methods on purpose.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert writes a single audit event using the supplied handle, which may be
// a transaction.  Mutating repository methods call this inside the same
// transaction as the row change, so a failed audit write rolls the whole
// operation back.
func (r *AuditRepo) Insert(ctx context.Context, q DBTX, ev model.AuditEvent) error {
	if q == nil {
		q = r.DB
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_logs (action, resource_type, resource_id, actor_id, ip_address, details)
		 VALUES (?,?,?,?,?,?)`,
		ev.Action, ev.ResourceType, ev.ResourceID, ev.ActorID, ev.IPAddress, []byte(ev.Details))
	return err
}

// Record writes an event outside any transaction.  Used for events with no
// co-located row mutation, such as logins; failures still fail the request.
func (r *AuditRepo) Record(ctx context.Context, ev model.AuditEvent) error {
	return r.Insert(ctx, r.DB, ev)
}
