package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/microvault/strain-registry/internal/model"
)

const userColumns = "id, email, password_hash, full_name, role, biosafety_clearance, lab_affiliation, created_at, deleted_at"

// UserRepo encapsulates all database queries against the `users` table.
type UserRepo struct {
	db    *sql.DB
	audit *AuditRepo
}

// NewUserRepo constructs a UserRepo.  The audit repo is required: every
// account mutation writes its audit event in the same transaction.
func NewUserRepo(db *sql.DB, audit *AuditRepo) *UserRepo {
	return &UserRepo{db: db, audit: audit}
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.BiosafetyClearance, &u.LabAffiliation, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID fetches an account by id regardless of its soft-delete state.  The
// principal resolver needs the deleted_at value to distinguish a disabled
// account from a missing one.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByEmail fetches an active account by normalized email.  Soft-deleted
// rows are invisible here: their emails may have been reused.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND deleted_at IS NULL LIMIT 1", email))
}

// CountActiveAdmins returns the number of non-deleted admin accounts.  The
// bootstrap registration path stays open only while this is zero.
func (r *UserRepo) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role=? AND deleted_at IS NULL", model.RoleAdmin).Scan(&n)
	return n, err
}

// Create inserts an account and its audit event in one transaction.  The
// caller supplies an already-hashed password.  The event's resource id is
// filled in with the new row id before the write.  On success u.ID and
// u.CreatedAt are populated.
func (r *UserRepo) Create(ctx context.Context, u *model.User, ev model.AuditEvent) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, role, biosafety_clearance, lab_affiliation)
		 VALUES (?,?,?,?,?,?)`,
		u.Email, u.PasswordHash, u.FullName, u.Role, u.BiosafetyClearance, u.LabAffiliation)
	if err != nil {
		if isDuplicate(err) {
			err = ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)

	if err = tx.QueryRowContext(ctx,
		"SELECT created_at FROM users WHERE id=?", u.ID).Scan(&u.CreatedAt); err != nil {
		return err
	}

	ev.ResourceID = u.ID
	if ev.ActorID == 0 {
		ev.ActorID = u.ID // bootstrap: the new account is its own actor
	}
	if err = r.audit.Insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateBootstrapAdmin inserts the first admin account.  The no-admin
// precondition is part of the INSERT itself (INSERT ... SELECT ... WHERE NOT
// EXISTS), so two concurrent bootstrap requests cannot both pass a separate
// count check; the loser's insert touches zero rows and maps to
// ErrAdminExists.  The audit event commits in the same transaction.
func (r *UserRepo) CreateBootstrapAdmin(ctx context.Context, u *model.User, ev model.AuditEvent) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, role, biosafety_clearance, lab_affiliation)
		 SELECT ?,?,?,?,?,? FROM DUAL
		 WHERE NOT EXISTS (SELECT 1 FROM users WHERE role = ? AND deleted_at IS NULL)`,
		u.Email, u.PasswordHash, u.FullName, u.Role, u.BiosafetyClearance, u.LabAffiliation,
		model.RoleAdmin)
	if err != nil {
		if isDuplicate(err) {
			err = ErrEmailExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrAdminExists
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)

	if err = tx.QueryRowContext(ctx,
		"SELECT created_at FROM users WHERE id=?", u.ID).Scan(&u.CreatedAt); err != nil {
		return err
	}

	ev.ResourceID = u.ID
	ev.ActorID = u.ID
	if err = r.audit.Insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// SoftDelete marks an active account as deleted and records the audit event
// in the same transaction.  Returns ErrUserNotFound when the account is
// absent or already deleted.
func (r *UserRepo) SoftDelete(ctx context.Context, id uint64, ev model.AuditEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET deleted_at = NOW() WHERE id=? AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrUserNotFound
		return err
	}

	if err = r.audit.Insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}
