package service

import (
	"context"
	"errors"

	"github.com/microvault/strain-registry/internal/model"
	"github.com/microvault/strain-registry/internal/policy"
	"github.com/microvault/strain-registry/internal/repository"
	"github.com/microvault/strain-registry/internal/utils"
)

// AccountStore is the persistence surface for account operations.  Like
// StrainStore, mutating methods carry the audit event into the store so it
// commits with the row change.
type AccountStore interface {
	Create(ctx context.Context, u *model.User, ev model.AuditEvent) error
	CreateBootstrapAdmin(ctx context.Context, u *model.User, ev model.AuditEvent) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	SoftDelete(ctx context.Context, id uint64, ev model.AuditEvent) error
}

// LoginAuditor records events that have no co-located row mutation.
type LoginAuditor interface {
	Record(ctx context.Context, ev model.AuditEvent) error
}

// NewAccountInput carries the fields for a provisioned account.  The
// password arrives in the clear and is hashed here; handlers have already
// checked shape and strength.
type NewAccountInput struct {
	Email          string
	Password       string
	FullName       string
	Role           string
	Clearance      *int
	LabAffiliation *string
}

// Accounts implements bootstrap, provisioning, login and account removal.
type Accounts struct {
	users      AccountStore
	audit      LoginAuditor
	bcryptCost int
}

func NewAccounts(users AccountStore, audit LoginAuditor, bcryptCost int) *Accounts {
	return &Accounts{users: users, audit: audit, bcryptCost: bcryptCost}
}

// Bootstrap creates the first admin account.  The path is unauthenticated
// but self-limiting: it closes permanently once any non-deleted admin
// exists.  The bootstrap admin always gets clearance 4.
//
// The count check gives the common case a deny before any hashing work; the
// race between two concurrent bootstraps is closed by the store, whose
// guarded insert re-checks the no-admin precondition atomically.
func (a *Accounts) Bootstrap(ctx context.Context, in NewAccountInput) (*model.User, error) {
	n, err := a.users.CountActiveAdmins(ctx)
	if err != nil {
		return nil, err
	}
	if d := policy.CanBootstrap(n); !d.Allowed {
		return nil, Denied(d)
	}

	clearance := model.ClearanceMax
	u := &model.User{
		Email:              in.Email,
		FullName:           in.FullName,
		Role:               model.RoleAdmin,
		BiosafetyClearance: &clearance,
		LabAffiliation:     in.LabAffiliation,
	}
	if u.PasswordHash, err = utils.HashPassword(in.Password, a.bcryptCost); err != nil {
		return nil, err
	}

	ev := model.NewAuditEvent(model.ActionUserRegistered, model.ResourceUser, 0, 0, map[string]any{
		"email": in.Email,
		"role":  model.RoleAdmin,
	})
	if err := a.users.CreateBootstrapAdmin(ctx, u, ev); err != nil {
		if errors.Is(err, repository.ErrAdminExists) {
			return nil, Denied(policy.Deny(policy.ReasonAlreadyInitialized))
		}
		return nil, err
	}
	return u, nil
}

// CreateUser provisions an account of any role on behalf of an admin
// principal.
func (a *Accounts) CreateUser(ctx context.Context, p policy.Principal, in NewAccountInput) (*model.User, error) {
	if d := policy.CanProvisionAccount(p); !d.Allowed {
		return nil, Denied(d)
	}

	u := &model.User{
		Email:              in.Email,
		FullName:           in.FullName,
		Role:               in.Role,
		BiosafetyClearance: in.Clearance,
		LabAffiliation:     in.LabAffiliation,
	}
	var err error
	if u.PasswordHash, err = utils.HashPassword(in.Password, a.bcryptCost); err != nil {
		return nil, err
	}

	ev := model.NewAuditEvent(model.ActionUserCreated, model.ResourceUser, 0, p.ID, map[string]any{
		"email": in.Email,
		"role":  in.Role,
	})
	if err := a.users.Create(ctx, u, ev); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials against the active account with the given
// email.  Unknown email and wrong password are indistinguishable to the
// caller.  The USER_LOGIN audit event is fail-loud: if it cannot be written
// the login is reported as failed.
func (a *Accounts) Login(ctx context.Context, email, password, ip string) (*model.User, error) {
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	ev := model.NewAuditEvent(model.ActionUserLogin, model.ResourceUser, u.ID, u.ID, map[string]any{
		"email": u.Email,
	})
	if ip != "" {
		ev.IPAddress = &ip
	}
	if err := a.audit.Record(ctx, ev); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser soft-deletes the target account.  Admin only; an admin may not
// delete their own account.
func (a *Accounts) DeleteUser(ctx context.Context, p policy.Principal, targetID uint64) error {
	if d := policy.CanDeleteAccount(p, targetID); !d.Allowed {
		return Denied(d)
	}

	ev := model.NewAuditEvent(model.ActionUserDeleted, model.ResourceUser, targetID, p.ID, nil)
	if err := a.users.SoftDelete(ctx, targetID, ev); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
