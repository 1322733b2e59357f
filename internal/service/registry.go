package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/microvault/strain-registry/internal/model"
	"github.com/microvault/strain-registry/internal/policy"
	"github.com/microvault/strain-registry/internal/queue"
	"github.com/microvault/strain-registry/internal/repository"
)

// containmentThreshold is the biosafety level at and above which mutations
// emit a best-effort containment alert on the message broker.
const containmentThreshold = 3

// StrainStore is the persistence surface the registry needs.  Mutating
// methods take the audit event so the store can write it atomically with the
// row change; implementations must fail the call when the event cannot be
// written.
type StrainStore interface {
	Search(ctx context.Context, q repository.StrainSearchQuery) ([]model.Strain, int64, error)
	GetByID(ctx context.Context, id uint64, includeDeleted bool) (*model.Strain, error)
	Insert(ctx context.Context, s *model.Strain, ev model.AuditEvent) error
	Update(ctx context.Context, id uint64, upd repository.StrainUpdate, ev model.AuditEvent) (*model.Strain, error)
	SetDeleted(ctx context.Context, id uint64, deleted bool, ev model.AuditEvent) error
}

// AlertPublisher publishes a containment alert.  Failures are logged and
// ignored; alerts are advisory and never part of the request result.
type AlertPublisher func(ctx context.Context, ev queue.ContainmentAlert) error

// StrainRegistry implements the strain operations of the registry.
type StrainRegistry struct {
	strains StrainStore
	alerts  AlertPublisher // may be nil when no broker is configured
}

func NewStrainRegistry(strains StrainStore, alerts AlertPublisher) *StrainRegistry {
	return &StrainRegistry{strains: strains, alerts: alerts}
}

// List returns the strains visible to the principal.  The caller's clearance
// is applied as a hard store-level filter regardless of what the query asks
// for; excluded rows never appear in any page or in the total count.
func (r *StrainRegistry) List(ctx context.Context, p policy.Principal, q repository.StrainSearchQuery) ([]model.Strain, int64, error) {
	if d, err := r.gate(p); err != nil {
		return nil, 0, Denied(d)
	}
	q.MaxClearance = p.Clearance
	return r.strains.Search(ctx, q)
}

// Get fetches a single active strain.  A record above the principal's
// clearance is reported as forbidden, distinguishable from not found, but
// only when it actually exists and is not deleted.
func (r *StrainRegistry) Get(ctx context.Context, p policy.Principal, id uint64) (*model.Strain, error) {
	s, err := r.strains.GetByID(ctx, id, false)
	if err != nil {
		return nil, mapStrainErr(err)
	}
	if d := policy.CanView(p, s.BiosafetyLevel); !d.Allowed {
		return nil, Denied(d)
	}
	return s, nil
}

// Create registers a new strain owned by the principal.  The requested
// biosafety level defaults to 1 and may not exceed the principal's
// clearance.  No audit event is written on a denial.
func (r *StrainRegistry) Create(ctx context.Context, p policy.Principal, s *model.Strain) error {
	if s.BiosafetyLevel == 0 {
		s.BiosafetyLevel = 1
	}
	if d := policy.CanCreate(p, s.BiosafetyLevel); !d.Allowed {
		return Denied(d)
	}
	s.CreatedBy = p.ID

	ev := model.NewAuditEvent(model.ActionCreateStrain, model.ResourceStrain, 0, p.ID, map[string]any{
		"strain_code":     s.StrainCode,
		"biosafety_level": s.BiosafetyLevel,
	})
	if err := r.strains.Insert(ctx, s, ev); err != nil {
		return err
	}
	r.publishAlert(ctx, model.ActionCreateStrain, s, p)
	return nil
}

// Update applies a partial update to an active strain.  Only fields present
// in upd change; a biosafety level change is additionally bounded by the
// principal's clearance, independent of the ownership check.
func (r *StrainRegistry) Update(ctx context.Context, p policy.Principal, id uint64, upd repository.StrainUpdate) (*model.Strain, error) {
	if upd.Empty() {
		return nil, ErrNoFieldsToUpdate
	}
	s, err := r.strains.GetByID(ctx, id, false)
	if err != nil {
		return nil, mapStrainErr(err)
	}
	if d := policy.CanMutate(p, s.CreatedBy); !d.Allowed {
		return nil, Denied(d)
	}
	if upd.BiosafetyLevel != nil {
		if d := policy.CanChangeLevel(p, *upd.BiosafetyLevel); !d.Allowed {
			return nil, Denied(d)
		}
	}

	ev := model.NewAuditEvent(model.ActionUpdateStrain, model.ResourceStrain, id, p.ID, upd)
	updated, err := r.strains.Update(ctx, id, upd, ev)
	if err != nil {
		return nil, mapStrainErr(err)
	}
	r.publishAlert(ctx, model.ActionUpdateStrain, updated, p)
	return updated, nil
}

// Delete soft-deletes an active strain.
func (r *StrainRegistry) Delete(ctx context.Context, p policy.Principal, id uint64) error {
	s, err := r.strains.GetByID(ctx, id, false)
	if err != nil {
		return mapStrainErr(err)
	}
	if d := policy.CanMutate(p, s.CreatedBy); !d.Allowed {
		return Denied(d)
	}

	ev := model.NewAuditEvent(model.ActionDeleteStrain, model.ResourceStrain, id, p.ID, map[string]any{
		"strain_code": s.StrainCode,
	})
	if err := r.strains.SetDeleted(ctx, id, true, ev); err != nil {
		return mapStrainErr(err)
	}
	r.publishAlert(ctx, model.ActionDeleteStrain, s, p)
	return nil
}

// Restore brings a soft-deleted strain back.  Restoring an already-active
// record is rejected without touching the store.
func (r *StrainRegistry) Restore(ctx context.Context, p policy.Principal, id uint64) (*model.Strain, error) {
	s, err := r.strains.GetByID(ctx, id, true)
	if err != nil {
		return nil, mapStrainErr(err)
	}
	if d := policy.CanRestore(p, s.CreatedBy, s.DeletedAt); !d.Allowed {
		return nil, Denied(d)
	}

	ev := model.NewAuditEvent(model.ActionRestoreStrain, model.ResourceStrain, id, p.ID, map[string]any{
		"strain_code": s.StrainCode,
	})
	if err := r.strains.SetDeleted(ctx, id, false, ev); err != nil {
		return nil, mapStrainErr(err)
	}
	s.DeletedAt = nil
	r.publishAlert(ctx, model.ActionRestoreStrain, s, p)
	return s, nil
}

// gate re-checks the account-active rule; the principal resolver already
// enforces it, this keeps the service safe against callers that build
// principals by hand.
func (r *StrainRegistry) gate(p policy.Principal) (policy.Decision, error) {
	if !p.Active {
		return policy.Deny(policy.ReasonAccountDisabled), errors.New("account disabled")
	}
	return policy.Allow(), nil
}

func (r *StrainRegistry) publishAlert(ctx context.Context, action string, s *model.Strain, p policy.Principal) {
	if r.alerts == nil || s.BiosafetyLevel < containmentThreshold {
		return
	}
	ev := queue.ContainmentAlert{
		StrainID:       s.ID,
		StrainCode:     s.StrainCode,
		BiosafetyLevel: s.BiosafetyLevel,
		Action:         action,
		ActorID:        p.ID,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.alerts(ctx, ev); err != nil {
		log.Printf("containment alert publish failed for strain %d: %v", s.ID, err)
	}
}

func mapStrainErr(err error) error {
	if errors.Is(err, repository.ErrStrainNotFound) {
		return ErrNotFound
	}
	return err
}
