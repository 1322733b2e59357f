package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microvault/strain-registry/internal/model"
	"github.com/microvault/strain-registry/internal/policy"
	"github.com/microvault/strain-registry/internal/queue"
	"github.com/microvault/strain-registry/internal/repository"
)

// fakeStrainStore mimics the MySQL repo in memory, including the audit
// contract: the event commits together with the mutation, and an audit
// failure aborts the mutation entirely.
type fakeStrainStore struct {
	seq       uint64
	strains   map[uint64]*model.Strain
	events    []model.AuditEvent
	failAudit bool
}

func newFakeStrainStore() *fakeStrainStore {
	return &fakeStrainStore{strains: map[uint64]*model.Strain{}}
}

func (f *fakeStrainStore) record(ev model.AuditEvent) error {
	if f.failAudit {
		return errAuditDown
	}
	f.events = append(f.events, ev)
	return nil
}

var errAuditDown = &auditDownError{}

type auditDownError struct{}

func (*auditDownError) Error() string { return "audit log unavailable" }

func (f *fakeStrainStore) Search(_ context.Context, q repository.StrainSearchQuery) ([]model.Strain, int64, error) {
	var out []model.Strain
	for _, s := range f.strains {
		if s.Deleted() || s.BiosafetyLevel > q.MaxClearance {
			continue
		}
		if q.Genus != "" && s.Genus != q.Genus {
			continue
		}
		if q.BiosafetyLevel != 0 && s.BiosafetyLevel != q.BiosafetyLevel {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStrainStore) GetByID(_ context.Context, id uint64, includeDeleted bool) (*model.Strain, error) {
	s, ok := f.strains[id]
	if !ok || (!includeDeleted && s.Deleted()) {
		return nil, repository.ErrStrainNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStrainStore) Insert(_ context.Context, s *model.Strain, ev model.AuditEvent) error {
	for _, existing := range f.strains {
		if !existing.Deleted() && existing.StrainCode == s.StrainCode {
			return repository.ErrStrainCodeExists
		}
	}
	if f.failAudit {
		return errAuditDown // nothing committed
	}
	f.seq++
	s.ID = f.seq
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	f.strains[s.ID] = &cp
	ev.ResourceID = s.ID
	return f.record(ev)
}

func (f *fakeStrainStore) Update(_ context.Context, id uint64, upd repository.StrainUpdate, ev model.AuditEvent) (*model.Strain, error) {
	s, ok := f.strains[id]
	if !ok || s.Deleted() {
		return nil, repository.ErrStrainNotFound
	}
	if f.failAudit {
		return nil, errAuditDown
	}
	if upd.StrainCode != nil {
		s.StrainCode = *upd.StrainCode
	}
	if upd.Genus != nil {
		s.Genus = *upd.Genus
	}
	if upd.Species != nil {
		s.Species = *upd.Species
	}
	if upd.BiosafetyLevel != nil {
		s.BiosafetyLevel = *upd.BiosafetyLevel
	}
	s.UpdatedAt = time.Now().UTC()
	if err := f.record(ev); err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStrainStore) SetDeleted(_ context.Context, id uint64, deleted bool, ev model.AuditEvent) error {
	s, ok := f.strains[id]
	if !ok || s.Deleted() == deleted {
		return repository.ErrStrainNotFound
	}
	if f.failAudit {
		return errAuditDown
	}
	if deleted {
		now := time.Now().UTC()
		s.DeletedAt = &now
		return f.record(ev)
	}
	// Restore collides with the unique index over active codes when the code
	// was reused while this record was deleted.
	for _, other := range f.strains {
		if other.ID != s.ID && !other.Deleted() && other.StrainCode == s.StrainCode {
			return repository.ErrStrainCodeExists
		}
	}
	s.DeletedAt = nil
	return f.record(ev)
}

func (f *fakeStrainStore) eventsFor(action string, resourceID uint64) []model.AuditEvent {
	var out []model.AuditEvent
	for _, ev := range f.events {
		if ev.Action == action && ev.ResourceID == resourceID {
			out = append(out, ev)
		}
	}
	return out
}

func seedStrain(f *fakeStrainStore, code string, level int, createdBy uint64) *model.Strain {
	f.seq++
	s := &model.Strain{
		ID:                f.seq,
		StrainCode:        code,
		MicroorganismType: "bacteria",
		Genus:             "Bacillus",
		Species:           "subtilis",
		SampleType:        "soil",
		OriginLocation:    "site A",
		BiosafetyLevel:    level,
		CreatedBy:         createdBy,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	f.strains[s.ID] = s
	return s
}

func requireDeny(t *testing.T, err error, reason policy.Reason) {
	t.Helper()
	de, ok := AsDeny(err)
	require.True(t, ok, "expected a policy denial, got %v", err)
	require.Equal(t, reason, de.Decision.Reason)
}

var (
	adminP      = policy.Principal{ID: 1, Role: model.RoleAdmin, Clearance: 4, Active: true}
	researcherP = policy.Principal{ID: 2, Role: model.RoleResearcher, Clearance: 2, Active: true}
	technicianP = policy.Principal{ID: 3, Role: model.RoleTechnician, Clearance: 3, Active: true}
)

func TestList_NeverExceedsClearance(t *testing.T) {
	store := newFakeStrainStore()
	for i, lvl := range []int{1, 2, 3, 4} {
		seedStrain(store, "S-"+string(rune('A'+i)), lvl, adminP.ID)
	}
	reg := NewStrainRegistry(store, nil)

	strains, total, err := reg.List(context.Background(), researcherP, repository.StrainSearchQuery{
		// A hostile caller asking for a wider scope must not widen anything:
		// the service overwrites MaxClearance with the principal's own.
		MaxClearance: 4,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	for _, s := range strains {
		require.LessOrEqual(t, s.BiosafetyLevel, researcherP.Clearance)
	}
}

func TestGet_DistinguishesForbiddenFromNotFound(t *testing.T) {
	store := newFakeStrainStore()
	visible := seedStrain(store, "VIS-1", 2, adminP.ID)
	hidden := seedStrain(store, "HID-1", 4, adminP.ID)
	gone := seedStrain(store, "DEL-1", 1, adminP.ID)
	now := time.Now()
	gone.DeletedAt = &now
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	s, err := reg.Get(ctx, researcherP, visible.ID)
	require.NoError(t, err)
	require.Equal(t, "VIS-1", s.StrainCode)

	// Existing but over-clearance: forbidden, not 404.
	_, err = reg.Get(ctx, researcherP, hidden.ID)
	requireDeny(t, err, policy.ReasonInsufficientClearance)

	// Soft-deleted and absent records are both plain not-found.
	_, err = reg.Get(ctx, researcherP, gone.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Get(ctx, researcherP, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_RoundTripAndAudit(t *testing.T) {
	store := newFakeStrainStore()
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	date := "2024-03-01"
	s := model.Strain{
		StrainCode:           "ABC-1",
		MicroorganismType:    "bacteria",
		Genus:                "Pseudomonas",
		Species:              "fluorescens",
		SampleType:           "rhizosphere",
		OriginLocation:       "field 7",
		IsolationDate:        &date,
		PotentialProteolytic: true,
		BiosafetyLevel:       2,
	}
	require.NoError(t, reg.Create(ctx, researcherP, &s))
	require.NotZero(t, s.ID)
	require.Equal(t, researcherP.ID, s.CreatedBy)

	got, err := reg.Get(ctx, researcherP, s.ID)
	require.NoError(t, err)
	require.Equal(t, "ABC-1", got.StrainCode)
	require.Equal(t, "Pseudomonas", got.Genus)
	require.Equal(t, &date, got.IsolationDate)
	require.True(t, got.PotentialProteolytic)

	require.Len(t, store.eventsFor(model.ActionCreateStrain, s.ID), 1)
}

func TestCreate_DefaultsToLevelOne(t *testing.T) {
	store := newFakeStrainStore()
	reg := NewStrainRegistry(store, nil)

	s := model.Strain{StrainCode: "DEF-1", Genus: "Bacillus", Species: "cereus"}
	require.NoError(t, reg.Create(context.Background(), researcherP, &s))
	require.Equal(t, 1, s.BiosafetyLevel)
}

func TestCreate_InsufficientClearance(t *testing.T) {
	store := newFakeStrainStore()
	reg := NewStrainRegistry(store, nil)

	// Researcher with clearance 2 asks for a level 3 strain.
	s := model.Strain{StrainCode: "HOT-1", BiosafetyLevel: 3}
	err := reg.Create(context.Background(), researcherP, &s)
	requireDeny(t, err, policy.ReasonInsufficientClearance)

	// Nothing was created and no audit event was written.
	require.Empty(t, store.strains)
	require.Empty(t, store.events)
}

func TestCreate_DuplicateCode(t *testing.T) {
	store := newFakeStrainStore()
	seedStrain(store, "ABC-1", 1, adminP.ID)
	reg := NewStrainRegistry(store, nil)

	s := model.Strain{StrainCode: "ABC-1", BiosafetyLevel: 1}
	err := reg.Create(context.Background(), adminP, &s)
	require.ErrorIs(t, err, repository.ErrStrainCodeExists)
	require.Empty(t, store.events)
}

func TestUpdate_TechnicianAlwaysForbidden(t *testing.T) {
	store := newFakeStrainStore()
	// Even a record the technician "owns" is off limits.
	s := seedStrain(store, "T-1", 1, technicianP.ID)
	reg := NewStrainRegistry(store, nil)

	newGenus := "Streptomyces"
	_, err := reg.Update(context.Background(), technicianP, s.ID, repository.StrainUpdate{Genus: &newGenus})
	requireDeny(t, err, policy.ReasonRoleForbidden)
	require.Empty(t, store.events)
}

func TestUpdate_ResearcherOwnershipRules(t *testing.T) {
	store := newFakeStrainStore()
	own := seedStrain(store, "OWN-1", 2, researcherP.ID)
	other := seedStrain(store, "OTH-1", 2, adminP.ID)
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	sp := "novel"
	got, err := reg.Update(ctx, researcherP, own.ID, repository.StrainUpdate{Species: &sp})
	require.NoError(t, err)
	require.Equal(t, "novel", got.Species)
	require.Len(t, store.eventsFor(model.ActionUpdateStrain, own.ID), 1)

	_, err = reg.Update(ctx, researcherP, other.ID, repository.StrainUpdate{Species: &sp})
	requireDeny(t, err, policy.ReasonNotOwner)
}

func TestUpdate_LevelChangeBoundedByClearance(t *testing.T) {
	store := newFakeStrainStore()
	s := seedStrain(store, "LVL-1", 1, researcherP.ID)
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	// Raising within clearance is fine; above it is denied even for the owner.
	ok, denied := 2, 3
	got, err := reg.Update(ctx, researcherP, s.ID, repository.StrainUpdate{BiosafetyLevel: &ok})
	require.NoError(t, err)
	require.Equal(t, 2, got.BiosafetyLevel)

	_, err = reg.Update(ctx, researcherP, s.ID, repository.StrainUpdate{BiosafetyLevel: &denied})
	requireDeny(t, err, policy.ReasonInsufficientClearance)
}

func TestUpdate_EmptyPatchRejected(t *testing.T) {
	store := newFakeStrainStore()
	s := seedStrain(store, "E-1", 1, adminP.ID)
	reg := NewStrainRegistry(store, nil)

	_, err := reg.Update(context.Background(), adminP, s.ID, repository.StrainUpdate{})
	require.ErrorIs(t, err, ErrNoFieldsToUpdate)
	require.Empty(t, store.events)
}

func TestDeleteAndRestore_Lifecycle(t *testing.T) {
	store := newFakeStrainStore()
	s := seedStrain(store, "LC-1", 1, researcherP.ID)
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	require.NoError(t, reg.Delete(ctx, researcherP, s.ID))
	require.True(t, store.strains[s.ID].Deleted())
	require.Len(t, store.eventsFor(model.ActionDeleteStrain, s.ID), 1)

	// Deleted records are invisible to Get.
	_, err := reg.Get(ctx, researcherP, s.ID)
	require.ErrorIs(t, err, ErrNotFound)

	restored, err := reg.Restore(ctx, researcherP, s.ID)
	require.NoError(t, err)
	require.False(t, restored.Deleted())
	require.False(t, store.strains[s.ID].Deleted())
	require.Len(t, store.eventsFor(model.ActionRestoreStrain, s.ID), 1)
}

func TestRestore_ReusedCodeConflicts(t *testing.T) {
	store := newFakeStrainStore()
	old := seedStrain(store, "RE-1", 1, adminP.ID)
	now := time.Now().UTC()
	old.DeletedAt = &now
	seedStrain(store, "RE-1", 1, adminP.ID) // code reused by a newer active strain
	reg := NewStrainRegistry(store, nil)

	_, err := reg.Restore(context.Background(), adminP, old.ID)
	require.ErrorIs(t, err, repository.ErrStrainCodeExists)
	require.True(t, store.strains[old.ID].Deleted())
	require.Empty(t, store.events)
}

func TestRestore_ActiveRecordRejected(t *testing.T) {
	store := newFakeStrainStore()
	s := seedStrain(store, "ACT-1", 1, adminP.ID)
	reg := NewStrainRegistry(store, nil)

	_, err := reg.Restore(context.Background(), adminP, s.ID)
	requireDeny(t, err, policy.ReasonNotDeleted)

	// No state change and no audit event.
	require.False(t, store.strains[s.ID].Deleted())
	require.Empty(t, store.events)
}

func TestMutations_FailWhenAuditCannotBeWritten(t *testing.T) {
	store := newFakeStrainStore()
	s := seedStrain(store, "AUD-1", 1, adminP.ID)
	store.failAudit = true
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	_, err := reg.Update(ctx, adminP, s.ID, repository.StrainUpdate{Genus: strPtr("X")})
	require.Error(t, err)
	require.Error(t, reg.Delete(ctx, adminP, s.ID))
	require.False(t, store.strains[s.ID].Deleted())

	create := model.Strain{StrainCode: "AUD-2", BiosafetyLevel: 1}
	require.Error(t, reg.Create(ctx, adminP, &create))
	require.Empty(t, store.events)
}

func TestAuditInvariant_ExactlyOneEventPerMutation(t *testing.T) {
	store := newFakeStrainStore()
	reg := NewStrainRegistry(store, nil)
	ctx := context.Background()

	s := model.Strain{StrainCode: "INV-1", BiosafetyLevel: 1}
	require.NoError(t, reg.Create(ctx, adminP, &s))
	_, err := reg.Update(ctx, adminP, s.ID, repository.StrainUpdate{Genus: strPtr("Y")})
	require.NoError(t, err)
	require.NoError(t, reg.Delete(ctx, adminP, s.ID))
	_, err = reg.Restore(ctx, adminP, s.ID)
	require.NoError(t, err)

	require.Len(t, store.events, 4)
	for _, action := range []string{
		model.ActionCreateStrain, model.ActionUpdateStrain,
		model.ActionDeleteStrain, model.ActionRestoreStrain,
	} {
		require.Len(t, store.eventsFor(action, s.ID), 1, "action %s", action)
	}
}

func TestContainmentAlerts(t *testing.T) {
	store := newFakeStrainStore()
	var alerts []queue.ContainmentAlert
	reg := NewStrainRegistry(store, func(_ context.Context, ev queue.ContainmentAlert) error {
		alerts = append(alerts, ev)
		return nil
	})
	ctx := context.Background()

	low := model.Strain{StrainCode: "LOW-1", BiosafetyLevel: 1}
	require.NoError(t, reg.Create(ctx, adminP, &low))
	require.Empty(t, alerts)

	hot := model.Strain{StrainCode: "HOT-1", BiosafetyLevel: 3}
	require.NoError(t, reg.Create(ctx, adminP, &hot))
	require.Len(t, alerts, 1)
	require.Equal(t, model.ActionCreateStrain, alerts[0].Action)
	require.Equal(t, hot.ID, alerts[0].StrainID)

	require.NoError(t, reg.Delete(ctx, adminP, hot.ID))
	require.Len(t, alerts, 2)
	require.Equal(t, model.ActionDeleteStrain, alerts[1].Action)
}

func strPtr(s string) *string { return &s }
