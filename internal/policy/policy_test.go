package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microvault/strain-registry/internal/model"
)

func admin(id uint64, clearance int) Principal {
	return Principal{ID: id, Role: model.RoleAdmin, Clearance: clearance, Active: true}
}

func researcher(id uint64, clearance int) Principal {
	return Principal{ID: id, Role: model.RoleResearcher, Clearance: clearance, Active: true}
}

func technician(id uint64, clearance int) Principal {
	return Principal{ID: id, Role: model.RoleTechnician, Clearance: clearance, Active: true}
}

func TestCanView(t *testing.T) {
	cases := []struct {
		name   string
		p      Principal
		level  int
		allow  bool
		reason Reason
	}{
		{"equal clearance", researcher(1, 2), 2, true, ""},
		{"below clearance", researcher(1, 3), 1, true, ""},
		{"above clearance", researcher(1, 2), 3, false, ReasonInsufficientClearance},
		{"no clearance sees nothing", technician(1, 0), 1, false, ReasonInsufficientClearance},
		{"disabled account", Principal{ID: 1, Role: model.RoleAdmin, Clearance: 4}, 1, false, ReasonAccountDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanView(tc.p, tc.level)
			require.Equal(t, tc.allow, d.Allowed)
			require.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestCanView_ReportsLevels(t *testing.T) {
	d := CanView(researcher(7, 2), 4)
	require.False(t, d.Allowed)
	require.Equal(t, 4, d.Required)
	require.Equal(t, 2, d.Current)
}

func TestCanCreate(t *testing.T) {
	require.True(t, CanCreate(researcher(1, 2), 2).Allowed)
	require.True(t, CanCreate(technician(1, 3), 3).Allowed)

	// Scenario: researcher with clearance 2 asks for a level 3 strain.
	d := CanCreate(researcher(1, 2), 3)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonInsufficientClearance, d.Reason)
}

func TestCanMutate(t *testing.T) {
	const owner = uint64(10)
	cases := []struct {
		name   string
		p      Principal
		allow  bool
		reason Reason
	}{
		{"admin mutates anything", admin(1, 4), true, ""},
		{"admin mutates own", admin(owner, 4), true, ""},
		{"researcher mutates own", researcher(owner, 2), true, ""},
		{"researcher denied on others", researcher(11, 4), false, ReasonNotOwner},
		{"technician always denied", technician(owner, 3), false, ReasonRoleForbidden},
		{"unknown role denied", Principal{ID: owner, Role: "auditor", Clearance: 4, Active: true}, false, ReasonRoleForbidden},
		{"disabled admin denied", Principal{ID: 1, Role: model.RoleAdmin, Clearance: 4}, false, ReasonAccountDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanMutate(tc.p, owner)
			require.Equal(t, tc.allow, d.Allowed)
			require.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestCanMutate_TechnicianOwnershipIrrelevant(t *testing.T) {
	// A technician with high clearance is denied even on records they created.
	p := technician(10, 3)
	d := CanMutate(p, p.ID)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonRoleForbidden, d.Reason)
}

func TestCanChangeLevel(t *testing.T) {
	require.True(t, CanChangeLevel(admin(1, 4), 4).Allowed)
	require.True(t, CanChangeLevel(researcher(1, 3), 2).Allowed)

	d := CanChangeLevel(admin(1, 2), 3)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonInsufficientClearance, d.Reason)
}

func TestCanRestore(t *testing.T) {
	const owner = uint64(10)
	deleted := time.Now()

	require.True(t, CanRestore(admin(1, 4), owner, &deleted).Allowed)
	require.True(t, CanRestore(researcher(owner, 2), owner, &deleted).Allowed)

	// Already-active record: role checks pass but the precondition fails.
	d := CanRestore(admin(1, 4), owner, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonNotDeleted, d.Reason)

	// Role denial takes priority over the precondition.
	d = CanRestore(technician(owner, 3), owner, nil)
	require.Equal(t, ReasonRoleForbidden, d.Reason)
}

func TestCanProvisionAccount(t *testing.T) {
	require.True(t, CanProvisionAccount(admin(1, 4)).Allowed)
	require.Equal(t, ReasonRoleForbidden, CanProvisionAccount(researcher(1, 4)).Reason)
	require.Equal(t, ReasonRoleForbidden, CanProvisionAccount(technician(1, 0)).Reason)
}

func TestCanDeleteAccount(t *testing.T) {
	require.True(t, CanDeleteAccount(admin(1, 4), 2).Allowed)
	require.Equal(t, ReasonRoleForbidden, CanDeleteAccount(researcher(1, 4), 2).Reason)

	// Self-protection: admins may not delete themselves.
	d := CanDeleteAccount(admin(1, 4), 1)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonSelfActionBlocked, d.Reason)
}

func TestCanBootstrap(t *testing.T) {
	require.True(t, CanBootstrap(0).Allowed)

	d := CanBootstrap(1)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonAlreadyInitialized, d.Reason)

	require.False(t, CanBootstrap(5).Allowed)
}
