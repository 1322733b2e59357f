package model

import "time"

// Role names as stored in the `users.role` column.  The set is closed; the
// policy package switches exhaustively over these values.
const (
	RoleAdmin      = "admin"
	RoleResearcher = "researcher"
	RoleTechnician = "technician"
)

// ClearanceMin and ClearanceMax bound the biosafety clearance scale.  The
// same 1..4 scale applies to strain biosafety levels.
const (
	ClearanceMin = 1
	ClearanceMax = 4
)

// User represents an account record as stored in the `users` table.
//
// Fields:
//  ID                 – primary key identifier.
//  Email              – email address, unique among non-deleted accounts.
//  PasswordHash       – bcrypt hashed password.
//  FullName           – display name of the account holder.
//  Role               – one of admin, researcher, technician.
//  BiosafetyClearance – clearance level 1..4; nil for technicians without one.
//  LabAffiliation     – optional lab or institute name.
//  CreatedAt          – timestamp of creation.
//  DeletedAt          – soft-delete timestamp; nil while the account is active.
type User struct {
	ID                 uint64     `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	FullName           string     `json:"full_name"`
	Role               string     `json:"role"`
	BiosafetyClearance *int       `json:"biosafety_clearance"`
	LabAffiliation     *string    `json:"lab_affiliation,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	DeletedAt          *time.Time `json:"-"`
}

// Active reports whether the account has not been soft-deleted.
func (u *User) Active() bool { return u.DeletedAt == nil }

// Clearance returns the account's biosafety clearance, or 0 when none is
// assigned.  Strain levels start at 1, so a zero clearance sees nothing.
func (u *User) Clearance() int {
	if u.BiosafetyClearance == nil {
		return 0
	}
	return *u.BiosafetyClearance
}
