package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role controls which actions an actor may perform. Roles are not totally
// ordered; the access evaluator treats each one explicitly.
type Role string

const (
	RoleGlobalAdmin Role = "global_admin"
	RoleAdmin       Role = "admin"
	RoleModerator   Role = "moderator"
	RoleUser        Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGlobalAdmin, RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// IsStaff reports whether r is ADMIN or MODERATOR.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleModerator
}

type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         Role       `json:"role" db:"role"`
	Active       bool       `json:"active" db:"active"`
	BreweryID    *uuid.UUID `json:"brewery_id" db:"brewery_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Actor is the authenticated identity performing an action.
type Actor struct {
	ID        uuid.UUID
	Email     string
	Role      Role
	BreweryID *uuid.UUID
}

// ActorFromUser builds the actor view of a stored user.
func ActorFromUser(u *User) Actor {
	return Actor{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		BreweryID: u.BreweryID,
	}
}

// SameBrewery reports whether both references point at the same brewery.
// A nil reference never matches.
func SameBrewery(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
