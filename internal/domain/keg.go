package domain

import (
	"time"

	"github.com/google/uuid"
)

// KegType is the physical vessel type
type KegType string

const (
	KegTypeKeg   KegType = "keg"
	KegTypeCorni KegType = "corni"
)

// Valid reports whether t is a known vessel type.
func (t KegType) Valid() bool {
	return t == KegTypeKeg || t == KegTypeCorni
}

// KegConnector is the coupler fitted to a keg
type KegConnector string

const (
	KegConnectorS        KegConnector = "S"
	KegConnectorA        KegConnector = "A"
	KegConnectorG        KegConnector = "G"
	KegConnectorBallLock KegConnector = "ball_lock"
	KegConnectorPinLock  KegConnector = "pin_lock"
)

// Valid reports whether c is a known connector.
func (c KegConnector) Valid() bool {
	switch c {
	case KegConnectorS, KegConnectorA, KegConnectorG, KegConnectorBallLock, KegConnectorPinLock:
		return true
	}
	return false
}

// KegState is the lifecycle state of a keg. The set is flat: any state may
// follow any other.
type KegState string

const (
	KegStateInUse KegState = "in_use"
	KegStateEmpty KegState = "empty"
	KegStateDirty KegState = "dirty"
	KegStateClean KegState = "clean"
	KegStateReady KegState = "ready"
)

// DefaultKegState is assigned to kegs created without an explicit state.
const DefaultKegState = KegStateReady

// Valid reports whether s is a known lifecycle state.
func (s KegState) Valid() bool {
	switch s {
	case KegStateInUse, KegStateEmpty, KegStateDirty, KegStateClean, KegStateReady:
		return true
	}
	return false
}

type Keg struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	Name           string       `json:"name" db:"name"`
	Type           KegType      `json:"type" db:"type"`
	Connector      KegConnector `json:"connector" db:"connector"`
	Capacity       int          `json:"capacity" db:"capacity"`
	CurrentContent int          `json:"current_content" db:"current_content"`
	BeerType       string       `json:"beer_type" db:"beer_type"`
	State          KegState     `json:"state" db:"state"`
	BreweryID      uuid.UUID    `json:"brewery_id" db:"brewery_id"`
	Location       *string      `json:"location,omitempty" db:"location"`
	AssignedUserID *uuid.UUID   `json:"assigned_user_id,omitempty" db:"assigned_user_id"`
	Version        int          `json:"version" db:"version"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// CheckContent validates the capacity bound: capacity must be positive and
// content must lie in [0, capacity].
func (k *Keg) CheckContent() error {
	if k.Capacity <= 0 {
		return NewError(KindValidation, "capacity must be greater than zero")
	}
	if k.CurrentContent < 0 || k.CurrentContent > k.Capacity {
		return NewError(KindValidation, "current_content must be between 0 and capacity")
	}
	return nil
}

// KegStateHistory is an immutable record of one observed state change.
type KegStateHistory struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	KegID     uuid.UUID  `json:"keg_id" db:"keg_id"`
	OldState  KegState   `json:"old_state" db:"old_state"`
	NewState  KegState   `json:"new_state" db:"new_state"`
	ChangedAt time.Time  `json:"changed_at" db:"changed_at"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
}

// KegHistoryEntry is the read model of a history record, with the actor email
// resolved at read time.
type KegHistoryEntry struct {
	OldState  KegState  `json:"old_state" db:"old_state"`
	NewState  KegState  `json:"new_state" db:"new_state"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
	UserEmail *string   `json:"user_email" db:"user_email"`
}

// KegDetails is a keg together with the email of its assigned user.
type KegDetails struct {
	Keg
	UserEmail *string `json:"user_email"`
}
