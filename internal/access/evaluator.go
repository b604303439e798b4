// Package access decides whether an actor may perform an action on a target.
//
// Evaluate is a pure function: callers load the target first and pass what
// they found. Checks run in a fixed order and the first failure wins:
//
//  1. target existence
//  2. self-protection of GLOBAL_ADMIN accounts
//  3. role escalation (touching or assigning GLOBAL_ADMIN)
//  4. role capability and tenant scope
package access

import (
	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
)

type Action string

const (
	ListBreweries     Action = "brewery:list"
	CreateBrewery     Action = "brewery:create"
	DeleteBrewery     Action = "brewery:delete"
	ActivateBrewery   Action = "brewery:activate"
	DeactivateBrewery Action = "brewery:deactivate"

	ListKegs   Action = "keg:list"
	ViewKeg    Action = "keg:view"
	CreateKeg  Action = "keg:create"
	UpdateKeg  Action = "keg:update"
	DeleteKeg  Action = "keg:delete"
	ViewKegLog Action = "keg:history"

	ListUsers      Action = "user:list"
	CreateUser     Action = "user:create"
	ActivateUser   Action = "user:activate"
	DeactivateUser Action = "user:deactivate"
	UpdateUser     Action = "user:update"
	DeleteUser     Action = "user:delete"
	InviteUser     Action = "user:invite"
)

// Target describes the entity an action applies to, as loaded by the caller.
// For user actions BreweryID and Role are the target user's; for keg actions
// BreweryID is the owning brewery; for invites it is the brewery invited into.
type Target struct {
	Found     bool
	ID        uuid.UUID
	BreweryID *uuid.UUID
	Role      domain.Role
}

// Change carries the parts of a mutation that policy looks at.
type Change struct {
	Role      *domain.Role
	Active    *bool
	BreweryID *uuid.UUID
}

type Request struct {
	Actor  domain.Actor
	Action Action
	Target *Target
	Change Change
}

type grant uint8

const (
	deny grant = iota
	anyTenant
	ownTenant
)

type row map[domain.Role]grant

func staff(g grant) row {
	return row{domain.RoleGlobalAdmin: anyTenant, domain.RoleAdmin: g, domain.RoleModerator: g}
}

func globalOnly() row {
	return row{domain.RoleGlobalAdmin: anyTenant}
}

func everyone(user grant) row {
	r := staff(anyTenant)
	r[domain.RoleUser] = user
	return r
}

var matrix = map[Action]row{
	ListBreweries:     staff(anyTenant),
	CreateBrewery:     globalOnly(),
	DeleteBrewery:     globalOnly(),
	ActivateBrewery:   globalOnly(),
	DeactivateBrewery: globalOnly(),

	ListKegs:   everyone(ownTenant),
	ViewKeg:    everyone(ownTenant),
	ViewKegLog: everyone(ownTenant),
	UpdateKeg:  everyone(ownTenant),
	CreateKeg:  staff(anyTenant),
	DeleteKeg:  staff(anyTenant),

	ListUsers:      staff(anyTenant),
	CreateUser:     globalOnly(),
	ActivateUser:   staff(anyTenant),
	DeactivateUser: staff(anyTenant),
	UpdateUser:     staff(ownTenant),
	DeleteUser:     staff(ownTenant),
	InviteUser:     staff(ownTenant),
}

var targeted = map[Action]*domain.Error{
	DeleteBrewery:     domain.ErrBreweryNotFound,
	ActivateBrewery:   domain.ErrBreweryNotFound,
	DeactivateBrewery: domain.ErrBreweryNotFound,
	InviteUser:        domain.ErrBreweryNotFound,
	ViewKeg:           domain.ErrKegNotFound,
	ViewKegLog:        domain.ErrKegNotFound,
	UpdateKeg:         domain.ErrKegNotFound,
	DeleteKeg:         domain.ErrKegNotFound,
	ActivateUser:      domain.ErrUserNotFound,
	DeactivateUser:    domain.ErrUserNotFound,
	UpdateUser:        domain.ErrUserNotFound,
	DeleteUser:        domain.ErrUserNotFound,
}

// userTargeted actions act on an existing user account.
func userTargeted(a Action) bool {
	switch a {
	case ActivateUser, DeactivateUser, UpdateUser, DeleteUser:
		return true
	}
	return false
}

// Evaluate returns nil when req is allowed, or a *domain.Error of kind
// NotFound or Forbidden. Forbidden errors name the failed rule.
func Evaluate(req Request) error {
	if notFound, ok := targeted[req.Action]; ok {
		if req.Target == nil || !req.Target.Found {
			return notFound
		}
	}
	if err := checkSelfProtection(req); err != nil {
		return err
	}
	if err := checkEscalation(req); err != nil {
		return err
	}
	return checkCapability(req)
}

// Allowed is Evaluate reduced to a boolean.
func Allowed(req Request) bool {
	return Evaluate(req) == nil
}

func checkSelfProtection(req Request) error {
	a, t := req.Actor, req.Target
	if a.Role != domain.RoleGlobalAdmin || t == nil || !userTargeted(req.Action) || t.ID != a.ID {
		return nil
	}

	switch req.Action {
	case DeactivateUser:
		return domain.Forbidden(domain.RuleSelfProtection, "global admin cannot deactivate themselves")
	case DeleteUser:
		return domain.Forbidden(domain.RuleSelfProtection, "global admin cannot delete themselves")
	case UpdateUser:
		if req.Change.Active != nil && !*req.Change.Active {
			return domain.Forbidden(domain.RuleSelfProtection, "global admin cannot deactivate themselves")
		}
		if req.Change.Role != nil && *req.Change.Role != domain.RoleGlobalAdmin {
			return domain.Forbidden(domain.RuleSelfProtection, "global admin cannot demote themselves")
		}
	}
	return nil
}

func checkEscalation(req Request) error {
	if req.Actor.Role == domain.RoleGlobalAdmin {
		return nil
	}
	if userTargeted(req.Action) && req.Target != nil && req.Target.Role == domain.RoleGlobalAdmin {
		return domain.Forbidden(domain.RuleGlobalAdminTarget, "only a global admin can modify a global admin")
	}
	if req.Change.Role != nil && *req.Change.Role == domain.RoleGlobalAdmin {
		switch req.Action {
		case UpdateUser, CreateUser, InviteUser:
			return domain.Forbidden(domain.RuleGlobalAdminAssignment, "only a global admin can assign the global admin role")
		}
	}
	return nil
}

func checkCapability(req Request) error {
	g := matrix[req.Action][req.Actor.Role]
	switch g {
	case anyTenant:
		return nil
	case ownTenant:
		if req.Target != nil && !domain.SameBrewery(req.Actor.BreweryID, req.Target.BreweryID) {
			return domain.Forbidden(domain.RuleTenantScope, "target belongs to another brewery")
		}
		if req.Change.BreweryID != nil && !domain.SameBrewery(req.Actor.BreweryID, req.Change.BreweryID) {
			return domain.Forbidden(domain.RuleTenantScope, "cannot move into another brewery")
		}
		return nil
	}
	return domain.Forbidden(domain.RuleRoleCapability, "not enough permissions")
}
