package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the transport layer can map them to a
// response without inspecting messages.
type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "UNAUTHENTICATED"
	KindForbidden        ErrorKind = "FORBIDDEN"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindConflict         ErrorKind = "CONFLICT"
	KindTokenAlreadyUsed ErrorKind = "TOKEN_ALREADY_USED"
	KindTokenExpired     ErrorKind = "TOKEN_EXPIRED"
	KindValidation       ErrorKind = "VALIDATION_ERROR"
	KindInternal         ErrorKind = "INTERNAL"
)

// Rule names the access check that produced a Forbidden error.
type Rule string

const (
	RuleRoleCapability        Rule = "role_capability"
	RuleSelfProtection        Rule = "self_protection"
	RuleGlobalAdminTarget     Rule = "global_admin_target"
	RuleGlobalAdminAssignment Rule = "global_admin_assignment"
	RuleTenantScope           Rule = "tenant_scope"
)

// Error is the error type returned by services.
type Error struct {
	Kind    ErrorKind
	Message string
	Rule    Rule
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Forbidden builds a policy denial naming the rule that failed.
func Forbidden(rule Rule, message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, Rule: rule}
}

// KindOf returns the kind of err, or KindInternal when err is not a *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// RuleOf returns the failed rule of a Forbidden error.
func RuleOf(err error) Rule {
	var de *Error
	if errors.As(err, &de) {
		return de.Rule
	}
	return ""
}

var (
	ErrInvalidCredentials = NewError(KindUnauthenticated, "invalid credentials")
	ErrNotAuthenticated   = NewError(KindUnauthenticated, "could not validate credentials")
	ErrUserNotFound       = NewError(KindNotFound, "user not found")
	ErrBreweryNotFound    = NewError(KindNotFound, "brewery not found")
	ErrKegNotFound        = NewError(KindNotFound, "keg not found")
	ErrEmailTaken         = NewError(KindConflict, "email already registered")
	ErrBreweryNameTaken   = NewError(KindConflict, "brewery name already exists")
	ErrTokenAlreadyUsed   = NewError(KindTokenAlreadyUsed, "token already used")
	ErrTokenExpired       = NewError(KindTokenExpired, "token expired")
	ErrInvalidToken       = NewError(KindUnauthenticated, "invalid token")
)
