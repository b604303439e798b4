package domain

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenPurpose string

const (
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeInvite        TokenPurpose = "invite"
)

// SessionToken is the login response body.
type SessionToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SessionClaims is the payload of the primary session token. It carries no
// expiry; the actor is re-resolved on every validation.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID      uuid.UUID  `json:"user_id"`
	Role        Role       `json:"role"`
	BreweryID   *uuid.UUID `json:"brewery_id"`
	BreweryName *string    `json:"brewery_name"`
}

// ResetClaims is the payload of a single-use password reset token.
type ResetClaims struct {
	jwt.RegisteredClaims
	UserID  uuid.UUID    `json:"user_id"`
	Purpose TokenPurpose `json:"purpose"`
}

// InviteClaims is the payload of a single-use invite token.
type InviteClaims struct {
	jwt.RegisteredClaims
	Email     string       `json:"email"`
	BreweryID uuid.UUID    `json:"brewery_id"`
	Role      Role         `json:"role"`
	Purpose   TokenPurpose `json:"purpose"`
}
