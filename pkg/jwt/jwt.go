package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
)

var (
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
	ErrInvalidToken         = errors.New("invalid token")
	ErrWrongPurpose         = errors.New("token issued for another purpose")
)

// TokenService signs and parses HS256 tokens with a shared secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the issuing clock.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// GenerateSessionToken signs a session token for user. Session tokens carry
// no expiry.
func (s *TokenService) GenerateSessionToken(user *domain.User, breweryName *string) (string, error) {
	claims := domain.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.Email,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
		UserID:      user.ID,
		Role:        user.Role,
		BreweryID:   user.BreweryID,
		BreweryName: breweryName,
	}
	return s.sign(claims)
}

// GenerateResetToken returns a single-use reset token and its id.
func (s *TokenService) GenerateResetToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now()
	claims := domain.ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:  userID,
		Purpose: domain.PurposePasswordReset,
	}
	return s.sign(claims)
}

func (s *TokenService) GenerateInviteToken(email string, breweryID uuid.UUID, role domain.Role, ttl time.Duration) (string, error) {
	now := s.now()
	claims := domain.InviteClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     email,
		BreweryID: breweryID,
		Role:      role,
		Purpose:   domain.PurposeInvite,
	}
	return s.sign(claims)
}

func (s *TokenService) ParseSessionToken(tokenString string) (*domain.SessionClaims, error) {
	claims := &domain.SessionClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseResetToken verifies the signature only. Expiry is left to the caller,
// which must check the consumed-token store first.
func (s *TokenService) ParseResetToken(tokenString string) (*domain.ResetClaims, error) {
	claims := &domain.ResetClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Purpose != domain.PurposePasswordReset {
		return nil, ErrWrongPurpose
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseInviteToken verifies the signature only, like ParseResetToken.
func (s *TokenService) ParseInviteToken(tokenString string) (*domain.InviteClaims, error) {
	claims := &domain.InviteClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Purpose != domain.PurposeInvite {
		return nil, ErrWrongPurpose
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expired reports whether exp lies at or before the service clock.
func (s *TokenService) Expired(exp time.Time) bool {
	return !s.now().Before(exp)
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return s.secret, nil
	}, jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
