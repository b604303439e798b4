package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
	"github.com/tinouy/kegtracker-backend/pkg/blacklist"
	"github.com/tinouy/kegtracker-backend/pkg/jwt"
)

type AuthService struct {
	userRepo    repository.UserRepository
	breweryRepo repository.BreweryRepository
	tokens      *jwt.TokenService
	guard       singleUse
	hasher      PasswordHasher
	notifier    Notifier
	resetTTL    time.Duration
	logger      *zap.Logger
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func NewAuthService(
	userRepo repository.UserRepository,
	breweryRepo repository.BreweryRepository,
	tokens *jwt.TokenService,
	consumed blacklist.Store,
	hasher PasswordHasher,
	notifier Notifier,
	resetTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		breweryRepo: breweryRepo,
		tokens:      tokens,
		guard:       singleUse{store: consumed, tokens: tokens},
		hasher:      hasher,
		notifier:    notifier,
		resetTTL:    resetTTL,
		logger:      logger,
	}
}

// Login exchanges credentials for a session token. Unknown emails, wrong
// passwords and inactive accounts are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*domain.SessionToken, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, internalErr("failed to load user", err)
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("stored password hash is unreadable", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, domain.ErrInvalidCredentials
	}
	if !ok || !user.Active {
		return nil, domain.ErrInvalidCredentials
	}

	var breweryName *string
	if user.BreweryID != nil {
		brewery, err := s.breweryRepo.GetByID(ctx, *user.BreweryID)
		switch {
		case err == nil:
			breweryName = &brewery.Name
		case !errors.Is(err, repository.ErrNotFound):
			return nil, internalErr("failed to load brewery", err)
		}
	}

	token, err := s.tokens.GenerateSessionToken(user, breweryName)
	if err != nil {
		return nil, internalErr("failed to sign token", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return &domain.SessionToken{AccessToken: token, TokenType: "bearer"}, nil
}

// Authenticate resolves a session token to the current state of its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Actor, error) {
	claims, err := s.tokens.ParseSessionToken(token)
	if err != nil {
		return domain.Actor{}, domain.WrapError(domain.KindUnauthenticated, domain.ErrNotAuthenticated.Message, err)
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Actor{}, domain.ErrNotAuthenticated
		}
		return domain.Actor{}, internalErr("failed to load user", err)
	}
	if !user.Active {
		return domain.Actor{}, domain.ErrNotAuthenticated
	}
	return domain.ActorFromUser(user), nil
}

// ForgotPassword emails a reset link when the address belongs to an account.
// It succeeds either way.
func (s *AuthService) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	email := normalizeEmail(req.Email)
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return internalErr("failed to load user", err)
	}

	token, err := s.tokens.GenerateResetToken(user.ID, s.resetTTL)
	if err != nil {
		return internalErr("failed to sign token", err)
	}
	s.notifier.SendPasswordReset(user.Email, s.notifier.ResetLink(token))
	return nil
}

// ValidateResetToken reports whether token could still be used. It does not
// consume the token.
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) error {
	claims, err := s.tokens.ParseResetToken(token)
	if err != nil {
		return tokenErr(err)
	}
	return s.guard.check(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	claims, err := s.tokens.ParseResetToken(req.Token)
	if err != nil {
		return tokenErr(err)
	}
	if err := s.guard.claim(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return internalErr("failed to hash password", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, claims.UserID, hashed); err != nil {
		return repoErr(err, domain.ErrUserNotFound, "failed to update password")
	}

	s.logger.Info("password reset", zap.String("user_id", claims.UserID.String()))
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Actor, req ChangePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return repoErr(err, domain.ErrNotAuthenticated, "failed to load user")
	}

	ok, err := s.hasher.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		return domain.NewError(domain.KindValidation, "current password is incorrect")
	}

	hashed, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return internalErr("failed to hash password", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return repoErr(err, domain.ErrUserNotFound, "failed to update password")
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID.String()))
	return nil
}
