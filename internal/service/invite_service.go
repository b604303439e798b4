package service

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinouy/kegtracker-backend/internal/access"
	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
	"github.com/tinouy/kegtracker-backend/pkg/blacklist"
	"github.com/tinouy/kegtracker-backend/pkg/jwt"
)

const defaultInviteTTL = 60 * time.Minute

type InviteService struct {
	userRepo    repository.UserRepository
	breweryRepo repository.BreweryRepository
	tokens      *jwt.TokenService
	guard       singleUse
	hasher      PasswordHasher
	notifier    Notifier
	clock       clock.Clock
	logger      *zap.Logger
}

type InviteRequest struct {
	Email            string      `json:"email" validate:"required,email"`
	BreweryID        string      `json:"brewery_id" validate:"required,uuid"`
	Role             domain.Role `json:"role" validate:"omitempty,role"`
	ExpiresInMinutes int         `json:"expires_in_minutes" validate:"omitempty,gt=0,lte=10080"`
}

type InviteResponse struct {
	InviteLink string    `json:"invite_link"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// InviteDetails is what a still-usable invite grants.
type InviteDetails struct {
	Valid     bool        `json:"valid"`
	Email     string      `json:"email"`
	BreweryID uuid.UUID   `json:"brewery_id"`
	Role      domain.Role `json:"role"`
}

type RegisterRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func NewInviteService(
	userRepo repository.UserRepository,
	breweryRepo repository.BreweryRepository,
	tokens *jwt.TokenService,
	consumed blacklist.Store,
	hasher PasswordHasher,
	notifier Notifier,
	clk clock.Clock,
	logger *zap.Logger,
) *InviteService {
	return &InviteService{
		userRepo:    userRepo,
		breweryRepo: breweryRepo,
		tokens:      tokens,
		guard:       singleUse{store: consumed, tokens: tokens},
		hasher:      hasher,
		notifier:    notifier,
		clock:       newClock(clk),
		logger:      logger,
	}
}

// Generate issues an invite into a brewery and emails the registration link.
func (s *InviteService) Generate(ctx context.Context, actor domain.Actor, req InviteRequest) (*InviteResponse, error) {
	breweryID, err := uuid.Parse(req.BreweryID)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "brewery_id must be a valid UUID")
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	email := normalizeEmail(req.Email)

	var (
		breweryFound bool
		emailTaken   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.breweryRepo.GetByID(gctx, breweryID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		breweryFound = err == nil
		return err
	})
	g.Go(func() error {
		var err error
		emailTaken, err = s.userRepo.EmailExists(gctx, email)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, internalErr("failed to prepare invite", err)
	}

	err = access.Evaluate(access.Request{
		Actor:  actor,
		Action: access.InviteUser,
		Target: &access.Target{Found: breweryFound, ID: breweryID, BreweryID: &breweryID},
		Change: access.Change{Role: &role},
	})
	if err != nil {
		return nil, err
	}
	if emailTaken {
		return nil, domain.ErrEmailTaken
	}

	ttl := defaultInviteTTL
	if req.ExpiresInMinutes > 0 {
		ttl = time.Duration(req.ExpiresInMinutes) * time.Minute
	}
	token, err := s.tokens.GenerateInviteToken(email, breweryID, role, ttl)
	if err != nil {
		return nil, internalErr("failed to sign token", err)
	}

	link := s.notifier.InviteLink(token)
	s.notifier.SendInvite(email, link)

	s.logger.Info("invite generated",
		zap.String("invited_by", actor.ID.String()),
		zap.String("brewery_id", breweryID.String()),
		zap.String("role", string(role)),
	)
	return &InviteResponse{InviteLink: link, ExpiresAt: s.clock.Now().Add(ttl)}, nil
}

// Validate reports what token grants without consuming it.
func (s *InviteService) Validate(ctx context.Context, token string) (*InviteDetails, error) {
	claims, err := s.tokens.ParseInviteToken(token)
	if err != nil {
		return nil, tokenErr(err)
	}
	if err := s.guard.check(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}
	return &InviteDetails{Valid: true, Email: claims.Email, BreweryID: claims.BreweryID, Role: claims.Role}, nil
}

// Register consumes an invite and creates the account it names.
func (s *InviteService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	claims, err := s.tokens.ParseInviteToken(req.Token)
	if err != nil {
		return nil, tokenErr(err)
	}
	if err := s.guard.claim(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalErr("failed to hash password", err)
	}

	now := s.clock.Now().UTC()
	breweryID := claims.BreweryID
	user := &domain.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(claims.Email),
		PasswordHash: hashed,
		Role:         claims.Role,
		Active:       true,
		BreweryID:    &breweryID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, domain.ErrEmailTaken
		case errors.Is(err, repository.ErrReferenced):
			return nil, domain.ErrBreweryNotFound
		}
		return nil, internalErr("failed to create user", err)
	}

	s.logger.Info("user registered from invite", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return user, nil
}
