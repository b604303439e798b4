package service

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/access"
	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type UserService struct {
	userRepo    repository.UserRepository
	breweryRepo repository.BreweryRepository
	hasher      PasswordHasher
	clock       clock.Clock
	logger      *zap.Logger
}

type ListUsersQuery struct {
	Search    string `query:"search" validate:"max=254"`
	BreweryID string `query:"brewery_id" validate:"omitempty,uuid"`
	Skip      int    `query:"skip" validate:"gte=0"`
	Limit     int    `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

type UserList struct {
	Users []*domain.User `json:"users"`
	Total int            `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

type CreateUserRequest struct {
	Email     string      `json:"email" validate:"required,email"`
	Password  string      `json:"password" validate:"required,min=8"`
	Role      domain.Role `json:"role" validate:"omitempty,role"`
	BreweryID string      `json:"brewery_id" validate:"omitempty,uuid"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged.
type UpdateUserRequest struct {
	Email     *string      `json:"email" validate:"omitempty,email"`
	Role      *domain.Role `json:"role" validate:"omitempty,role"`
	BreweryID *string      `json:"brewery_id" validate:"omitempty,uuid"`
	Active    *bool        `json:"active"`
}

func NewUserService(
	userRepo repository.UserRepository,
	breweryRepo repository.BreweryRepository,
	hasher PasswordHasher,
	clk clock.Clock,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:    userRepo,
		breweryRepo: breweryRepo,
		hasher:      hasher,
		clock:       newClock(clk),
		logger:      logger,
	}
}

func (s *UserService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, repoErr(err, domain.ErrUserNotFound, "failed to load user")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, actor domain.Actor, q ListUsersQuery) (*UserList, error) {
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.ListUsers}); err != nil {
		return nil, err
	}

	filter := repository.UserFilter{Search: q.Search}
	if q.BreweryID != "" {
		id, err := uuid.Parse(q.BreweryID)
		if err != nil {
			return nil, domain.NewError(domain.KindValidation, "brewery_id must be a valid UUID")
		}
		filter.BreweryID = &id
	}
	page := pageOf(q.Skip, q.Limit)

	users, total, err := s.userRepo.List(ctx, filter, page)
	if err != nil {
		return nil, internalErr("failed to list users", err)
	}
	return &UserList{Users: users, Total: total, Skip: page.Offset, Limit: page.Limit}, nil
}

func (s *UserService) Create(ctx context.Context, actor domain.Actor, req CreateUserRequest) (*domain.User, error) {
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	breweryID, err := parseOptionalID(req.BreweryID, "brewery_id")
	if err != nil {
		return nil, err
	}

	err = access.Evaluate(access.Request{
		Actor:  actor,
		Action: access.CreateUser,
		Change: access.Change{Role: &role, BreweryID: breweryID},
	})
	if err != nil {
		return nil, err
	}
	if err := checkTenantRequired(role, breweryID); err != nil {
		return nil, err
	}
	if err := s.requireBrewery(ctx, breweryID); err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalErr("failed to hash password", err)
	}

	now := s.clock.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hashed,
		Role:         role,
		Active:       true,
		BreweryID:    breweryID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrEmailTaken
		}
		return nil, repoErr(err, domain.ErrBreweryNotFound, "failed to create user")
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(role)),
		zap.String("created_by", actor.ID.String()),
	)
	return user, nil
}

func (s *UserService) Activate(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.User, error) {
	return s.setActive(ctx, actor, id, access.ActivateUser, true)
}

func (s *UserService) Deactivate(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.User, error) {
	return s.setActive(ctx, actor, id, access.DeactivateUser, false)
}

func (s *UserService) setActive(ctx context.Context, actor domain.Actor, id uuid.UUID, action access.Action, active bool) (*domain.User, error) {
	user, target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	err = access.Evaluate(access.Request{
		Actor:  actor,
		Action: action,
		Target: target,
		Change: access.Change{Active: &active},
	})
	if err != nil {
		return nil, err
	}

	if user.Active == active {
		return user, nil
	}
	user.Active = active
	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, repoErr(err, domain.ErrUserNotFound, "failed to update user")
	}

	s.logger.Info("user active flag changed",
		zap.String("user_id", user.ID.String()),
		zap.Bool("active", active),
		zap.String("changed_by", actor.ID.String()),
	)
	return user, nil
}

func (s *UserService) Update(ctx context.Context, actor domain.Actor, id uuid.UUID, req UpdateUserRequest) (*domain.User, error) {
	var breweryID *uuid.UUID
	if req.BreweryID != nil {
		var err error
		if breweryID, err = parseOptionalID(*req.BreweryID, "brewery_id"); err != nil {
			return nil, err
		}
	}

	user, target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	err = access.Evaluate(access.Request{
		Actor:  actor,
		Action: access.UpdateUser,
		Target: target,
		Change: access.Change{Role: req.Role, Active: req.Active, BreweryID: breweryID},
	})
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		user.Email = normalizeEmail(*req.Email)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if breweryID != nil {
		if err := s.requireBrewery(ctx, breweryID); err != nil {
			return nil, err
		}
		user.BreweryID = breweryID
	}
	if err := checkTenantRequired(user.Role, user.BreweryID); err != nil {
		return nil, err
	}

	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrEmailTaken
		}
		return nil, repoErr(err, domain.ErrUserNotFound, "failed to update user")
	}

	s.logger.Info("user updated", zap.String("user_id", user.ID.String()), zap.String("updated_by", actor.ID.String()))
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	_, target, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.DeleteUser, Target: target}); err != nil {
		return err
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		return repoErr(err, domain.ErrUserNotFound, "failed to delete user")
	}

	s.logger.Info("user deleted", zap.String("user_id", id.String()), zap.String("deleted_by", actor.ID.String()))
	return nil
}

// load fetches a user and its policy view. A missing user is not an error
// here; the evaluator reports it.
func (s *UserService) load(ctx context.Context, id uuid.UUID) (*domain.User, *access.Target, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &access.Target{ID: id}, nil
	}
	if err != nil {
		return nil, nil, internalErr("failed to load user", err)
	}
	return user, &access.Target{Found: true, ID: user.ID, BreweryID: user.BreweryID, Role: user.Role}, nil
}

func (s *UserService) requireBrewery(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.breweryRepo.GetByID(ctx, *id); err != nil {
		return repoErr(err, domain.ErrBreweryNotFound, "failed to load brewery")
	}
	return nil
}

// checkTenantRequired enforces that every account below GLOBAL_ADMIN belongs
// to a brewery.
func checkTenantRequired(role domain.Role, breweryID *uuid.UUID) error {
	if role != domain.RoleGlobalAdmin && breweryID == nil {
		return domain.NewError(domain.KindValidation, "brewery_id is required for this role")
	}
	return nil
}

func parseOptionalID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, field+" must be a valid UUID")
	}
	return &id, nil
}

func pageOf(skip, limit int) repository.Page {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if skip < 0 {
		skip = 0
	}
	return repository.Page{Limit: limit, Offset: skip}
}

// BootstrapGlobalAdmin creates the first GLOBAL_ADMIN account. It refuses to
// run once any GLOBAL_ADMIN exists.
func (s *UserService) BootstrapGlobalAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	exists, err := s.userRepo.GlobalAdminExists(ctx)
	if err != nil {
		return nil, internalErr("failed to check for global admins", err)
	}
	if exists {
		return nil, domain.NewError(domain.KindConflict, "a global admin already exists")
	}

	system := domain.Actor{ID: uuid.Nil, Role: domain.RoleGlobalAdmin}
	return s.Create(ctx, system, CreateUserRequest{
		Email:    email,
		Password: password,
		Role:     domain.RoleGlobalAdmin,
	})
}
