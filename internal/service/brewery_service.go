package service

import (
	"context"
	"errors"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinouy/kegtracker-backend/internal/access"
	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

type BreweryService struct {
	breweryRepo repository.BreweryRepository
	userRepo    repository.UserRepository
	kegRepo     repository.KegRepository
	clock       clock.Clock
	logger      *zap.Logger
}

type CreateBreweryRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func NewBreweryService(
	breweryRepo repository.BreweryRepository,
	userRepo repository.UserRepository,
	kegRepo repository.KegRepository,
	clk clock.Clock,
	logger *zap.Logger,
) *BreweryService {
	return &BreweryService{
		breweryRepo: breweryRepo,
		userRepo:    userRepo,
		kegRepo:     kegRepo,
		clock:       newClock(clk),
		logger:      logger,
	}
}

func (s *BreweryService) List(ctx context.Context, actor domain.Actor) ([]*domain.Brewery, error) {
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.ListBreweries}); err != nil {
		return nil, err
	}
	breweries, err := s.breweryRepo.List(ctx)
	if err != nil {
		return nil, internalErr("failed to list breweries", err)
	}
	return breweries, nil
}

func (s *BreweryService) Create(ctx context.Context, actor domain.Actor, req CreateBreweryRequest) (*domain.Brewery, error) {
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.CreateBrewery}); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewError(domain.KindValidation, "name is required")
	}

	now := s.clock.Now().UTC()
	brewery := &domain.Brewery{
		ID:        uuid.New(),
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.breweryRepo.Create(ctx, brewery); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrBreweryNameTaken
		}
		return nil, internalErr("failed to create brewery", err)
	}

	s.logger.Info("brewery created", zap.String("brewery_id", brewery.ID.String()), zap.String("name", name))
	return brewery, nil
}

func (s *BreweryService) Activate(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	return s.setActive(ctx, actor, id, access.ActivateBrewery, true)
}

// Deactivate flags the brewery inactive. The flag does not restrict its
// users or kegs.
func (s *BreweryService) Deactivate(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	return s.setActive(ctx, actor, id, access.DeactivateBrewery, false)
}

func (s *BreweryService) setActive(ctx context.Context, actor domain.Actor, id uuid.UUID, action access.Action, active bool) error {
	target, err := s.target(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Evaluate(access.Request{Actor: actor, Action: action, Target: target}); err != nil {
		return err
	}
	if err := s.breweryRepo.SetActive(ctx, id, active); err != nil {
		return repoErr(err, domain.ErrBreweryNotFound, "failed to update brewery")
	}
	s.logger.Info("brewery active flag changed", zap.String("brewery_id", id.String()), zap.Bool("active", active))
	return nil
}

// Delete removes a brewery that no user or keg references.
func (s *BreweryService) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	target, err := s.target(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.DeleteBrewery, Target: target}); err != nil {
		return err
	}

	var users, kegs int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.userRepo.CountByBrewery(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		kegs, err = s.kegRepo.CountByBrewery(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return internalErr("failed to count brewery dependents", err)
	}
	if users > 0 || kegs > 0 {
		return domain.NewError(domain.KindConflict, "brewery still has users or kegs")
	}

	if err := s.breweryRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return domain.WrapError(domain.KindConflict, "brewery still has users or kegs", err)
		}
		return repoErr(err, domain.ErrBreweryNotFound, "failed to delete brewery")
	}

	s.logger.Info("brewery deleted", zap.String("brewery_id", id.String()), zap.String("deleted_by", actor.ID.String()))
	return nil
}

func (s *BreweryService) target(ctx context.Context, id uuid.UUID) (*access.Target, error) {
	brewery, err := s.breweryRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return &access.Target{ID: id}, nil
	}
	if err != nil {
		return nil, internalErr("failed to load brewery", err)
	}
	return &access.Target{Found: true, ID: brewery.ID, BreweryID: &brewery.ID}, nil
}
