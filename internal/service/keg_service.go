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

// TransitionObserver is told about every committed keg state change.
type TransitionObserver interface {
	KegTransition(from, to domain.KegState)
}

type KegService struct {
	kegRepo     repository.KegRepository
	historyRepo repository.KegHistoryRepository
	userRepo    repository.UserRepository
	breweryRepo repository.BreweryRepository
	tx          repository.TxManager
	observer    TransitionObserver
	clock       clock.Clock
	logger      *zap.Logger
}

type ListKegsQuery struct {
	BreweryID string          `query:"brewery_id" validate:"omitempty,uuid"`
	State     domain.KegState `query:"state" validate:"omitempty,kegstate"`
	Skip      int             `query:"skip" validate:"gte=0"`
	Limit     int             `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

// KegRequest is the full keg record used by create and update. On update an
// empty State keeps the current state, and Version, when set, must match the
// stored version.
type KegRequest struct {
	Name           string              `json:"name" validate:"required,max=200"`
	Type           domain.KegType      `json:"type" validate:"required,kegtype"`
	Connector      domain.KegConnector `json:"connector" validate:"required,connector"`
	Capacity       int                 `json:"capacity" validate:"gt=0"`
	CurrentContent int                 `json:"current_content" validate:"gte=0"`
	BeerType       string              `json:"beer_type" validate:"max=200"`
	State          domain.KegState     `json:"state" validate:"omitempty,kegstate"`
	BreweryID      string              `json:"brewery_id" validate:"required,uuid"`
	Location       *string             `json:"location" validate:"omitempty,max=200"`
	AssignedUserID *string             `json:"assigned_user_id" validate:"omitempty,uuid"`
	Version        *int                `json:"version" validate:"omitempty,gte=0"`
}

func NewKegService(
	kegRepo repository.KegRepository,
	historyRepo repository.KegHistoryRepository,
	userRepo repository.UserRepository,
	breweryRepo repository.BreweryRepository,
	tx repository.TxManager,
	observer TransitionObserver,
	clk clock.Clock,
	logger *zap.Logger,
) *KegService {
	return &KegService{
		kegRepo:     kegRepo,
		historyRepo: historyRepo,
		userRepo:    userRepo,
		breweryRepo: breweryRepo,
		tx:          tx,
		observer:    observer,
		clock:       newClock(clk),
		logger:      logger,
	}
}

// List returns a page of kegs. USER actors only ever see their own brewery.
func (s *KegService) List(ctx context.Context, actor domain.Actor, q ListKegsQuery) ([]*domain.Keg, error) {
	var filter repository.KegFilter
	if q.BreweryID != "" {
		id, err := uuid.Parse(q.BreweryID)
		if err != nil {
			return nil, domain.NewError(domain.KindValidation, "brewery_id must be a valid UUID")
		}
		filter.BreweryID = &id
	}
	if q.State != "" {
		if !q.State.Valid() {
			return nil, domain.NewError(domain.KindValidation, "state has an unknown value")
		}
		state := q.State
		filter.State = &state
	}

	var target *access.Target
	if actor.Role == domain.RoleUser {
		if filter.BreweryID == nil {
			filter.BreweryID = actor.BreweryID
		}
		target = &access.Target{Found: true, BreweryID: filter.BreweryID}
	}
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.ListKegs, Target: target}); err != nil {
		return nil, err
	}

	kegs, err := s.kegRepo.List(ctx, filter, pageOf(q.Skip, q.Limit))
	if err != nil {
		return nil, internalErr("failed to list kegs", err)
	}
	return kegs, nil
}

func (s *KegService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.KegDetails, error) {
	keg, target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.ViewKeg, Target: target}); err != nil {
		return nil, err
	}

	details := &domain.KegDetails{Keg: *keg}
	if keg.AssignedUserID != nil {
		user, err := s.userRepo.GetByID(ctx, *keg.AssignedUserID)
		switch {
		case err == nil:
			details.UserEmail = &user.Email
		case !errors.Is(err, repository.ErrNotFound):
			return nil, internalErr("failed to load assigned user", err)
		}
	}
	return details, nil
}

func (s *KegService) Create(ctx context.Context, actor domain.Actor, req KegRequest) (*domain.Keg, error) {
	breweryID, err := uuid.Parse(req.BreweryID)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "brewery_id must be a valid UUID")
	}
	err = access.Evaluate(access.Request{
		Actor:  actor,
		Action: access.CreateKeg,
		Change: access.Change{BreweryID: &breweryID},
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	keg := &domain.Keg{
		ID:        uuid.New(),
		State:     domain.DefaultKegState,
		CreatedAt: now,
		Version:   1,
	}
	if err := s.apply(ctx, keg, req, breweryID); err != nil {
		return nil, err
	}
	keg.UpdatedAt = now

	if err := s.kegRepo.Create(ctx, keg); err != nil {
		return nil, repoErr(err, domain.ErrKegNotFound, "failed to create keg")
	}

	s.logger.Info("keg created",
		zap.String("keg_id", keg.ID.String()),
		zap.String("brewery_id", breweryID.String()),
		zap.String("state", string(keg.State)),
	)
	return keg, nil
}

// Update replaces the keg record. The row is locked for the duration and a
// history entry is written in the same transaction iff the state changed.
func (s *KegService) Update(ctx context.Context, actor domain.Actor, id uuid.UUID, req KegRequest) (*domain.Keg, error) {
	breweryID, err := uuid.Parse(req.BreweryID)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "brewery_id must be a valid UUID")
	}

	var (
		updated  *domain.Keg
		oldState domain.KegState
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		keg, err := s.kegRepo.GetForUpdate(ctx, id)
		target := &access.Target{ID: id}
		switch {
		case err == nil:
			target = &access.Target{Found: true, ID: keg.ID, BreweryID: &keg.BreweryID}
		case !errors.Is(err, repository.ErrNotFound):
			return internalErr("failed to load keg", err)
		}

		err = access.Evaluate(access.Request{
			Actor:  actor,
			Action: access.UpdateKeg,
			Target: target,
			Change: access.Change{BreweryID: &breweryID},
		})
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != keg.Version {
			return domain.NewError(domain.KindConflict, "keg was modified by another request")
		}

		oldState = keg.State
		if err := s.apply(ctx, keg, req, breweryID); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		keg.UpdatedAt = now

		if err := s.kegRepo.Update(ctx, keg); err != nil {
			return repoErr(err, domain.ErrKegNotFound, "failed to update keg")
		}
		if keg.State != oldState {
			actorID := actor.ID
			entry := &domain.KegStateHistory{
				ID:        uuid.New(),
				KegID:     keg.ID,
				OldState:  oldState,
				NewState:  keg.State,
				ChangedAt: now,
				UserID:    &actorID,
			}
			if err := s.historyRepo.Append(ctx, entry); err != nil {
				return internalErr("failed to record keg history", err)
			}
		}
		updated = keg
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.State != oldState {
		if s.observer != nil {
			s.observer.KegTransition(oldState, updated.State)
		}
		s.logger.Info("keg state changed",
			zap.String("keg_id", updated.ID.String()),
			zap.String("from", string(oldState)),
			zap.String("to", string(updated.State)),
			zap.String("user_id", actor.ID.String()),
		)
	}
	return updated, nil
}

// History lists the keg's state changes. Once the keg is deleted its rows no
// longer carry a brewery, so only a global admin can still read them.
func (s *KegService) History(ctx context.Context, actor domain.Actor, id uuid.UUID) ([]*domain.KegHistoryEntry, error) {
	_, target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	deleted := !target.Found && actor.Role == domain.RoleGlobalAdmin
	if !deleted {
		if err := access.Evaluate(access.Request{Actor: actor, Action: access.ViewKegLog, Target: target}); err != nil {
			return nil, err
		}
	}

	entries, err := s.historyRepo.ListByKeg(ctx, id)
	if err != nil {
		return nil, internalErr("failed to list keg history", err)
	}
	if deleted && len(entries) == 0 {
		return nil, domain.ErrKegNotFound
	}
	return entries, nil
}

// Delete removes the keg. Its history is kept.
func (s *KegService) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	_, target, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Evaluate(access.Request{Actor: actor, Action: access.DeleteKeg, Target: target}); err != nil {
		return err
	}
	if err := s.kegRepo.Delete(ctx, id); err != nil {
		return repoErr(err, domain.ErrKegNotFound, "failed to delete keg")
	}
	s.logger.Info("keg deleted", zap.String("keg_id", id.String()), zap.String("deleted_by", actor.ID.String()))
	return nil
}

func (s *KegService) load(ctx context.Context, id uuid.UUID) (*domain.Keg, *access.Target, error) {
	keg, err := s.kegRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &access.Target{ID: id}, nil
	}
	if err != nil {
		return nil, nil, internalErr("failed to load keg", err)
	}
	return keg, &access.Target{Found: true, ID: keg.ID, BreweryID: &keg.BreweryID}, nil
}

// apply copies req onto keg and checks the references and content bounds.
func (s *KegService) apply(ctx context.Context, keg *domain.Keg, req KegRequest, breweryID uuid.UUID) error {
	if !req.Type.Valid() {
		return domain.NewError(domain.KindValidation, "type has an unknown value")
	}
	if !req.Connector.Valid() {
		return domain.NewError(domain.KindValidation, "connector has an unknown value")
	}
	if req.State != "" && !req.State.Valid() {
		return domain.NewError(domain.KindValidation, "state has an unknown value")
	}

	keg.Name = req.Name
	keg.Type = req.Type
	keg.Connector = req.Connector
	keg.Capacity = req.Capacity
	keg.CurrentContent = req.CurrentContent
	keg.BeerType = req.BeerType
	keg.Location = req.Location
	if req.State != "" {
		keg.State = req.State
	}
	if err := keg.CheckContent(); err != nil {
		return err
	}

	if keg.BreweryID != breweryID {
		if _, err := s.breweryRepo.GetByID(ctx, breweryID); err != nil {
			return repoErr(err, domain.ErrBreweryNotFound, "failed to load brewery")
		}
		keg.BreweryID = breweryID
	}

	assigned, err := parseOptionalID(deref(req.AssignedUserID), "assigned_user_id")
	if err != nil {
		return err
	}
	if assigned != nil {
		user, err := s.userRepo.GetByID(ctx, *assigned)
		if err != nil {
			return repoErr(err, domain.ErrUserNotFound, "failed to load assigned user")
		}
		if !domain.SameBrewery(user.BreweryID, &keg.BreweryID) {
			return domain.NewError(domain.KindValidation, "assigned_user_id must belong to the keg's brewery")
		}
	}
	keg.AssignedUserID = assigned
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
