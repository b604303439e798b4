package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
)

type KegFilter struct {
	BreweryID *uuid.UUID
	State     *domain.KegState
}

type KegRepository interface {
	Create(ctx context.Context, keg *domain.Keg) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Keg, error)
	// GetForUpdate locks the keg row for the rest of the enclosing transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Keg, error)
	// Update writes every mutable column and bumps Version.
	Update(ctx context.Context, keg *domain.Keg) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter KegFilter, page Page) ([]*domain.Keg, error)
	CountByBrewery(ctx context.Context, breweryID uuid.UUID) (int, error)
}

// KegHistoryRepository is append-only.
type KegHistoryRepository interface {
	Append(ctx context.Context, entry *domain.KegStateHistory) error
	// ListByKeg returns entries newest first with the acting user's current email.
	ListByKeg(ctx context.Context, kegID uuid.UUID) ([]*domain.KegHistoryEntry, error)
}
