package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
)

type BreweryRepository interface {
	Create(ctx context.Context, brewery *domain.Brewery) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Brewery, error)
	List(ctx context.Context) ([]*domain.Brewery, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}
