package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
)

type UserFilter struct {
	Search    string
	BreweryID *uuid.UUID
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter UserFilter, page Page) ([]*domain.User, int, error)
	CountByBrewery(ctx context.Context, breweryID uuid.UUID) (int, error)
	GlobalAdminExists(ctx context.Context) (bool, error)
}
