package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

type breweryRepository struct {
	db *sqlx.DB
}

func NewBreweryRepository(db *sqlx.DB) repository.BreweryRepository {
	return &breweryRepository{db: db}
}

const breweryColumns = `id, name, active, created_at, updated_at`

func (r *breweryRepository) Create(ctx context.Context, brewery *domain.Brewery) error {
	query := `
		INSERT INTO breweries (id, name, active, created_at, updated_at)
		VALUES (:id, :name, :active, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, brewery); err != nil {
		return fmt.Errorf("failed to create brewery: %w", translate(err))
	}
	return nil
}

func (r *breweryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Brewery, error) {
	var b domain.Brewery
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &b, `SELECT `+breweryColumns+` FROM breweries WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get brewery: %w", translate(err))
	}
	return &b, nil
}

func (r *breweryRepository) List(ctx context.Context) ([]*domain.Brewery, error) {
	breweries := []*domain.Brewery{}
	err := sqlx.SelectContext(ctx, conn(ctx, r.db), &breweries, `SELECT `+breweryColumns+` FROM breweries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list breweries: %w", err)
	}
	return breweries, nil
}

func (r *breweryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE breweries SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update brewery: %w", err)
	}
	return expectOne(res)
}

func (r *breweryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM breweries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete brewery: %w", translate(err))
	}
	return expectOne(res)
}
