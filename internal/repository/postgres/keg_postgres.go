package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

type kegRepository struct {
	db *sqlx.DB
}

func NewKegRepository(db *sqlx.DB) repository.KegRepository {
	return &kegRepository{db: db}
}

var kegColumns = []string{
	"id", "name", "type", "connector", "capacity", "current_content", "beer_type", "state",
	"brewery_id", "location", "assigned_user_id", "version", "created_at", "updated_at",
}

func (r *kegRepository) Create(ctx context.Context, keg *domain.Keg) error {
	query := `
		INSERT INTO kegs (
			id, name, type, connector, capacity, current_content, beer_type, state,
			brewery_id, location, assigned_user_id, version, created_at, updated_at
		) VALUES (
			:id, :name, :type, :connector, :capacity, :current_content, :beer_type, :state,
			:brewery_id, :location, :assigned_user_id, :version, :created_at, :updated_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, keg); err != nil {
		return fmt.Errorf("failed to create keg: %w", translate(err))
	}
	return nil
}

func (r *kegRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Keg, error) {
	b := psql.Select(kegColumns...).From("kegs").Where(sq.Eq{"id": id})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var k domain.Keg
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &k, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get keg: %w", translate(err))
	}
	return &k, nil
}

func (r *kegRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Keg, error) {
	return r.get(ctx, id, false)
}

func (r *kegRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Keg, error) {
	return r.get(ctx, id, true)
}

func (r *kegRepository) Update(ctx context.Context, keg *domain.Keg) error {
	query := `
		UPDATE kegs
		SET name = :name,
			type = :type,
			connector = :connector,
			capacity = :capacity,
			current_content = :current_content,
			beer_type = :beer_type,
			state = :state,
			brewery_id = :brewery_id,
			location = :location,
			assigned_user_id = :assigned_user_id,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, keg)
	if err != nil {
		return fmt.Errorf("failed to update keg: %w", translate(err))
	}
	if err := expectOne(res); err != nil {
		return err
	}
	keg.Version++
	return nil
}

func (r *kegRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM kegs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete keg: %w", err)
	}
	return expectOne(res)
}

func (r *kegRepository) List(ctx context.Context, filter repository.KegFilter, page repository.Page) ([]*domain.Keg, error) {
	b := psql.Select(kegColumns...).From("kegs")
	if filter.BreweryID != nil {
		b = b.Where(sq.Eq{"brewery_id": *filter.BreweryID})
	}
	if filter.State != nil {
		b = b.Where(sq.Eq{"state": *filter.State})
	}

	query, args, err := b.OrderBy("created_at", "id").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	kegs := []*domain.Keg{}
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &kegs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list kegs: %w", err)
	}
	return kegs, nil
}

func (r *kegRepository) CountByBrewery(ctx context.Context, breweryID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &n, `SELECT COUNT(*) FROM kegs WHERE brewery_id = $1`, breweryID)
	if err != nil {
		return 0, fmt.Errorf("failed to count kegs: %w", err)
	}
	return n, nil
}

type kegHistoryRepository struct {
	db *sqlx.DB
}

func NewKegHistoryRepository(db *sqlx.DB) repository.KegHistoryRepository {
	return &kegHistoryRepository{db: db}
}

func (r *kegHistoryRepository) Append(ctx context.Context, entry *domain.KegStateHistory) error {
	query := `
		INSERT INTO keg_state_history (id, keg_id, old_state, new_state, changed_at, user_id)
		VALUES (:id, :keg_id, :old_state, :new_state, :changed_at, :user_id)`

	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, entry); err != nil {
		return fmt.Errorf("failed to append keg history: %w", translate(err))
	}
	return nil
}

func (r *kegHistoryRepository) ListByKeg(ctx context.Context, kegID uuid.UUID) ([]*domain.KegHistoryEntry, error) {
	query := `
		SELECT h.old_state, h.new_state, h.changed_at, u.email AS user_email
		FROM keg_state_history h
		LEFT JOIN users u ON u.id = h.user_id
		WHERE h.keg_id = $1
		ORDER BY h.changed_at DESC, h.seq DESC`

	entries := []*domain.KegHistoryEntry{}
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &entries, query, kegID); err != nil {
		return nil, fmt.Errorf("failed to list keg history: %w", err)
	}
	return entries, nil
}
