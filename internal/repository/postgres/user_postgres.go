package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

var userColumns = []string{"id", "email", "password_hash", "role", "active", "brewery_id", "created_at", "updated_at"}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, active, brewery_id, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :role, :active, :brewery_id, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, user); err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, where sq.Sqlizer) (*domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, err
	}

	var u domain.User
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &u, query, args...); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := r.getOne(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := r.getOne(ctx, sq.Eq{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = :email,
			role = :role,
			active = :active,
			brewery_id = :brewery_id,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate(err))
	}
	return expectOne(res)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOne(res)
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", translate(err))
	}
	return expectOne(res)
}

// likeEscaper makes a search term match literally under LIKE's default
// backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func userWhere(filter repository.UserFilter) sq.And {
	where := sq.And{}
	if filter.Search != "" {
		where = append(where, sq.ILike{"email": "%" + likeEscaper.Replace(filter.Search) + "%"})
	}
	if filter.BreweryID != nil {
		where = append(where, sq.Eq{"brewery_id": *filter.BreweryID})
	}
	return where
}

func (r *userRepository) List(ctx context.Context, filter repository.UserFilter, page repository.Page) ([]*domain.User, int, error) {
	where := userWhere(filter)

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("users").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query, args, err := psql.Select(userColumns...).From("users").Where(where).
		OrderBy("created_at DESC", "email").
		Limit(uint64(page.Limit)).Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	users := []*domain.User{}
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) CountByBrewery(ctx context.Context, breweryID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &n, `SELECT COUNT(*) FROM users WHERE brewery_id = $1`, breweryID)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (r *userRepository) GlobalAdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`, domain.RoleGlobalAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check global admin: %w", err)
	}
	return exists, nil
}
