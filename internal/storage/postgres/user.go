package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	findUserSQL = `SELECT id, user_name, email FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, user_name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET user_name = EXCLUDED.user_name, email = EXCLUDED.email`
)

var _ auth.Repository = (*UserRepository)(nil)

// UserRepository provides user lookups backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByID looks up a user by identity-provider subject.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	var u auth.User
	err := r.pool.QueryRow(ctx, findUserSQL, id).Scan(&u.ID, &u.UserName, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user %q: %w", id, err)
	}
	return &u, nil
}

// Upsert inserts the user or refreshes its name and email.
func (r *UserRepository) Upsert(ctx context.Context, u auth.User) error {
	if _, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.UserName, u.Email); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}
