package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
)

const (
	listWishlistSQL = `SELECT ` + productColumns + `
		FROM wishlist_items w JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1 ORDER BY w.created_at DESC, p.id`

	addWishlistSQL = `INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`

	removeWishlistSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`
)

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by PostgreSQL.
type WishlistRepository struct {
	pool *pgxpool.Pool
}

// NewWishlistRepository returns a WishlistRepository that uses the given pool.
func NewWishlistRepository(pool *pgxpool.Pool) *WishlistRepository {
	return &WishlistRepository{pool: pool}
}

func (r *WishlistRepository) List(ctx context.Context, userID string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *WishlistRepository) Add(ctx context.Context, userID string, productID int64) error {
	if _, err := r.pool.Exec(ctx, addWishlistSQL, userID, productID); err != nil {
		return fmt.Errorf("adding product %d to wishlist of %q: %w", productID, userID, err)
	}
	return nil
}

func (r *WishlistRepository) Remove(ctx context.Context, userID string, productID int64) error {
	tag, err := r.pool.Exec(ctx, removeWishlistSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("removing product %d from wishlist of %q: %w", productID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return wishlist.ErrNotFound
	}
	return nil
}
