package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	getCartSQL = `SELECT id FROM carts WHERE user_id = $1`

	ensureCartSQL = `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`

	cartLinesSQL = `SELECT ci.cart_id, ci.product_id, ci.quantity, ` + productColumns + `
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 ORDER BY ci.product_id`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	addCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, 1)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + 1`

	dropLastUnitSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2 AND quantity = 1`

	reduceCartItemSQL = `UPDATE cart_items SET quantity = quantity - 1 WHERE cart_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartByUserSQL = `DELETE FROM cart_items ci USING carts c WHERE ci.cart_id = c.id AND c.user_id = $1`

	countCartSQL = `SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE cart_id = $1`
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetCart returns the cart id of the user or cart.ErrNotFound.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (int64, error) {
	return cartID(ctx, r.pool, userID)
}

// GetItems returns the cart lines with products resolved.
func (r *CartRepository) GetItems(ctx context.Context, cartID int64) ([]cart.Line, error) {
	return cartLines(ctx, r.pool, cartLinesSQL, cartID)
}

// AddOne adds one unit, creating the cart and line as needed.
func (r *CartRepository) AddOne(ctx context.Context, userID string, productID int64) (int, error) {
	var count int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, productExistsSQL, productID).Scan(&exists); err != nil {
			return fmt.Errorf("checking product %d: %w", productID, err)
		}
		if !exists {
			return product.ErrNotFound
		}

		var id int64
		if err := tx.QueryRow(ctx, ensureCartSQL, userID).Scan(&id); err != nil {
			return fmt.Errorf("ensuring cart of %q: %w", userID, err)
		}
		if _, err := tx.Exec(ctx, addCartItemSQL, id, productID); err != nil {
			return fmt.Errorf("adding product %d to cart %d: %w", productID, id, err)
		}

		var err error
		count, err = countItems(ctx, tx, id)
		return err
	})
	return count, err
}

// ReduceOne removes one unit; the line is deleted when its last unit goes.
func (r *CartRepository) ReduceOne(ctx context.Context, userID string, productID int64) (int, error) {
	return r.mutateLine(ctx, userID, productID, func(tx pgx.Tx, id int64) (int64, error) {
		tag, err := tx.Exec(ctx, dropLastUnitSQL, id, productID)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() > 0 {
			return 1, nil
		}
		tag, err = tx.Exec(ctx, reduceCartItemSQL, id, productID)
		return tag.RowsAffected(), err
	})
}

// Remove deletes the whole line.
func (r *CartRepository) Remove(ctx context.Context, userID string, productID int64) (int, error) {
	return r.mutateLine(ctx, userID, productID, func(tx pgx.Tx, id int64) (int64, error) {
		tag, err := tx.Exec(ctx, removeCartItemSQL, id, productID)
		return tag.RowsAffected(), err
	})
}

// Clear removes every line from the user's cart. The cart row stays.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartByUserSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

// mutateLine runs fn on the user's cart and returns the new unit count.
// fn reports the affected rows; zero means the line was absent.
func (r *CartRepository) mutateLine(
	ctx context.Context,
	userID string,
	productID int64,
	fn func(tx pgx.Tx, cartID int64) (int64, error),
) (int, error) {
	var count int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		id, err := cartID(ctx, tx, userID)
		if errors.Is(err, cart.ErrNotFound) {
			return cart.ErrItemNotFound
		}
		if err != nil {
			return err
		}

		affected, err := fn(tx, id)
		if err != nil {
			return fmt.Errorf("updating product %d in cart %d: %w", productID, id, err)
		}
		if affected == 0 {
			return cart.ErrItemNotFound
		}

		count, err = countItems(ctx, tx, id)
		return err
	})
	return count, err
}

func cartID(ctx context.Context, q querier, userID string) (int64, error) {
	var id int64
	if err := q.QueryRow(ctx, getCartSQL, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, cart.ErrNotFound
		}
		return 0, fmt.Errorf("getting cart of %q: %w", userID, err)
	}
	return id, nil
}

func cartLines(ctx context.Context, q querier, sql string, cartID int64) ([]cart.Line, error) {
	rows, err := q.Query(ctx, sql, cartID)
	if err != nil {
		return nil, fmt.Errorf("getting items of cart %d: %w", cartID, err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

func countItems(ctx context.Context, q querier, cartID int64) (int, error) {
	var n int
	if err := q.QueryRow(ctx, countCartSQL, cartID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cart %d: %w", cartID, err)
	}
	return n, nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	p := &l.Product
	err := row.Scan(
		&l.CartID, &l.ProductID, &l.Quantity,
		&p.ID, &p.Name, &p.Price, &p.Quantity, &p.OwnerID, &p.Image,
	)
	return l, err
}
