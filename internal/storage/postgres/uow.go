package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/outbox"
)

const (
	lockCartSQL = `SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`

	// Rows are locked in product id order so concurrent checkouts sharing
	// products cannot deadlock.
	lockCartLinesSQL = cartLinesSQL + ` FOR UPDATE OF ci, p`

	decrementStockSQL = `UPDATE products SET quantity = quantity - $2 WHERE id = $1`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1 FOR UPDATE`

	updateStateSQL = `UPDATE orders SET state = $2, version = version + 1 WHERE id = $1`

	enqueueSQL = `INSERT INTO outbox (event_id, key, event_type, payload) VALUES ($1, $2, $3, $4)`
)

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs order writes in a single PostgreSQL transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that uses the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do begins a transaction, runs fn and commits when fn succeeds.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) LockCartLines(ctx context.Context, userID string) (int64, []cart.Line, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, lockCartSQL, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, cart.ErrNotFound
		}
		return 0, nil, fmt.Errorf("locking cart of %q: %w", userID, err)
	}
	lines, err := cartLines(ctx, t.tx, lockCartLinesSQL, id)
	if err != nil {
		return 0, nil, err
	}
	return id, lines, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if _, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty); err != nil {
		return fmt.Errorf("decrementing product %d: %w", productID, err)
	}
	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := t.tx.Exec(ctx, clearCartSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %d: %w", cartID, err)
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.CreatedAt, string(o.State), o.Total).
		Scan(&o.ID, &o.Version)
	if err != nil {
		return fmt.Errorf("creating order of %q: %w", o.UserID, err)
	}
	return insertItems(ctx, t.tx, o.ID, o.Items)
}

func (t *orderTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, lockOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := attachItems(ctx, t.tx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (t *orderTx) UpdateState(ctx context.Context, id int64, s order.State) error {
	if _, err := t.tx.Exec(ctx, updateStateSQL, id, string(s)); err != nil {
		return fmt.Errorf("updating state of order %d: %w", id, err)
	}
	return nil
}

func (t *orderTx) Enqueue(ctx context.Context, e outbox.Event) error {
	if _, err := t.tx.Exec(ctx, enqueueSQL, e.EventID, e.Key, e.Type, []byte(e.Payload)); err != nil {
		return fmt.Errorf("enqueueing %s event: %w", e.Type, err)
	}
	return nil
}
