package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	orderColumns = `o.id, o.user_id, o.created_at, o.state, o.total_price, o.version`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	currentOrderSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.user_id = $1 AND o.state = 'Pending'
		ORDER BY o.created_at DESC, o.id DESC LIMIT 1`

	orderItemsSQL = `SELECT oi.order_id, oi.product_id, oi.quantity, oi.unit_price, ` + productColumns + `
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1) ORDER BY oi.order_id, oi.product_id`

	insertOrderSQL = `INSERT INTO orders (user_id, created_at, state, total_price)
		VALUES ($1, $2, $3, $4) RETURNING id, version`

	replaceOrderSQL = `UPDATE orders
		SET user_id = $2, created_at = COALESCE($3, created_at), state = $4, total_price = $5, version = version + 1
		WHERE id = $1 AND ($6 = 0 OR version = $6)
		RETURNING version`

	deleteOrderItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns the order with items and products, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// CurrentForUser returns the user's most recent Pending order.
func (r *OrderRepository) CurrentForUser(ctx context.Context, userID string) (*order.Order, error) {
	return r.one(ctx, currentOrderSQL, userID)
}

// List returns the orders selected by q, items included.
func (r *OrderRepository) List(ctx context.Context, q order.Query) ([]order.Order, error) {
	sql, args := listOrdersQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := attachItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Replace overwrites the order row and its items. A zero Version skips the
// optimistic check.
func (r *OrderRepository) Replace(ctx context.Context, o *order.Order) error {
	var createdAt *time.Time
	if !o.CreatedAt.IsZero() {
		createdAt = &o.CreatedAt
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var version int
		err := tx.QueryRow(ctx, replaceOrderSQL,
			o.ID, o.UserID, createdAt, string(o.State), o.Total, o.Version,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
				return fmt.Errorf("checking order %d: %w", o.ID, err)
			}
			if exists {
				return order.ErrUpdateConflict
			}
			return order.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("replacing order %d: %w", o.ID, err)
		}

		if _, err := tx.Exec(ctx, deleteOrderItemsSQL, o.ID); err != nil {
			return fmt.Errorf("deleting items of order %d: %w", o.ID, err)
		}
		if err := insertItems(ctx, tx, o.ID, o.Items); err != nil {
			return err
		}
		o.Version = version
		return nil
	})
}

// Delete removes the order and its items, or returns order.ErrNotFound.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Exists reports whether the order is stored.
func (r *OrderRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order %d: %w", id, err)
	}
	return exists, nil
}

func (r *OrderRepository) one(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	orders := []order.Order{o}
	if err := attachItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// listOrdersQuery renders the listing SQL for q. Default ordering is by id
// so results are stable.
func listOrdersQuery(q order.Query) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		where []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString(`SELECT ` + orderColumns + ` FROM orders o`)
	if q.UserID != "" {
		where = append(where, "o.user_id = "+arg(q.UserID))
	}
	if q.OwnerID != "" {
		where = append(where, `EXISTS (SELECT 1 FROM order_items oi JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = o.id AND p.owner_id = `+arg(q.OwnerID)+`)`)
	}
	if s, ok := q.Filter.State.State(); ok {
		where = append(where, "o.state = "+arg(string(s)))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	switch q.Filter.Date {
	case order.SortNewest:
		b.WriteString(" ORDER BY o.created_at DESC, o.id DESC")
	case order.SortOldest:
		b.WriteString(" ORDER BY o.created_at ASC, o.id ASC")
	default:
		b.WriteString(" ORDER BY o.id ASC")
	}
	return b.String(), args
}

// attachItems loads the items of orders in one query and assigns them in place.
func attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []order.LineItem{}
	}

	rows, err := q.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	for _, it := range items {
		i := index[it.orderID]
		orders[i].Items = append(orders[i].Items, it.LineItem)
	}
	return nil
}

func insertItems(ctx context.Context, q querier, orderID int64, items []order.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "product_id", "quantity", "unit_price"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{orderID, it.ProductID, it.Quantity, it.UnitPrice}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("inserting items of order %d: %w", orderID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		state string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.CreatedAt, &state, &o.Total, &o.Version)
	o.State = order.State(state)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}

type orderItemRow struct {
	orderID int64
	order.LineItem
}

func scanOrderItem(row pgx.CollectableRow) (orderItemRow, error) {
	var (
		it orderItemRow
		p  product.Product
	)
	err := row.Scan(
		&it.orderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
		&p.ID, &p.Name, &p.Price, &p.Quantity, &p.OwnerID, &p.Image,
	)
	it.Product = &p
	return it, err
}
