package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/outbox"
)

// Sentinel errors for order operations.
var (
	ErrNotFound       = errors.New("order not found")
	ErrIDMismatch     = errors.New("order id in path does not match payload")
	ErrUpdateConflict = errors.New("order was modified concurrently")
	ErrEmptyCart      = errors.New("cart is empty")
)

// InvalidStateError indicates a payload carried an unknown order state.
type InvalidStateError struct {
	State State
}

func (e *InvalidStateError) Error() string {
	return "invalid order state " + string(e.State)
}

// InsufficientStockError indicates checkout would take a product below zero.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// LineItem is an immutable snapshot of one product and quantity in an order.
type LineItem struct {
	ProductID int64
	Quantity  int
	// UnitPrice is the product price at the time the order was placed.
	UnitPrice decimal.Decimal
	// Product is resolved on reads; nil when not loaded.
	Product *product.Product
}

// Order is a persisted, line-itemized purchase record.
type Order struct {
	ID        int64
	UserID    string
	CreatedAt time.Time
	State     State
	Total     decimal.Decimal
	// Version is bumped on every write and guards Replace against lost updates.
	Version int
	Items   []LineItem
}

// Query selects orders for listing. Empty UserID and OwnerID select all orders.
type Query struct {
	// UserID restricts to orders placed by this user.
	UserID string
	// OwnerID restricts to orders holding at least one product owned by this seller.
	OwnerID string
	Filter  Filter
}

// Repository defines read and overwrite operations for orders.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, q Query) ([]Order, error)
	CurrentForUser(ctx context.Context, userID string) (*Order, error)
	Replace(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
}

// Tx is the set of writes that must commit together.
type Tx interface {
	// LockCartLines returns the user's cart lines with products resolved and
	// row-locked. It returns cart.ErrNotFound when the user has no cart.
	LockCartLines(ctx context.Context, userID string) (int64, []cart.Line, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	ClearCart(ctx context.Context, cartID int64) error
	InsertOrder(ctx context.Context, o *Order) error
	// LockOrder loads an order without its items and row-locks it.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	UpdateState(ctx context.Context, id int64, s State) error
	Enqueue(ctx context.Context, e outbox.Event) error
}

// UnitOfWork runs fn inside a single transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
