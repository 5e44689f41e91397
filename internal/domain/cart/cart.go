package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrNotFound is returned when the user has no cart yet.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when the product is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrCacheMiss is returned by a Cache when no entry is stored for the user.
	ErrCacheMiss = errors.New("cart cache miss")
)

// Item is one cart line as stored: a product reference and a quantity.
type Item struct {
	CartID    int64 `json:"cart_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Line is a cart item with its product resolved.
type Line struct {
	Item
	Product product.Product `json:"product"`
}

// Subtotal returns quantity times the current unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Count returns the total number of units across lines.
func Count(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Repository defines persistence operations for carts. Mutations return the
// resulting unit count of the whole cart.
type Repository interface {
	GetCart(ctx context.Context, userID string) (int64, error)
	GetItems(ctx context.Context, cartID int64) ([]Line, error)
	AddOne(ctx context.Context, userID string, productID int64) (int, error)
	ReduceOne(ctx context.Context, userID string, productID int64) (int, error)
	Remove(ctx context.Context, userID string, productID int64) (int, error)
	Clear(ctx context.Context, userID string) error
}

// Cache stores resolved cart lines per user.
//
// Writes are fenced by a per-user generation that Delete advances: a reader
// takes Generation before loading from storage and passes it to Set, which
// drops the write when an invalidation happened in between.
type Cache interface {
	Get(ctx context.Context, userID string) ([]Line, error)
	Generation(ctx context.Context, userID string) (int64, error)
	// Set reports false when the write was dropped by the generation fence.
	Set(ctx context.Context, userID string, gen int64, lines []Line) (bool, error)
	Delete(ctx context.Context, userID string) error
}

// NopCache never stores anything; every Get is a miss.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]Line, error) { return nil, ErrCacheMiss }

func (NopCache) Generation(context.Context, string) (int64, error) { return 0, nil }

func (NopCache) Set(context.Context, string, int64, []Line) (bool, error) { return true, nil }

func (NopCache) Delete(context.Context, string) error { return nil }
