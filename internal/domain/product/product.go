package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	// Quantity is the available stock. It may go negative when checkout runs
	// with the allow_negative inventory policy.
	Quantity int
	// OwnerID identifies the seller that listed the product.
	OwnerID string
	Image   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
