package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
)

// InventoryPolicy decides what checkout does when a line exceeds stock.
type InventoryPolicy string

const (
	// InventoryReject fails checkout with InsufficientStockError.
	InventoryReject InventoryPolicy = "reject"
	// InventoryAllowNegative decrements stock below zero.
	InventoryAllowNegative InventoryPolicy = "allow_negative"
)

// CheckoutConfig holds the checkout policies.
type CheckoutConfig struct {
	Inventory InventoryPolicy
	// ClearCart empties the cart in the checkout transaction.
	ClearCart bool
	// AllowEmpty lets a cart without lines produce a zero-total order.
	AllowEmpty bool
}

// DefaultCheckoutConfig rejects oversell, clears the cart and accepts empty carts.
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Inventory:  InventoryReject,
		ClearCart:  true,
		AllowEmpty: true,
	}
}

// CartInvalidator drops cached cart state after the cart changed in storage.
type CartInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Checkout converts a user's cart into a Pending order.
type Checkout struct {
	uow     UnitOfWork
	carts   CartInvalidator
	cfg     CheckoutConfig
	metrics *Metrics
	now     func() time.Time
}

// NewCheckout creates a Checkout. carts and metrics may be nil.
func NewCheckout(uow UnitOfWork, carts CartInvalidator, cfg CheckoutConfig, metrics *Metrics) *Checkout {
	if cfg.Inventory == "" {
		cfg.Inventory = InventoryReject
	}
	return &Checkout{
		uow:     uow,
		carts:   carts,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

// Checkout snapshots the caller's cart into a Pending order. Stock decrement,
// order insert, cart clearing and the order.created event commit together or
// not at all. A nil caller yields auth.ErrUnauthorized.
func (c *Checkout) Checkout(ctx context.Context, caller *auth.Identity) (*Order, error) {
	if caller == nil {
		return nil, auth.ErrUnauthorized
	}
	userID := caller.UserID()

	var created *Order
	err := c.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		cartID, lines, err := tx.LockCartLines(ctx, userID)
		switch {
		case errors.Is(err, cart.ErrNotFound):
			cartID, lines = 0, nil
		case err != nil:
			return errors.Wrap(err, "lock cart")
		}
		if len(lines) == 0 && !c.cfg.AllowEmpty {
			return ErrEmptyCart
		}

		o, err := c.snapshot(ctx, tx, userID, lines)
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		ev, err := newCreatedEvent(o)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, ev); err != nil {
			return errors.Wrap(err, "enqueue order event")
		}

		if c.cfg.ClearCart && cartID != 0 {
			if err := tx.ClearCart(ctx, cartID); err != nil {
				return errors.Wrap(err, "clear cart")
			}
		}
		created = o
		return nil
	})
	c.metrics.checkout(ctx, err)
	if err != nil {
		return nil, err
	}

	if c.cfg.ClearCart && c.carts != nil {
		c.carts.Invalidate(ctx, userID)
	}
	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", created.ID),
		zap.String("user_id", userID),
		zap.Int("lines", len(created.Items)),
		zap.String("total", created.Total.StringFixed(2)),
	)
	return created, nil
}

// snapshot decrements stock for every line and builds the order with unit
// prices frozen at their current values.
func (c *Checkout) snapshot(ctx context.Context, tx Tx, userID string, lines []cart.Line) (*Order, error) {
	o := &Order{
		UserID:    userID,
		CreatedAt: c.now().UTC(),
		State:     StatePending,
		Items:     make([]LineItem, 0, len(lines)),
	}

	total := decimal.Zero
	for _, l := range lines {
		if c.cfg.Inventory == InventoryReject && l.Quantity > l.Product.Quantity {
			return nil, &InsufficientStockError{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: l.Product.Quantity,
			}
		}
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, errors.Wrapf(err, "decrement stock of product %d", l.ProductID)
		}

		p := l.Product
		p.Quantity -= l.Quantity
		o.Items = append(o.Items, LineItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.Product.Price,
			Product:   &p,
		})
		total = total.Add(l.Subtotal())
	}
	o.Total = total.Round(2)
	return o, nil
}
