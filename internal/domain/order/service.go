package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// Service serves order listings and the admin operations on single orders.
type Service struct {
	orders  Repository
	uow     UnitOfWork
	users   auth.Repository
	metrics *Metrics
	now     func() time.Time
}

// NewService creates an order Service. metrics may be nil.
func NewService(orders Repository, uow UnitOfWork, users auth.Repository, metrics *Metrics) *Service {
	return &Service{
		orders:  orders,
		uow:     uow,
		users:   users,
		metrics: metrics,
		now:     time.Now,
	}
}

// ListOrders returns the orders placed by userID.
func (s *Service) ListOrders(ctx context.Context, userID string, f Filter) ([]Order, error) {
	orders, err := s.orders.List(ctx, Query{UserID: userID, Filter: f})
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListAdminOrders returns orders holding at least one product owned by ownerID.
func (s *Service) ListAdminOrders(ctx context.Context, ownerID string, f Filter) ([]Order, error) {
	orders, err := s.orders.List(ctx, Query{OwnerID: ownerID, Filter: f})
	if err != nil {
		return nil, errors.Wrap(err, "list admin orders")
	}
	return orders, nil
}

// ListPending returns every Pending order regardless of owner.
func (s *Service) ListPending(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx, Query{Filter: Filter{State: OnlyPending}})
	if err != nil {
		return nil, errors.Wrap(err, "list pending orders")
	}
	return orders, nil
}

// GetByID returns the order or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id int64) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// GetCurrentOrder returns the user's most recent Pending order or ErrNotFound.
func (s *Service) GetCurrentOrder(ctx context.Context, userID string) (*Order, error) {
	return s.orders.CurrentForUser(ctx, userID)
}

// Exists reports whether an order with id is stored.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.orders.Exists(ctx, id)
}

// Create inserts a raw order. Missing state defaults to Pending and a zero
// date to now; the total is recomputed from the lines when left at zero.
func (s *Service) Create(ctx context.Context, o *Order) error {
	if o.State == "" {
		o.State = StatePending
	}
	if !o.State.Valid() {
		return &InvalidStateError{State: o.State}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	if o.Total.IsZero() {
		o.Total = linesTotal(o.Items)
	}

	return s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		ev, err := newCreatedEvent(o)
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, ev)
	})
}

// Replace overwrites the order stored under pathID, line items included.
// A non-zero Version must match the stored one or ErrUpdateConflict is returned.
func (s *Service) Replace(ctx context.Context, pathID int64, o *Order) error {
	if pathID != o.ID {
		return ErrIDMismatch
	}
	if !o.State.Valid() {
		return &InvalidStateError{State: o.State}
	}
	return s.orders.Replace(ctx, o)
}

// Delete removes the order. A missing id yields ErrNotFound.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.orders.Delete(ctx, id)
}

// Accept moves the order to Accepted.
func (s *Service) Accept(ctx context.Context, id int64) (*Order, error) {
	return s.transition(ctx, id, StateAccepted)
}

// Reject moves the order to Rejected.
func (s *Service) Reject(ctx context.Context, id int64) (*Order, error) {
	return s.transition(ctx, id, StateRejected)
}

// ResetToPending moves the order back to Pending.
func (s *Service) ResetToPending(ctx context.Context, id int64) (*Order, error) {
	return s.transition(ctx, id, StatePending)
}

// transition sets the state unconditionally. Re-applying the current state
// succeeds without a write or an event.
func (s *Service) transition(ctx context.Context, id int64, to State) (*Order, error) {
	var (
		o       *Order
		changed bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from := o.State
		if from == to {
			return nil
		}

		if err := tx.UpdateState(ctx, id, to); err != nil {
			return errors.Wrap(err, "update state")
		}
		ev, err := newStateChangedEvent(id, from, to)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, ev); err != nil {
			return errors.Wrap(err, "enqueue state event")
		}

		o.State = to
		o.Version++
		changed = true
		zctx.From(ctx).Info("Order state changed",
			zap.Int64("order_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.transition(ctx, to)
	}
	return o, nil
}

// Invoice renders the order for printing. An unknown user falls back to the
// user id as name.
func (s *Service) Invoice(ctx context.Context, id int64) (*Invoice, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user := auth.User{ID: o.UserID}
	u, err := s.users.FindByID(ctx, o.UserID)
	switch {
	case err == nil:
		user = *u
	case errors.Is(err, auth.ErrUserNotFound):
	default:
		return nil, errors.Wrapf(err, "find user %q", o.UserID)
	}

	inv := NewInvoice(o, user)
	return &inv, nil
}

func linesTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}
