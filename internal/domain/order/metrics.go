package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts checkouts and state transitions. A nil *Metrics records nothing.
type Metrics struct {
	orders      metric.Int64Counter
	failures    metric.Int64Counter
	transitions metric.Int64Counter
}

// NewMetrics registers the order instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	orders, err := meter.Int64Counter("shop.checkout.orders",
		metric.WithDescription("Orders placed through checkout"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	failures, err := meter.Int64Counter("shop.checkout.failures",
		metric.WithDescription("Failed checkouts by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}
	transitions, err := meter.Int64Counter("shop.order.transitions",
		metric.WithDescription("Order state transitions by target state"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	return &Metrics{orders: orders, failures: failures, transitions: transitions}, nil
}

func (m *Metrics) checkout(ctx context.Context, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.orders.Add(ctx, 1)
		return
	}

	reason := "error"
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &stock):
		reason = "insufficient_stock"
	case errors.Is(err, ErrEmptyCart):
		reason = "empty_cart"
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) transition(ctx context.Context, to State) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(to))))
}
