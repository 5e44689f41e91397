package order

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/outbox"
)

// Event types written to the outbox.
const (
	EventCreated      = "order.created"
	EventStateChanged = "order.state_changed"
)

type createdEventItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createdEvent struct {
	OrderID   int64              `json:"order_id"`
	UserID    string             `json:"user_id"`
	State     State              `json:"state"`
	Total     decimal.Decimal    `json:"total"`
	CreatedAt time.Time          `json:"created_at"`
	Items     []createdEventItem `json:"items"`
}

type stateChangedEvent struct {
	OrderID int64 `json:"order_id"`
	From    State `json:"from"`
	To      State `json:"to"`
}

func newCreatedEvent(o *Order) (outbox.Event, error) {
	items := make([]createdEventItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = createdEventItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return outbox.NewEvent(EventCreated, eventKey(o.ID), createdEvent{
		OrderID:   o.ID,
		UserID:    o.UserID,
		State:     o.State,
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
		Items:     items,
	})
}

func newStateChangedEvent(id int64, from, to State) (outbox.Event, error) {
	return outbox.NewEvent(EventStateChanged, eventKey(id), stateChangedEvent{
		OrderID: id,
		From:    from,
		To:      to,
	})
}

// Events are keyed by order id so a partition sees one order's history in order.
func eventKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
