package handler

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
)

type mockOrders struct {
	orders map[int64]*order.Order
	err    error

	lastFilter order.Filter
	lastUser   string
	created    *order.Order
	replaced   *order.Order
}

func newMockOrders(orders ...order.Order) *mockOrders {
	m := &mockOrders{orders: make(map[int64]*order.Order)}
	for i := range orders {
		m.orders[orders[i].ID] = &orders[i]
	}
	return m
}

func (m *mockOrders) list(user string, f order.Filter) ([]order.Order, error) {
	m.lastUser, m.lastFilter = user, f
	if m.err != nil {
		return nil, m.err
	}
	var out []order.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrders) ListOrders(_ context.Context, userID string, f order.Filter) ([]order.Order, error) {
	return m.list(userID, f)
}

func (m *mockOrders) ListAdminOrders(_ context.Context, ownerID string, f order.Filter) ([]order.Order, error) {
	return m.list(ownerID, f)
}

func (m *mockOrders) ListPending(context.Context) ([]order.Order, error) {
	return m.list("", order.Filter{State: order.OnlyPending})
}

func (m *mockOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) GetCurrentOrder(_ context.Context, userID string) (*order.Order, error) {
	m.lastUser = userID
	for _, o := range m.orders {
		if o.UserID == userID && o.State == order.StatePending {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	if m.err != nil {
		return m.err
	}
	o.ID = 100
	m.created = o
	return nil
}

func (m *mockOrders) Replace(_ context.Context, pathID int64, o *order.Order) error {
	if pathID != o.ID {
		return order.ErrIDMismatch
	}
	if m.err != nil {
		return m.err
	}
	m.replaced = o
	return nil
}

func (m *mockOrders) Delete(_ context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *mockOrders) set(id int64, s order.State) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.State = s
	return o, nil
}

func (m *mockOrders) Accept(_ context.Context, id int64) (*order.Order, error) {
	return m.set(id, order.StateAccepted)
}

func (m *mockOrders) Reject(_ context.Context, id int64) (*order.Order, error) {
	return m.set(id, order.StateRejected)
}

func (m *mockOrders) ResetToPending(_ context.Context, id int64) (*order.Order, error) {
	return m.set(id, order.StatePending)
}

func (m *mockOrders) Invoice(ctx context.Context, id int64) (*order.Invoice, error) {
	o, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	inv := order.NewInvoice(o, auth.User{ID: o.UserID, UserName: "alice"})
	return &inv, nil
}

type mockCheckout struct {
	order *order.Order
	err   error
}

func (m *mockCheckout) Checkout(_ context.Context, caller *auth.Identity) (*order.Order, error) {
	if caller == nil {
		return nil, auth.ErrUnauthorized
	}
	if m.err != nil {
		return nil, m.err
	}
	o := *m.order
	o.UserID = caller.UserID()
	return &o, nil
}

type mockCarts struct {
	lines map[string][]cart.Line
	err   error
}

func (m *mockCarts) List(_ context.Context, userID string) ([]cart.Line, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.lines[userID], nil
}

func (m *mockCarts) mutate(userID string, productID int64, delta int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if productID == 404 {
		return 0, product.ErrNotFound
	}
	lines := m.lines[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += delta
			return cart.Count(lines), nil
		}
	}
	if delta < 0 {
		return 0, cart.ErrItemNotFound
	}
	m.lines[userID] = append(lines, cart.Line{Item: cart.Item{ProductID: productID, Quantity: delta}})
	return cart.Count(m.lines[userID]), nil
}

func (m *mockCarts) Add(_ context.Context, userID string, productID int64) (int, error) {
	return m.mutate(userID, productID, 1)
}

func (m *mockCarts) Reduce(_ context.Context, userID string, productID int64) (int, error) {
	return m.mutate(userID, productID, -1)
}

func (m *mockCarts) Remove(_ context.Context, userID string, productID int64) (int, error) {
	return m.mutate(userID, productID, -1000)
}

func (m *mockCarts) Clear(_ context.Context, userID string) error {
	delete(m.lines, userID)
	return m.err
}

type mockWishlist struct {
	items map[string][]product.Product
}

func (m *mockWishlist) List(_ context.Context, userID string) ([]product.Product, error) {
	return m.items[userID], nil
}

func (m *mockWishlist) Add(_ context.Context, userID string, productID int64) error {
	if productID == 404 {
		return product.ErrNotFound
	}
	m.items[userID] = append(m.items[userID], product.Product{ID: productID})
	return nil
}

func (m *mockWishlist) Remove(_ context.Context, userID string, productID int64) error {
	items := m.items[userID]
	for i, p := range items {
		if p.ID == productID {
			m.items[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return errors.Wrap(wishlist.ErrNotFound, "remove")
}

type mockProducts struct {
	products []product.Product
	err      error
}

func (m *mockProducts) List(context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, err := m.GetByID(context.Background(), id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// tokenResolver treats the bearer token as the user id.
type tokenResolver struct{}

func (tokenResolver) Resolve(_ context.Context, header string) (auth.Identity, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) {
		return auth.Identity{}, auth.ErrNoCredential
	}
	id := header[len(prefix):]
	if id == "unknown" {
		return auth.Identity{}, auth.ErrUserNotFound
	}
	return auth.Identity{User: auth.User{ID: id, UserName: id}}, nil
}

var testDate = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testProduct(id int64, name, price string, qty int) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		OwnerID:  "seller-1",
		Image:    name + ".png",
	}
}

func testOrder(id int64, userID string, state order.State) order.Order {
	a := testProduct(1, "A", "10.00", 3)
	return order.Order{
		ID:        id,
		UserID:    userID,
		CreatedAt: testDate,
		State:     state,
		Total:     decimal.RequireFromString("20.00"),
		Version:   1,
		Items: []order.LineItem{
			{ProductID: 1, Quantity: 2, UnitPrice: a.Price, Product: &a},
		},
	}
}
