package order

import (
	"context"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/outbox"
)

// memState is the data a memStore transaction works on.
type memState struct {
	products map[int64]product.Product
	carts    map[string]int64
	items    map[int64][]cart.Item
	orders   map[int64]Order
	events   []outbox.Event
	nextID   int64
}

func (s memState) clone() memState {
	c := memState{
		products: maps.Clone(s.products),
		carts:    maps.Clone(s.carts),
		items:    make(map[int64][]cart.Item, len(s.items)),
		orders:   maps.Clone(s.orders),
		events:   slices.Clone(s.events),
		nextID:   s.nextID,
	}
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	return c
}

// memStore is an in-memory UnitOfWork. Changes made inside Do become visible
// only when fn returns nil.
type memStore struct {
	state memState
	// failOn makes the named Tx method fail.
	failOn string
	err    error
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		products: map[int64]product.Product{},
		carts:    map[string]int64{},
		items:    map[int64][]cart.Item{},
		orders:   map[int64]Order{},
		nextID:   1,
	}}
}

func (m *memStore) addProduct(id int64, price string, qty int) {
	m.state.products[id] = product.Product{
		ID:       id,
		Name:     "product",
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		OwnerID:  "seller",
	}
}

func (m *memStore) addCartLine(userID string, cartID, productID int64, qty int) {
	m.state.carts[userID] = cartID
	m.state.items[cartID] = append(m.state.items[cartID], cart.Item{CartID: cartID, ProductID: productID, Quantity: qty})
}

func (m *memStore) Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

type memTx struct {
	store *memStore
	state memState
}

func (t *memTx) fail(method string) error {
	if t.store.failOn == method {
		return t.store.err
	}
	return nil
}

func (t *memTx) LockCartLines(_ context.Context, userID string) (int64, []cart.Line, error) {
	if err := t.fail("LockCartLines"); err != nil {
		return 0, nil, err
	}
	cartID, ok := t.state.carts[userID]
	if !ok {
		return 0, nil, cart.ErrNotFound
	}
	var lines []cart.Line
	for _, it := range t.state.items[cartID] {
		lines = append(lines, cart.Line{Item: it, Product: t.state.products[it.ProductID]})
	}
	return cartID, lines, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	if err := t.fail("DecrementStock"); err != nil {
		return err
	}
	p := t.state.products[productID]
	p.Quantity -= qty
	t.state.products[productID] = p
	return nil
}

func (t *memTx) ClearCart(_ context.Context, cartID int64) error {
	if err := t.fail("ClearCart"); err != nil {
		return err
	}
	delete(t.state.items, cartID)
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	o.ID = t.state.nextID
	o.Version = 1
	t.state.nextID++
	t.state.orders[o.ID] = *o
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (*Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) UpdateState(_ context.Context, id int64, s State) error {
	if err := t.fail("UpdateState"); err != nil {
		return err
	}
	o := t.state.orders[id]
	o.State = s
	o.Version++
	t.state.orders[id] = o
	return nil
}

func (t *memTx) Enqueue(_ context.Context, e outbox.Event) error {
	if err := t.fail("Enqueue"); err != nil {
		return err
	}
	t.state.events = append(t.state.events, e)
	return nil
}

// memRepo serves Repository reads from a memStore.
type memRepo struct {
	store     *memStore
	lastQuery Query
	err       error
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	o, ok := r.store.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *memRepo) List(_ context.Context, q Query) ([]Order, error) {
	r.lastQuery = q
	if r.err != nil {
		return nil, r.err
	}
	want, filtered := q.Filter.State.State()
	var out []Order
	for _, id := range slices.Sorted(maps.Keys(r.store.state.orders)) {
		o := r.store.state.orders[id]
		if filtered && o.State != want {
			continue
		}
		if q.UserID != "" && o.UserID != q.UserID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *memRepo) CurrentForUser(context.Context, string) (*Order, error) {
	return nil, ErrNotFound
}

func (r *memRepo) Replace(_ context.Context, o *Order) error {
	cur, ok := r.store.state.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if o.Version != 0 && o.Version != cur.Version {
		return ErrUpdateConflict
	}
	o.Version = cur.Version + 1
	r.store.state.orders[o.ID] = *o
	return nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.store.state.orders[id]; !ok {
		return ErrNotFound
	}
	delete(r.store.state.orders, id)
	return nil
}

func (r *memRepo) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := r.store.state.orders[id]
	return ok, nil
}

type mockUsers struct {
	users map[string]auth.User
	err   error
}

func (m *mockUsers) FindByID(_ context.Context, id string) (*auth.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

type mockInvalidator struct {
	users []string
}

func (m *mockInvalidator) Invalidate(_ context.Context, userID string) {
	m.users = append(m.users, userID)
}

// countingCounter records the sum of Add calls.
type countingCounter struct {
	metricnoop.Int64Counter
	n int64
}

func (c *countingCounter) Add(_ context.Context, incr int64, _ ...metric.AddOption) {
	c.n += incr
}
