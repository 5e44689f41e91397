package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

func queryFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	return order.ParseFilter(q.Get("state"), q.Get("date"))
}

// Checkout places an order from the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var caller *auth.Identity
	if id, ok := auth.FromContext(r.Context()); ok {
		caller = &id
	}

	o, err := h.checkout.Checkout(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// GetCurrentOrder returns the caller's latest pending order.
func (h *Handler) GetCurrentOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.GetCurrentOrder(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// ListOrders lists the caller's orders, filtered by ?state= and ?date=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, h.orders.ListOrders)
}

// ListAdminOrders lists orders containing products the caller sells.
func (h *Handler) ListAdminOrders(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, h.orders.ListAdminOrders)
}

func (h *Handler) listFiltered(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, id string, f order.Filter) ([]order.Order, error),
) {
	f, err := queryFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := list(r.Context(), userID, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

// ListPendingOrders lists every pending order.
func (h *Handler) ListPendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListPending(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

// GetOrder returns one order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// GetInvoice returns the printable invoice of an order.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.orders.Invoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInvoice(e, inv) })
}

// CreateOrder stores a raw order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := decodeOrder(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.orders.Create(r.Context(), o); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(o.ID, 10))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// ReplaceOrder overwrites an order and its lines.
func (h *Handler) ReplaceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := decodeOrder(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.orders.Replace(r.Context(), id, o); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteOrder removes an order.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(apply func(ctx context.Context, id int64) (*order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		o, err := apply(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
	}
}
