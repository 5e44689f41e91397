package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
)

// ListCart returns the caller's cart lines and unit count.
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lines, err := h.carts.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeCart(e, lines) })
}

// ClearCart empties the caller's cart and answers true.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { e.Bool(true) })
}

func (h *Handler) mutateCart(mutate func(ctx context.Context, userID string, productID int64) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		productID, err := pathID(r, "productId")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		n, err := mutate(r.Context(), userID, productID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("count", func(e *jx.Encoder) { e.Int(n) })
			})
		})
	}
}
