package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProducts(e, products) })
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

// ListWishlist returns the caller's saved products.
func (h *Handler) ListWishlist(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	products, err := h.wishlist.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProducts(e, products) })
}

// AddToWishlist saves a product for the caller.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
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
	if err := h.wishlist.Add(r.Context(), userID, productID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromWishlist drops a saved product.
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
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
	if err := h.wishlist.Remove(r.Context(), userID, productID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
