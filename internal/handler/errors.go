package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// requestError is a malformed path parameter or body.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

var sentinelStatus = []struct {
	err  error
	code int
}{
	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{order.ErrNotFound, http.StatusNotFound},
	{product.ErrNotFound, http.StatusNotFound},
	{cart.ErrNotFound, http.StatusNotFound},
	{cart.ErrItemNotFound, http.StatusNotFound},
	{wishlist.ErrNotFound, http.StatusNotFound},
	{order.ErrIDMismatch, http.StatusBadRequest},
	{order.ErrEmptyCart, http.StatusBadRequest},
	{order.ErrUpdateConflict, http.StatusConflict},
}

// mapError converts a domain error to a status code and client message.
func mapError(err error) (int, string) {
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.code, s.err.Error()
		}
	}

	var (
		reqErr    *requestError
		filterErr *order.InvalidFilterError
		stateErr  *order.InvalidStateError
		stockErr  *order.InsufficientStockError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Error()
	case errors.As(err, &filterErr):
		return http.StatusBadRequest, filterErr.Error()
	case errors.As(err, &stateErr):
		return http.StatusBadRequest, stateErr.Error()
	case errors.As(err, &stockErr):
		return http.StatusConflict, stockErr.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := mapError(err)
	if code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, code, msg)
}
