// Package handler exposes the shop over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// OrderService is the order query, admin and lifecycle surface.
type OrderService interface {
	ListOrders(ctx context.Context, userID string, f order.Filter) ([]order.Order, error)
	ListAdminOrders(ctx context.Context, ownerID string, f order.Filter) ([]order.Order, error)
	ListPending(ctx context.Context) ([]order.Order, error)
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	GetCurrentOrder(ctx context.Context, userID string) (*order.Order, error)
	Create(ctx context.Context, o *order.Order) error
	Replace(ctx context.Context, pathID int64, o *order.Order) error
	Delete(ctx context.Context, id int64) error
	Accept(ctx context.Context, id int64) (*order.Order, error)
	Reject(ctx context.Context, id int64) (*order.Order, error)
	ResetToPending(ctx context.Context, id int64) (*order.Order, error)
	Invoice(ctx context.Context, id int64) (*order.Invoice, error)
}

// CheckoutService turns the caller's cart into an order.
type CheckoutService interface {
	Checkout(ctx context.Context, caller *auth.Identity) (*order.Order, error)
}

// CartService mutates carts. Mutations return the cart's unit count.
type CartService interface {
	List(ctx context.Context, userID string) ([]cart.Line, error)
	Add(ctx context.Context, userID string, productID int64) (int, error)
	Reduce(ctx context.Context, userID string, productID int64) (int, error)
	Remove(ctx context.Context, userID string, productID int64) (int, error)
	Clear(ctx context.Context, userID string) error
}

// WishlistService manages saved products.
type WishlistService interface {
	List(ctx context.Context, userID string) ([]product.Product, error)
	Add(ctx context.Context, userID string, productID int64) error
	Remove(ctx context.Context, userID string, productID int64) error
}

// IdentityResolver maps an Authorization header to a caller.
type IdentityResolver interface {
	Resolve(ctx context.Context, header string) (auth.Identity, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
}

// Services bundles the Handler dependencies.
type Services struct {
	Orders     OrderService
	Checkout   CheckoutService
	Carts      CartService
	Wishlist   WishlistService
	Products   product.Repository
	Identities IdentityResolver
}

// Handler serves the /api routes.
type Handler struct {
	orders     OrderService
	checkout   CheckoutService
	carts      CartService
	wishlist   WishlistService
	products   product.Repository
	identities IdentityResolver

	imageBaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, svc Services) *Handler {
	return &Handler{
		orders:       svc.Orders,
		checkout:     svc.Checkout,
		carts:        svc.Carts,
		wishlist:     svc.Wishlist,
		products:     svc.Products,
		identities:   svc.Identities,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Router returns the API routes. The given middlewares run after identity
// resolution, so they can use auth.FromContext.
func (h *Handler) Router(middlewares ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(Authenticate(h.identities))
	r.Use(middlewares...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/checkout", h.Checkout)
		r.Get("/checkout/current", h.GetCurrentOrder)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Get("/AdminOrders", h.ListAdminOrders)
			r.Get("/PendingOrders", h.ListPendingOrders)
			r.Get("/current", h.GetCurrentOrder)
			r.Get("/{id}", h.GetOrder)
			r.Put("/{id}", h.ReplaceOrder)
			r.Delete("/{id}", h.DeleteOrder)
			r.Get("/{id}/invoice", h.GetInvoice)
			r.Put("/acceptOrder/{id}", h.transition(h.orders.Accept))
			r.Put("/pendingOrder/{id}", h.transition(h.orders.ResetToPending))
			r.Put("/rejectOrder/{id}", h.transition(h.orders.Reject))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.ListCart)
			r.Delete("/", h.ClearCart)
			r.Post("/{productId}", h.mutateCart(h.carts.Add))
			r.Put("/{productId}", h.mutateCart(h.carts.Reduce))
			r.Delete("/{productId}", h.mutateCart(h.carts.Remove))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.ListWishlist)
			r.Post("/{productId}", h.AddToWishlist)
			r.Delete("/{productId}", h.RemoveFromWishlist)
		})
	})
	return r
}
