// Package wishlist keeps the products a user marked for later.
package wishlist

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// ErrNotFound is returned when removing a product that is not wishlisted.
var ErrNotFound = errors.New("wishlist item not found")

// Repository defines persistence for wishlist entries.
type Repository interface {
	List(ctx context.Context, userID string) ([]product.Product, error)
	// Add is a no-op when the entry already exists.
	Add(ctx context.Context, userID string, productID int64) error
	Remove(ctx context.Context, userID string, productID int64) error
}

// Service validates products before they are wishlisted.
type Service struct {
	repo     Repository
	products product.Repository
}

// NewService creates a wishlist Service.
func NewService(repo Repository, products product.Repository) *Service {
	return &Service{repo: repo, products: products}
}

// List returns the wishlisted products, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]product.Product, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list wishlist")
	}
	if items == nil {
		items = []product.Product{}
	}
	return items, nil
}

// Add wishlists the product. Unknown products yield product.ErrNotFound.
func (s *Service) Add(ctx context.Context, userID string, productID int64) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	if err := s.repo.Add(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "add wishlist item")
	}
	return nil
}

// Remove drops the product from the wishlist or returns ErrNotFound.
func (s *Service) Remove(ctx context.Context, userID string, productID int64) error {
	return s.repo.Remove(ctx, userID, productID)
}
