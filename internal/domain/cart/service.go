package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service serves cart reads through a cache and keeps the cache coherent on
// every mutation.
type Service struct {
	repo  Repository
	cache Cache
	sfg   singleflight.Group
}

// NewService creates a cart Service.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetCart returns the cart id of the user, or ErrNotFound.
func (s *Service) GetCart(ctx context.Context, userID string) (int64, error) {
	return s.repo.GetCart(ctx, userID)
}

// GetItems returns the lines of the given cart with products resolved.
func (s *Service) GetItems(ctx context.Context, cartID int64) ([]Line, error) {
	return s.repo.GetItems(ctx, cartID)
}

// List returns the user's cart lines. A user without a cart gets an empty
// slice. Concurrent cache misses for one user share a single database read.
func (s *Service) List(ctx context.Context, userID string) ([]Line, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		lg := zctx.From(ctx).With(zap.String("user_id", userID))

		lines, err := s.cache.Get(ctx, userID)
		if err == nil {
			return lines, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			lg.Warn("Cart cache get failed", zap.Error(err))
		}

		// The generation must be read before storage.
		gen, genErr := s.cache.Generation(ctx, userID)
		if genErr != nil {
			lg.Warn("Cart cache generation failed", zap.Error(genErr))
		}

		lines, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			stored, err := s.cache.Set(ctx, userID, gen, lines)
			switch {
			case err != nil:
				lg.Warn("Cart cache set failed", zap.Error(err))
			case !stored:
				lg.Debug("Cart changed during load, not caching")
			}
		}
		return lines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Line), nil
}

func (s *Service) load(ctx context.Context, userID string) ([]Line, error) {
	cartID, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return []Line{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	lines, err := s.repo.GetItems(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart items")
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines, nil
}

// Add puts one more unit of the product into the cart.
func (s *Service) Add(ctx context.Context, userID string, productID int64) (int, error) {
	n, err := s.repo.AddOne(ctx, userID, productID)
	if err != nil {
		return 0, err
	}
	s.Invalidate(ctx, userID)
	return n, nil
}

// Reduce removes one unit of the product; the line disappears at zero.
func (s *Service) Reduce(ctx context.Context, userID string, productID int64) (int, error) {
	n, err := s.repo.ReduceOne(ctx, userID, productID)
	if err != nil {
		return 0, err
	}
	s.Invalidate(ctx, userID)
	return n, nil
}

// Remove deletes the product line from the cart.
func (s *Service) Remove(ctx context.Context, userID string, productID int64) (int, error) {
	n, err := s.repo.Remove(ctx, userID, productID)
	if err != nil {
		return 0, err
	}
	s.Invalidate(ctx, userID)
	return n, nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached cart of the user and detaches later reads from
// any load already in flight. Failures are logged only; the entry expires on
// its own.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	s.sfg.Forget(userID)
	if err := s.cache.Delete(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Cart cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
