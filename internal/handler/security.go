package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Authenticate attaches the caller identity to the request context. Requests
// whose token cannot be resolved continue anonymously; handlers that need a
// caller answer 401 themselves.
func Authenticate(resolver IdentityResolver) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, err := resolver.Resolve(ctx, r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, auth.ErrNoCredential) {
					zctx.From(ctx).Debug("Identity not resolved", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx = auth.WithIdentity(ctx, id)
			ctx = zctx.With(ctx, zap.String("user_id", id.UserID()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitKey buckets authenticated callers by user and anonymous ones by
// client address.
func RateLimitKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.UserID()
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

func callerID(r *http.Request) (string, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return "", auth.ErrUnauthorized
	}
	return id.UserID(), nil
}
