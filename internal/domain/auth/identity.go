package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUserNotFound is returned by a Repository when no user matches the subject.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized is returned by operations that require an identity
	// when the caller is anonymous.
	ErrUnauthorized = errors.New("unauthorized")
)

// User is the account record a bearer token resolves to.
type User struct {
	ID       string
	UserName string
	Email    string
}

// Identity is the resolved caller attached to a request context.
type Identity struct {
	User User
}

// UserID is a shorthand for the resolved user identifier.
func (i Identity) UserID() string {
	return i.User.ID
}

// Repository looks up users by their identity-provider subject.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by the resolver middleware.
// The boolean is false for anonymous requests.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
