package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimNameIdentifier is the subject claim emitted by ASP.NET-style identity
// providers.
const ClaimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"

// DefaultSubjectClaims lists the claims tried for the user id, in order.
var DefaultSubjectClaims = []string{ClaimNameIdentifier, "sub"}

var (
	// ErrNoCredential is returned when the request carries no bearer token.
	ErrNoCredential = errors.New("no bearer credential")
	// ErrNoSubject is returned when none of the subject claims is present.
	ErrNoSubject = errors.New("token has no subject claim")
)

// ResolverConfig controls how bearer tokens are decoded.
type ResolverConfig struct {
	// Secret enables HS256 signature verification. When empty, tokens are
	// decoded without verification and trust is delegated to the identity
	// provider in front of the API.
	Secret   []byte
	Issuer   string
	Audience string
	// SubjectClaims overrides DefaultSubjectClaims.
	SubjectClaims []string
}

// Resolver turns an Authorization header into an Identity.
type Resolver struct {
	users  Repository
	parser *jwt.Parser
	secret []byte
	claims []string
}

// NewResolver creates a Resolver backed by the given user repository.
func NewResolver(users Repository, cfg ResolverConfig) *Resolver {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := cfg.SubjectClaims
	if len(claims) == 0 {
		claims = DefaultSubjectClaims
	}

	return &Resolver{
		users:  users,
		parser: jwt.NewParser(opts...),
		secret: cfg.Secret,
		claims: claims,
	}
}

// Resolve decodes the bearer token from header, extracts the subject and
// loads the matching user.
func (r *Resolver) Resolve(ctx context.Context, header string) (Identity, error) {
	token, ok := bearerToken(header)
	if !ok {
		return Identity{}, ErrNoCredential
	}

	claims, err := r.decode(token)
	if err != nil {
		return Identity{}, err
	}

	subject, ok := r.subject(claims)
	if !ok {
		return Identity{}, ErrNoSubject
	}

	user, err := r.users.FindByID(ctx, subject)
	if err != nil {
		return Identity{}, errors.Wrapf(err, "find user %q", subject)
	}
	return Identity{User: *user}, nil
}

func (r *Resolver) decode(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if len(r.secret) == 0 {
		if _, _, err := r.parser.ParseUnverified(token, claims); err != nil {
			return nil, errors.Wrap(err, "decode token")
		}
		return claims, nil
	}

	_, err := r.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "verify token")
	}
	return claims, nil
}

func (r *Resolver) subject(claims jwt.MapClaims) (string, bool) {
	for _, name := range r.claims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
