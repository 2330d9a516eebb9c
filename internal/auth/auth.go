// Package auth verifies bearer tokens issued by the identity service and
// carries the resulting actor through request contexts.
package auth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognised by the API layer.
const (
	RoleAdmin        = "Admin"
	RoleReceptionist = "Receptionist"
	RoleApprover     = "Approver"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   string
}

// Claims is the token payload: sub is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrMissingToken = stderrors.New("missing bearer token")
	ErrInvalidToken = stderrors.New("invalid token")
)

// Verifier validates HS256 tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses token and returns its actor.
func (v *Verifier) Verify(token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return Actor{}, ErrInvalidToken
	}
	return Actor{UserID: claims.Subject, Role: claims.Role}, nil
}

// Issue signs a token for actor valid for ttl. Production tokens come from
// the identity service; this serves local runs and tests.
func (v *Verifier) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type actorKey struct{}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
