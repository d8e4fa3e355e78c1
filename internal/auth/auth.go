package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the session derived from one request's bearer token. The zero
// value is an anonymous shopper.
type Identity struct {
	UserID string
	Email  string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity in ctx, or an anonymous one.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// Claims issued by the hosted auth service.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTValidator verifies HS256 tokens signed with the shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator returns nil when secret is empty, in which case every
// bearer token is rejected.
func NewJWTValidator(secret, issuer string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

// Validate parses and validates a token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	if v == nil {
		return nil, errors.New("validator uninitialized")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject is required")
	}
	return claims, nil
}

// Identity converts validated claims into a session.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Email: c.Email}
}
