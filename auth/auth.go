// Package auth provides optional bearer-token authentication for the HTTP
// transport. Tokens are JWTs verified either with a shared HMAC secret or
// with keys published at a JWKS endpoint.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Principal represents the authenticated entity after successful token
// validation.
type Principal interface {
	// GetClaims returns the claims carried by the token.
	GetClaims() interface{}
	// GetSubject returns the 'sub' claim.
	GetSubject() string
}

// TokenValidator validates an access token and returns its principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (Principal, error)
}

// ClaimsConfig holds the registered-claim expectations shared by every
// validator. Empty fields are not checked.
type ClaimsConfig struct {
	ExpectedIssuer   string
	ExpectedAudience string
	// ClockSkew is the leeway applied to 'exp' and 'nbf'.
	ClockSkew time.Duration
}

func (c ClaimsConfig) parserOptions(methods ...string) []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if c.ExpectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(c.ExpectedIssuer))
	}
	if c.ExpectedAudience != "" {
		opts = append(opts, jwt.WithAudience(c.ExpectedAudience))
	}
	if c.ClockSkew > 0 {
		opts = append(opts, jwt.WithLeeway(c.ClockSkew))
	}
	return opts
}

// jwtPrincipal implements the Principal interface for JWT claims.
type jwtPrincipal struct {
	claims jwt.MapClaims
}

func (p *jwtPrincipal) GetClaims() interface{} { return p.claims }

func (p *jwtPrincipal) GetSubject() string {
	sub, _ := p.claims.GetSubject()
	return sub
}

// principalKeyType is the context key for storing the authenticated Principal.
type principalKeyType struct{}

var principalKey = principalKeyType{}

// ContextWithPrincipal returns a new context with the given Principal embedded.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the Principal from the context, if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// BearerToken extracts the token from an `Authorization: Bearer <token>`
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
