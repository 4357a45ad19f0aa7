package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HMACTokenValidator verifies HS256/HS384/HS512 tokens signed with a shared secret.
type HMACTokenValidator struct {
	secret []byte
	claims ClaimsConfig
}

// Ensure interface compliance
var _ TokenValidator = (*HMACTokenValidator)(nil)

// NewHMACTokenValidator creates a validator for the given secret. Issuer and
// audience are checked only when non-empty.
func NewHMACTokenValidator(secret, issuer, audience string) (*HMACTokenValidator, error) {
	if secret == "" {
		return nil, errors.New("auth: HMAC secret is required")
	}
	return &HMACTokenValidator{
		secret: []byte(secret),
		claims: ClaimsConfig{ExpectedIssuer: issuer, ExpectedAudience: audience},
	}, nil
}

// ValidateToken implements TokenValidator.
func (v *HMACTokenValidator) ValidateToken(_ context.Context, tokenString string) (Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.claims.parserOptions("HS256", "HS384", "HS512")...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &jwtPrincipal{claims: claims}, nil
}
