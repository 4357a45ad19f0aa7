package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKSConfig holds configuration for the JWKS-based validator.
type JWKSConfig struct {
	// JWKSURL is the URL of the JSON Web Key Set endpoint. (Required)
	JWKSURL string
	ClaimsConfig
	// RefreshInterval defines how often to refresh the JWK set from the URL. Defaults to 1 hour.
	RefreshInterval time.Duration
}

// JWKSTokenValidator implements the TokenValidator interface using a JWKS endpoint.
type JWKSTokenValidator struct {
	config   JWKSConfig
	jwkCache *jwk.Cache
}

// Ensure interface compliance
var _ TokenValidator = (*JWKSTokenValidator)(nil)

// NewJWKSTokenValidator creates a validator and performs the first key fetch,
// so an unreachable JWKS endpoint is reported at startup.
func NewJWKSTokenValidator(ctx context.Context, config JWKSConfig, client *http.Client) (*JWKSTokenValidator, error) {
	if config.JWKSURL == "" {
		return nil, fmt.Errorf("JWKSURL is required in JWKSConfig")
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = time.Hour
	}
	if client == nil {
		client = http.DefaultClient
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(config.JWKSURL, jwk.WithMinRefreshInterval(config.RefreshInterval), jwk.WithHTTPClient(client)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL %s with cache: %w", config.JWKSURL, err)
	}
	if _, err := cache.Refresh(ctx, config.JWKSURL); err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch from %s: %w", config.JWKSURL, err)
	}

	return &JWKSTokenValidator{config: config, jwkCache: cache}, nil
}

// ValidateToken implements TokenValidator.
func (v *JWKSTokenValidator) ValidateToken(ctx context.Context, tokenString string) (Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.keyFor(ctx, token)
	}, v.config.parserOptions("RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "PS384", "PS512", "EdDSA")...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &jwtPrincipal{claims: claims}, nil
}

// keyFor looks up the token's 'kid' in the cached set, refreshing once when
// the key is unknown (the issuer may have rotated keys).
func (v *JWKSTokenValidator) keyFor(ctx context.Context, token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("JWT header missing 'kid' field")
	}

	keySet, err := v.jwkCache.Get(ctx, v.config.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK set for %s: %w", v.config.JWKSURL, err)
	}
	key, found := keySet.LookupKeyID(kid)
	if !found {
		keySet, err = v.jwkCache.Refresh(ctx, v.config.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("key %q not found and JWKS refresh failed: %w", kid, err)
		}
		if key, found = keySet.LookupKeyID(kid); !found {
			return nil, fmt.Errorf("key %q not found in JWKS at %s", kid, v.config.JWKSURL)
		}
	}

	var rawKey interface{}
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("failed to get raw public key material for kid %q: %w", kid, err)
	}
	return rawKey, nil
}
