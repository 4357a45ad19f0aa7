package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/fichas-mcp/protocol"
)

func hmacToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "agent-7",
		"iss": "https://idp.example.com",
		"aud": "fichas-mcp",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestHMACValidator(t *testing.T) {
	v, err := NewHMACTokenValidator("s3cret", "https://idp.example.com", "fichas-mcp")
	require.NoError(t, err)

	principal, err := v.ValidateToken(context.Background(), hmacToken(t, "s3cret", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "agent-7", principal.GetSubject())

	cases := map[string]string{
		"wrong secret": hmacToken(t, "other", validClaims()),
		"wrong audience": hmacToken(t, "s3cret", func() jwt.MapClaims {
			c := validClaims()
			c["aud"] = "someone-else"
			return c
		}()),
		"expired": hmacToken(t, "s3cret", func() jwt.MapClaims {
			c := validClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return c
		}()),
		"no expiry": hmacToken(t, "s3cret", func() jwt.MapClaims {
			c := validClaims()
			delete(c, "exp")
			return c
		}()),
		"garbage": "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = v.ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewHMACTokenValidator("", "", "")
	assert.Error(t, err)
}

func TestJWKSValidator(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "key-1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer jwks.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewJWKSTokenValidator(ctx, JWKSConfig{
		JWKSURL:      jwks.URL,
		ClaimsConfig: ClaimsConfig{ExpectedIssuer: "https://idp.example.com"},
	}, jwks.Client())
	require.NoError(t, err)

	sign := func(kid string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
		token.Header["kid"] = kid
		signed, err := token.SignedString(priv)
		require.NoError(t, err)
		return signed
	}

	principal, err := v.ValidateToken(ctx, sign("key-1"))
	require.NoError(t, err)
	assert.Equal(t, "agent-7", principal.GetSubject())

	_, err = v.ValidateToken(ctx, sign("unknown"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	// An HMAC token must not be accepted by the RSA validator.
	_, err = v.ValidateToken(ctx, hmacToken(t, "s3cret", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWKSValidatorRequiresReachableURL(t *testing.T) {
	_, err := NewJWKSTokenValidator(context.Background(), JWKSConfig{}, nil)
	assert.Error(t, err)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = NewJWKSTokenValidator(ctx, JWKSConfig{JWKSURL: down.URL}, down.Client())
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v, err := NewHMACTokenValidator("s3cret", "", "")
	require.NoError(t, err)

	var seen string
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = principal.GetSubject()
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "missing bearer token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "missing bearer token"},
		{"invalid", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"valid", "bearer " + hmacToken(t, "s3cret", validClaims()), http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusUnauthorized {
				return
			}
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			var resp protocol.JSONRPCResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, protocol.CodeAuthenticationFailed, resp.Error.Code)
			assert.Equal(t, tc.message, resp.Error.Message)
		})
	}
	assert.Equal(t, "agent-7", seen)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := BearerToken(req)
	assert.True(t, errors.Is(err, ErrMissingToken))

	req.Header.Set("Authorization", "Bearer   abc.def.ghi ")
	token, err := BearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}
