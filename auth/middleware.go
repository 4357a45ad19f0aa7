package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/localrivet/fichas-mcp/logx"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// Middleware rejects requests without a valid bearer token with 401 and a
// JSON-RPC authentication error body. Accepted requests carry the
// Principal in their context.
func Middleware(validator TokenValidator, logger types.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logx.NopLogger{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err == nil {
				var principal Principal
				principal, err = validator.ValidateToken(r.Context(), token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
					return
				}
			}

			logger.Warn("auth: rejected %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
			message := "invalid token"
			if errors.Is(err, ErrMissingToken) {
				message = ErrMissingToken.Error()
			}
			mcpErr := protocol.NewAuthenticationError(message)

			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(nil, mcpErr.Code, mcpErr.Message, nil))
		})
	}
}
