package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/localrivet/fichas-mcp/auth"
	"github.com/localrivet/fichas-mcp/transport/sse"
)

// HealthMessage is the body of GET /.
const HealthMessage = "OK Valmex MCP SSE running"

const (
	readHeaderTimeout = 30 * time.Second
	idleTimeout       = 10 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// SSEOptions configure the HTTP surface started by ServeSSE.
type SSEOptions struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string
	// BasePath is where streams are opened and messages posted. Defaults to /mcp.
	BasePath  string
	KeepAlive time.Duration
	RateLimit float64
	RateBurst int
	// Validator enables bearer-token authentication on BasePath when set.
	Validator auth.TokenValidator
}

// corsOptions allow browser clients from any origin. Preflights pass
// through to the OPTIONS route, which answers 204.
var corsOptions = cors.Options{
	AllowedOrigins:     []string{"*"},
	AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	AllowedHeaders:     []string{"Content-Type", "Authorization", sse.SessionHeader},
	MaxAge:             300,
	OptionsPassthrough: true,
}

// NewSSEHandler builds the HTTP router for srv: a health check on / and the
// SSE transport on the base path. The returned SSEServer lets the caller
// close every session on shutdown.
func NewSSEHandler(srv *Server, opts SSEOptions) (http.Handler, *sse.SSEServer) {
	sseSrv := sse.NewSSEServer(srv, sse.SSEServerOptions{
		Logger:      srv.logger,
		BasePath:    opts.BasePath,
		KeepAlive:   opts.KeepAlive,
		RateLimit:   opts.RateLimit,
		RateBurst:   opts.RateBurst,
		ContextFunc: principalContext,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(srv.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions))

	r.Options("/*", noContent)
	r.Options(sseSrv.BasePath(), noContent)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, HealthMessage)
	})

	r.Group(func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(auth.Middleware(opts.Validator, srv.logger))
		}
		r.Get(sseSrv.BasePath(), sseSrv.HandleSSE)
		r.Post(sseSrv.BasePath(), sseSrv.HandleMessage)
	})

	return r, sseSrv
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// principalContext carries the authenticated principal of a POST into the
// context its message is handled with.
func principalContext(ctx context.Context, r *http.Request) context.Context {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		return auth.ContextWithPrincipal(ctx, principal)
	}
	return ctx
}

// ServeSSE serves srv over HTTP+SSE on opts.Addr until ctx is cancelled,
// then closes every session and shuts the listener down gracefully.
func ServeSSE(ctx context.Context, srv *Server, opts SSEOptions) error {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}
	return serveSSE(ctx, srv, ln, opts)
}

func serveSSE(ctx context.Context, srv *Server, ln net.Listener, opts SSEOptions) error {
	handler, sseSrv := NewSSEHandler(srv, opts)
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("MCP SSE server listening on %s%s", ln.Addr(), sseSrv.BasePath())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	srv.logger.Info("Shutting down SSE server (%d open sessions)", sseSrv.SessionCount())
	sseSrv.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	srv.logger.Info("SSE server stopped")
	return nil
}
