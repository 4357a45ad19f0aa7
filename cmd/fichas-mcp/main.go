// Command fichas-mcp serves the get_ficha_tecnica MCP tool over HTTP+SSE
// (default) or stdio.
//
// Usage:
//
//	APPS_SCRIPT_URL=https://script.google.com/macros/s/.../exec fichas-mcp
//	fichas-mcp -transport stdio -config fichas.toml
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/localrivet/fichas-mcp/auth"
	"github.com/localrivet/fichas-mcp/backend"
	"github.com/localrivet/fichas-mcp/config"
	"github.com/localrivet/fichas-mcp/ficha"
	"github.com/localrivet/fichas-mcp/hooks"
	"github.com/localrivet/fichas-mcp/logx"
	"github.com/localrivet/fichas-mcp/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = server.DefaultVersion

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.LookupEnv))
}

// run is main without process globals. It returns the exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, lookup config.LookupFunc) int {
	fs := flag.NewFlagSet("fichas-mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML or YAML config file (default $"+config.EnvConfigFile+")")
	transport := fs.String("transport", "", "transport to serve: sse or stdio (default $"+config.EnvTransport+" or sse)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logx.NewConsole(stderr, logx.LevelInfo)

	if *transport != "" {
		lookup = overrideEnv(lookup, config.EnvTransport, *transport)
	}
	cfg, err := config.Load(*configPath, lookup)
	if err != nil {
		logger.Error("invalid configuration: %v", err)
		return 1
	}
	level, _ := logx.ParseLevel(cfg.LogLevel)
	logger = logger.With("transport", cfg.Transport)
	logger.SetLevel(level)

	client, err := backend.New(cfg.BackendURL, backend.WithLogger(logger))
	if err != nil {
		logger.Error("backend: %v", err)
		return 1
	}

	srv := server.NewServer(server.DefaultName,
		server.WithLogger(logger),
		server.WithVersion(version),
		server.WithInstructions(ficha.Instructions),
		server.WithBeforeToolCall(hooks.LogCaller(logger)),
		server.WithAfterToolCall(hooks.LogToolCall(logger)),
	)
	if err := ficha.Register(srv, client); err != nil {
		logger.Error("register tool: %v", err)
		return 1
	}

	switch cfg.Transport {
	case config.TransportStdio:
		err = server.ServeStdio(ctx, srv, stdin, stdout)
	default:
		var validator auth.TokenValidator
		validator, err = newValidator(ctx, cfg)
		if err != nil {
			logger.Error("auth: %v", err)
			return 1
		}
		if validator != nil {
			logger.Info("Bearer-token authentication enabled")
		}
		err = server.ServeSSE(ctx, srv, server.SSEOptions{
			Addr:      cfg.Addr(),
			BasePath:  cfg.BasePath,
			KeepAlive: cfg.KeepAlive,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
			Validator: validator,
		})
	}
	if err != nil {
		logger.Error("server stopped: %v", err)
		return 1
	}
	return 0
}

// newValidator builds the token validator selected by cfg, or nil when
// authentication is disabled.
func newValidator(ctx context.Context, cfg config.Config) (auth.TokenValidator, error) {
	if !cfg.AuthEnabled() {
		return nil, nil
	}
	if cfg.JWTSecret != "" {
		return auth.NewHMACTokenValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	}
	return auth.NewJWKSTokenValidator(ctx, auth.JWKSConfig{
		JWKSURL: cfg.JWKSURL,
		ClaimsConfig: auth.ClaimsConfig{
			ExpectedIssuer:   cfg.JWTIssuer,
			ExpectedAudience: cfg.JWTAudience,
		},
	}, nil)
}

func overrideEnv(lookup config.LookupFunc, key, value string) config.LookupFunc {
	return func(k string) (string, bool) {
		if k == key {
			return value, true
		}
		return lookup(k)
	}
}
