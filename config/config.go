// Package config builds the immutable process configuration for fichas-mcp.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional TOML or YAML file, and environment variables. The result is
// validated once at startup and then passed by value to every component
// that needs it.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvBackendURL  = "APPS_SCRIPT_URL"
	EnvPort        = "PORT"
	EnvConfigFile  = "FICHAS_CONFIG"
	EnvHost        = "FICHAS_HOST"
	EnvBasePath    = "FICHAS_BASE_PATH"
	EnvTransport   = "FICHAS_TRANSPORT"
	EnvLogLevel    = "FICHAS_LOG_LEVEL"
	EnvKeepAlive   = "FICHAS_KEEP_ALIVE"
	EnvRateLimit   = "FICHAS_RATE_LIMIT"
	EnvRateBurst   = "FICHAS_RATE_BURST"
	EnvJWTSecret   = "FICHAS_JWT_SECRET"
	EnvJWKSURL     = "FICHAS_JWKS_URL"
	EnvJWTIssuer   = "FICHAS_JWT_ISSUER"
	EnvJWTAudience = "FICHAS_JWT_AUDIENCE"
)

// Transport names.
const (
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

// DefaultPort is used when PORT is not set.
const DefaultPort = 3000

// ErrMissingBackendURL is returned when no backend URL is configured.
var ErrMissingBackendURL = errors.New("backend URL is required (set " + EnvBackendURL + ")")

// Config is the process configuration. Treat it as immutable once Load returns.
type Config struct {
	BackendURL string        `toml:"backend_url" yaml:"backend_url"`
	Host       string        `toml:"host" yaml:"host"`
	Port       int           `toml:"port" yaml:"port"`
	BasePath   string        `toml:"base_path" yaml:"base_path"`
	Transport  string        `toml:"transport" yaml:"transport"`
	LogLevel   string        `toml:"log_level" yaml:"log_level"`
	KeepAlive  time.Duration `toml:"keep_alive" yaml:"keep_alive"`

	// RateLimit is requests per second allowed per SSE session; 0 disables it.
	RateLimit float64 `toml:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `toml:"rate_burst" yaml:"rate_burst"`

	JWTSecret   string `toml:"jwt_secret" yaml:"jwt_secret"`
	JWKSURL     string `toml:"jwks_url" yaml:"jwks_url"`
	JWTIssuer   string `toml:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `toml:"jwt_audience" yaml:"jwt_audience"`
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Default returns the built-in defaults. BackendURL is intentionally empty.
func Default() Config {
	return Config{
		Port:      DefaultPort,
		BasePath:  "/mcp",
		Transport: TransportSSE,
		LogLevel:  "info",
		RateBurst: 5,
	}
}

// Load builds and validates a Config. path may be empty, in which case
// FICHAS_CONFIG is consulted; when neither is set no file is read.
func Load(path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	if path == "" {
		path, _ = lookup(EnvConfigFile)
	}
	if path = strings.TrimSpace(path); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("load config %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvBackendURL, &cfg.BackendURL)
	str(EnvHost, &cfg.Host)
	str(EnvBasePath, &cfg.BasePath)
	str(EnvTransport, &cfg.Transport)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvJWTSecret, &cfg.JWTSecret)
	str(EnvJWKSURL, &cfg.JWKSURL)
	str(EnvJWTIssuer, &cfg.JWTIssuer)
	str(EnvJWTAudience, &cfg.JWTAudience)

	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v, ok := lookup(EnvKeepAlive); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvKeepAlive, err)
		}
		cfg.KeepAlive = d
	}
	if v, ok := lookup(EnvRateLimit); ok && strings.TrimSpace(v) != "" {
		r, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvRateLimit, err)
		}
		cfg.RateLimit = r
	}
	if v, ok := lookup(EnvRateBurst); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvRateBurst, err)
		}
		cfg.RateBurst = b
	}
	return nil
}

func (c *Config) normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.BasePath == "" {
		c.BasePath = "/mcp"
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		c.BasePath = "/" + c.BasePath
	}
	if len(c.BasePath) > 1 {
		c.BasePath = strings.TrimSuffix(c.BasePath, "/")
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BackendURL) == "" {
		return ErrMissingBackendURL
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend URL %q: scheme must be http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend URL %q: missing host", c.BackendURL)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Transport {
	case TransportSSE, TransportStdio:
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", c.Transport, TransportSSE, TransportStdio)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("keep-alive must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting is enabled")
	}
	if c.JWTSecret != "" && c.JWKSURL != "" {
		return fmt.Errorf("configure either a JWT secret or a JWKS URL, not both")
	}
	return nil
}

// Addr is the listen address for the HTTP transport.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AuthEnabled reports whether bearer-token authentication is configured.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != "" || c.JWKSURL != ""
}
