// Package config loads the server's environment configuration and reads
// and writes the client's YAML config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidValue is returned when a configuration value cannot be parsed
// or is out of range.
var ErrInvalidValue = errors.New("invalid config value")

// Defaults for the server configuration.
const (
	DefaultAddr            = ":3000"
	DefaultDBPath          = "sipp.sqlite"
	DefaultMaxContentSize  = 500000
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRedisTTL        = 10 * time.Minute
)

// DefaultRawClients are the user-agent fragments answered with raw text on
// /s/{shortId}.
var DefaultRawClients = []string{"curl", "wget", "httpie", "xh", "powershell", "fetch"}

// Server holds everything cmd/server needs. It is built from SIPP_*
// environment variables by LoadServer.
type Server struct {
	Addr            string        // ex: ":3000"
	DBPath          string        // ex: "sipp.sqlite"
	ShutdownTimeout time.Duration // ex: 10s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	APIKey    string   // empty => open mode, nothing protected
	Protected []string // raw operation names; nil => unset, use the gate's default

	MaxContentSize int      // bytes
	RawClients     []string // lowercase user-agent fragments

	// Redis read cache, disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// LoadServer reads the server configuration through getenv, normally
// os.Getenv. Unlike unset variables, which take their default, a variable
// that is set but unparsable is an error.
func LoadServer(getenv func(string) string) (*Server, error) {
	e := env{getenv: getenv}

	cfg := &Server{
		Addr:            e.str("SIPP_ADDR", DefaultAddr),
		DBPath:          e.str("SIPP_DB", DefaultDBPath),
		ShutdownTimeout: e.duration("SIPP_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),

		LogLevel:  e.str("SIPP_LOG_LEVEL", DefaultLogLevel),
		PrettyLog: e.bool("SIPP_PRETTY_LOG", true),

		APIKey:    getenv("SIPP_API_KEY"),
		Protected: splitAndTrim(getenv("SIPP_PROTECTED")),

		MaxContentSize: e.int("SIPP_MAX_CONTENT_SIZE", DefaultMaxContentSize),
		RawClients:     lower(e.slice("SIPP_RAW_CLIENTS", DefaultRawClients)),

		RedisAddr:     getenv("SIPP_REDIS_ADDR"),
		RedisPassword: getenv("SIPP_REDIS_PASSWORD"),
		RedisDB:       e.int("SIPP_REDIS_DB", 0),
		RedisTTL:      e.duration("SIPP_REDIS_TTL", DefaultRedisTTL),
	}
	if e.err != nil {
		return nil, e.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that parsing alone does not catch.
func (c *Server) Validate() error {
	if c.MaxContentSize <= 0 {
		return fmt.Errorf("%w: SIPP_MAX_CONTENT_SIZE must be positive, got %d", ErrInvalidValue, c.MaxContentSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: SIPP_SHUTDOWN_TIMEOUT must be positive, got %s", ErrInvalidValue, c.ShutdownTimeout)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%w: SIPP_REDIS_DB must not be negative, got %d", ErrInvalidValue, c.RedisDB)
	}
	if c.RedisTTL <= 0 {
		return fmt.Errorf("%w: SIPP_REDIS_TTL must be positive, got %s", ErrInvalidValue, c.RedisTTL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: SIPP_LOG_LEVEL must be debug, info, warn or error, got %q", ErrInvalidValue, c.LogLevel)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Server) Redacted() Server {
	if c.APIKey != "" {
		c.APIKey = "***REDACTED***"
	}
	if c.RedisPassword != "" {
		c.RedisPassword = "***REDACTED***"
	}
	return c
}

// env collects the first parse error so LoadServer reads like a table.
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidValue, key, v))
		return def
	}
	return i
}

func (e *env) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidValue, key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%w: %s must be a duration like 10s, got %q", ErrInvalidValue, key, v))
		return def
	}
	return d
}

func (e *env) slice(key string, def []string) []string {
	if parts := splitAndTrim(e.getenv(key)); len(parts) > 0 {
		return parts
	}
	return def
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
