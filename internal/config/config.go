// Package config loads the server configuration from the environment.
//
// Values come from real environment variables first; a .env file in the
// working directory fills in anything unset (godotenv never overrides).
// Everything is read once in Load and passed down as a value, so no package
// reads os.Getenv on its own.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Port         int
	StoreBackend string
	DBPath       string

	JWTSecret string
	JWTIssuer string

	// bcrypt hash of the shared teacher enrollment code; empty disables
	// teacher registration.
	TeacherCodeHash string

	BaseXP             int64
	LevelMultiplier    float64
	DefaultMaxAttempts int
	TxMaxAttempts      int

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads .env (when present) and the environment. Malformed numbers are
// errors rather than silently falling back to defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function. Tests pass a
// map-backed lookup instead of mutating the process environment.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Port:               e.int("PORT", 8080),
		StoreBackend:       strings.ToLower(e.str("STORE_BACKEND", BackendSQLite)),
		DBPath:             e.str("DB_PATH", "data/brightminds.db"),
		JWTSecret:          e.str("JWT_SECRET", ""),
		JWTIssuer:          e.str("JWT_ISSUER", "brightminds"),
		TeacherCodeHash:    e.str("TEACHER_ENROLLMENT_CODE_HASH", ""),
		BaseXP:             int64(e.int("GAMIFICATION_BASE_XP", 100)),
		LevelMultiplier:    e.float("GAMIFICATION_LEVEL_MULTIPLIER", 1.25),
		DefaultMaxAttempts: e.int("GAMIFICATION_DEFAULT_MAX_ATTEMPTS", 3),
		TxMaxAttempts:      e.int("STORE_TX_MAX_ATTEMPTS", 5),
		CORSAllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:           strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(e.str("LOG_FORMAT", "text")),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.StoreBackend != BackendSQLite && c.StoreBackend != BackendMemory {
		errs = append(errs, fmt.Errorf("config: STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendMemory, c.StoreBackend))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required"))
	}
	if c.DefaultMaxAttempts < 0 {
		errs = append(errs, errors.New("config: GAMIFICATION_DEFAULT_MAX_ATTEMPTS must be >= 0"))
	}
	if c.TxMaxAttempts < 1 {
		errs = append(errs, errors.New("config: STORE_TX_MAX_ATTEMPTS must be >= 1"))
	}
	return errors.Join(errs...)
}

// env collects parse errors so Load reports every bad key at once.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a number", key, v))
		return fallback
	}
	return f
}

func (e *env) list(key string, fallback []string) []string {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
