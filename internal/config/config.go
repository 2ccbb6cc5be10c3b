// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment names the deployment stage the process runs in.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	DatabaseURL string

	// EncryptionKey is the raw master key material. Empty means no key was
	// configured; the cipher then generates an ephemeral one.
	EncryptionKey     string
	Environment       Environment
	AllowEphemeralKey bool
	LogLevel          string
	LogFormat         string
}

// UsePostgres reports whether a postgres connection URL was configured. When
// false the sqlite file at DBPath is used.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// EphemeralKeyFatal reports whether starting without a configured
// encryption key must abort startup. Credentials encrypted under an
// ephemeral key are unreadable after a restart.
func (c *Config) EphemeralKeyFatal() bool {
	return c.IsProduction() && !c.AllowEphemeralKey
}

// Load reads configuration from environment variables and returns a validated Config.
// The encryption key is read from CREDVAULT_ENCRYPTION_KEY, falling back to the
// legacy ENCRYPTION_KEY. Optional variables with defaults:
// CREDVAULT_LISTEN_ADDR (127.0.0.1:8080), CREDVAULT_DB_PATH (credvault.db),
// CREDVAULT_DATABASE_URL (unset, selects sqlite), CREDVAULT_ENV (development),
// CREDVAULT_ALLOW_EPHEMERAL_KEY (false), CREDVAULT_LOG_LEVEL (info),
// CREDVAULT_LOG_FORMAT (text).
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("CREDVAULT_LISTEN_ADDR"); ok && v != "" {
		listenAddr = v
	}

	dbPath := "credvault.db"
	if v, ok := os.LookupEnv("CREDVAULT_DB_PATH"); ok && v != "" {
		dbPath = v
	}

	databaseURL := strings.TrimSpace(os.Getenv("CREDVAULT_DATABASE_URL"))
	if databaseURL != "" &&
		!strings.HasPrefix(databaseURL, "postgres://") &&
		!strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, errors.New("CREDVAULT_DATABASE_URL must be a postgres:// URL")
	}

	key := strings.TrimSpace(os.Getenv("CREDVAULT_ENCRYPTION_KEY"))
	if key == "" {
		key = strings.TrimSpace(os.Getenv("ENCRYPTION_KEY"))
	}

	env := EnvDevelopment
	if v, ok := os.LookupEnv("CREDVAULT_ENV"); ok && v != "" {
		switch e := Environment(strings.ToLower(v)); e {
		case EnvDevelopment, EnvTest, EnvProduction:
			env = e
		default:
			return nil, fmt.Errorf("CREDVAULT_ENV has invalid value %q (want development, test or production)", v)
		}
	}

	allowEphemeral := false
	if v, ok := os.LookupEnv("CREDVAULT_ALLOW_EPHEMERAL_KEY"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CREDVAULT_ALLOW_EPHEMERAL_KEY has invalid boolean %q: %w", v, err)
		}
		allowEphemeral = parsed
	}

	logLevel := "info"
	if v, ok := os.LookupEnv("CREDVAULT_LOG_LEVEL"); ok && v != "" {
		switch l := strings.ToLower(v); l {
		case "debug", "info", "warn", "error":
			logLevel = l
		default:
			return nil, fmt.Errorf("CREDVAULT_LOG_LEVEL has invalid value %q", v)
		}
	}

	logFormat := "text"
	if v, ok := os.LookupEnv("CREDVAULT_LOG_FORMAT"); ok && v != "" {
		switch f := strings.ToLower(v); f {
		case "text", "json":
			logFormat = f
		default:
			return nil, fmt.Errorf("CREDVAULT_LOG_FORMAT has invalid value %q (want text or json)", v)
		}
	}

	return &Config{
		ListenAddr:        listenAddr,
		DBPath:            dbPath,
		DatabaseURL:       databaseURL,
		EncryptionKey:     key,
		Environment:       env,
		AllowEphemeralKey: allowEphemeral,
		LogLevel:          logLevel,
		LogFormat:         logFormat,
	}, nil
}
