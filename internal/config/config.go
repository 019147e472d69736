// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

// Package config loads tudu's settings from flag defaults, an optional YAML
// file, explicitly set flags and the DATABASE_URL environment variable, in
// increasing order of precedence.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/tudu/tudu/internal/auth"
	"github.com/tudu/tudu/internal/logging"
	"github.com/tudu/tudu/internal/workpool"
)

// DatabaseURLEnv names the environment variable holding the connection string.
const DatabaseURLEnv = "DATABASE_URL"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Session backends.
const (
	SessionBackendSQL   = "sql"
	SessionBackendRedis = "redis"
)

// Defaults.
const (
	DefaultHTTPAddr       = "localhost:8888"
	DefaultMetricsAddr    = "127.0.0.1:9100"
	DefaultConnectRetries = 5
	DefaultRedisAddr      = "localhost:6379"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP struct {
		Addr string `koanf:"addr"`
	} `koanf:"http"`

	Metrics struct {
		// Addr is empty when the observability server is disabled.
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`

	Database struct {
		Driver         string `koanf:"driver"`
		URL            string `koanf:"url"`
		ConnectRetries int    `koanf:"connect_retries"`
	} `koanf:"database"`

	Session struct {
		Backend string `koanf:"backend"`
	} `koanf:"session"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
		Prefix   string `koanf:"prefix"`
	} `koanf:"redis"`

	Hasher struct {
		Algorithm string `koanf:"algorithm"`
		Cost      int    `koanf:"cost"`
	} `koanf:"hasher"`

	Password struct {
		// MinLength of zero accepts any password, including the empty one.
		MinLength int `koanf:"min_length"`
	} `koanf:"password"`

	Email struct {
		// Validate enables RFC 5322 address checks on registration.
		Validate bool `koanf:"validate"`
	} `koanf:"email"`

	Workers struct {
		Size  int `koanf:"size"`
		Queue int `koanf:"queue"`
	} `koanf:"workers"`

	Log struct {
		Format string `koanf:"format"`
		Level  string `koanf:"level"`
	} `koanf:"log"`
}

// flagKeys maps each flag registered by RegisterFlags to its config key.
var flagKeys = map[string]string{
	"http-addr":                "http.addr",
	"metrics-addr":             "metrics.addr",
	"database-driver":          "database.driver",
	"database-url":             "database.url",
	"database-connect-retries": "database.connect_retries",
	"session-backend":          "session.backend",
	"redis-addr":               "redis.addr",
	"redis-password":           "redis.password",
	"redis-db":                 "redis.db",
	"redis-prefix":             "redis.prefix",
	"hasher-algorithm":         "hasher.algorithm",
	"hasher-cost":              "hasher.cost",
	"password-min-length":      "password.min_length",
	"email-validate":           "email.validate",
	"workers-size":             "workers.size",
	"workers-queue":            "workers.queue",
	"log-format":               "log.format",
	"log-level":                "log.level",
}

// RegisterFlags adds every configuration flag, with its default, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", DefaultHTTPAddr, "HTTP listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-driver", DriverPostgres, "database driver (postgres or sqlite)")
	fs.String("database-url", "", "database connection string (default: $"+DatabaseURLEnv+")")
	fs.Int("database-connect-retries", DefaultConnectRetries, "database ping retries at startup")
	fs.String("session-backend", SessionBackendSQL, "session store (sql or redis)")
	fs.String("redis-addr", DefaultRedisAddr, "redis address for the redis session backend")
	fs.String("redis-password", "", "redis password")
	fs.Int("redis-db", 0, "redis database number")
	fs.String("redis-prefix", "tudu:", "redis key prefix")
	fs.String("hasher-algorithm", auth.AlgorithmBcrypt, "password hash algorithm (bcrypt or argon2id)")
	fs.Int("hasher-cost", auth.DefaultBcryptCost, "bcrypt cost")
	fs.Int("password-min-length", 0, "minimum password length (0 = no minimum)")
	fs.Bool("email-validate", false, "reject registrations whose email is not a bare RFC 5322 address")
	fs.Int("workers-size", workpool.DefaultSize, "worker pool size")
	fs.Int("workers-queue", workpool.DefaultQueue, "worker pool queue capacity")
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

// Load builds a Config. path names an optional YAML file. fs must carry the
// flags from RegisterFlags. getenv is usually os.Getenv and may be nil.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	urlFlagSet := fs != nil && fs.Changed("database-url")
	if env := getenv(DatabaseURLEnv); env != "" && !urlFlagSet {
		cfg.Database.URL = env
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf(format, args...)
	}

	switch {
	case c.HTTP.Addr == "":
		return invalid("http.addr", c.HTTP.Addr, "http.addr is required")
	case c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite:
		return invalid("database.driver", c.Database.Driver, "database.driver must be %q or %q", DriverPostgres, DriverSQLite)
	case c.Database.URL == "":
		return invalid("database.url", "", "database.url is required (set --database-url or $%s)", DatabaseURLEnv)
	case c.Database.ConnectRetries < 0:
		return invalid("database.connect_retries", c.Database.ConnectRetries, "database.connect_retries must be non-negative")
	case c.Session.Backend != SessionBackendSQL && c.Session.Backend != SessionBackendRedis:
		return invalid("session.backend", c.Session.Backend, "session.backend must be %q or %q", SessionBackendSQL, SessionBackendRedis)
	case c.Session.Backend == SessionBackendRedis && c.Redis.Addr == "":
		return invalid("redis.addr", "", "redis.addr is required for the redis session backend")
	case c.Hasher.Algorithm != auth.AlgorithmBcrypt && c.Hasher.Algorithm != auth.AlgorithmArgon2id:
		return invalid("hasher.algorithm", c.Hasher.Algorithm, "hasher.algorithm must be %q or %q", auth.AlgorithmBcrypt, auth.AlgorithmArgon2id)
	case c.Hasher.Algorithm == auth.AlgorithmBcrypt && (c.Hasher.Cost < bcrypt.MinCost || c.Hasher.Cost > bcrypt.MaxCost):
		return invalid("hasher.cost", c.Hasher.Cost, "hasher.cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	case c.Password.MinLength < 0:
		return invalid("password.min_length", c.Password.MinLength, "password.min_length must be non-negative")
	case c.Workers.Size < 1:
		return invalid("workers.size", c.Workers.Size, "workers.size must be at least 1")
	case c.Workers.Queue < 1:
		return invalid("workers.queue", c.Workers.Queue, "workers.queue must be at least 1")
	case c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText:
		return invalid("log.format", c.Log.Format, "log.format must be %q or %q", logging.FormatJSON, logging.FormatText)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "log.level is not a valid level")
	}
	return nil
}
