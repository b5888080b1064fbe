package config

import (
	"errors"
	"fmt"
	"time"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and locates the message store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	// JWTRequired makes add-user carry a token whose subject is the identity.
	// Turning it off lets clients claim any bare identity.
	JWTRequired bool `mapstructure:"jwt_required" yaml:"jwt_required"`

	MaxMessageBytes    int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	TypingTimeout      time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "commhub.db",
		},
		JWTSecret:          "change-me-in-production",
		JWTIssuer:          "commhub",
		JWTAudience:        "commhub-clients",
		JWTTTL:             24 * time.Hour,
		JWTRequired:        true,
		MaxMessageBytes:    4096,
		TypingTimeout:      time.Second,
		HistoryLimit:       100,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is empty"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	if c.TypingTimeout <= 0 {
		errs = append(errs, errors.New("typing_timeout must be positive"))
	}
	return errors.Join(errs...)
}
