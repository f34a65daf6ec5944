// Package config loads server settings from defaults, an optional YAML
// file and TEAMSYNC_* environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TEAMSYNC_STORE_DRIVER for store.driver.
const EnvPrefix = "TEAMSYNC"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Presence PresenceConfig `mapstructure:"presence"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins restricts browser origins for CORS and websockets.
	// Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StoreConfig struct {
	Driver         string        `mapstructure:"driver"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	PostgresURL    string        `mapstructure:"postgres_url"`
	MaxTxAttempts  int           `mapstructure:"max_tx_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig enables cross-instance change delivery when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type PresenceConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:         DriverSQLite,
			SQLitePath:     "./data/teamsync.db",
			MaxTxAttempts:  5,
			RetryBaseDelay: 5 * time.Millisecond,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Redis: RedisConfig{
			Channel: "teamsync:changes",
		},
		Presence: PresenceConfig{
			Interval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every key with its default so environment
// variables can override keys that no config file mentions.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.postgres_url", d.Store.PostgresURL)
	v.SetDefault("store.max_tx_attempts", d.Store.MaxTxAttempts)
	v.SetDefault("store.retry_base_delay", d.Store.RetryBaseDelay)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel", d.Redis.Channel)

	v.SetDefault("presence.interval", d.Presence.Interval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// New returns a viper instance with defaults and environment binding set
// up. When file is non-empty it is read as the config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels lists the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats lists the accepted logging.format values.
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// ValidDrivers lists the accepted store.driver values.
func ValidDrivers() []string {
	return []string{DriverSQLite, DriverPostgres, DriverMemory}
}

// Validate reports every invalid setting. A nil result means the config is
// usable.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Server.Addr == "" {
		add("server.addr", c.Server.Addr, "must not be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout", c.Server.ShutdownTimeout, "must be positive")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path", c.Store.SQLitePath, "required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			add("store.postgres_url", c.Store.PostgresURL, "required for the postgres driver")
		}
	case DriverMemory:
	default:
		add("store.driver", c.Store.Driver, "must be one of "+strings.Join(ValidDrivers(), ", "))
	}
	if c.Store.MaxTxAttempts < 1 {
		add("store.max_tx_attempts", c.Store.MaxTxAttempts, "must be at least 1")
	}
	if c.Store.RetryBaseDelay < 0 {
		add("store.retry_base_delay", c.Store.RetryBaseDelay, "must not be negative")
	}

	if c.Auth.JWTSecret == "" {
		add("auth.jwt_secret", "", "must be set")
	}
	if c.Auth.TokenTTL <= 0 {
		add("auth.token_ttl", c.Auth.TokenTTL, "must be positive")
	}

	if c.Redis.DB < 0 {
		add("redis.db", c.Redis.DB, "must not be negative")
	}
	if c.Presence.Interval <= 0 {
		add("presence.interval", c.Presence.Interval, "must be positive")
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(ValidLogLevels(), ", "))
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		add("logging.format", c.Logging.Format, "must be one of "+strings.Join(ValidLogFormats(), ", "))
	}
	return errs
}
