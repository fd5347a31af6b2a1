// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "TICKETBRIDGE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for ticketbridge.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths    PathsConfig    `yaml:"paths"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Log      LogConfig      `yaml:"log"`

	// RateLimits overrides the limiter's default bucket shapes, keyed
	// by category name (global, send, channel_create, channel_edit,
	// fetch).
	RateLimits map[string]LimitConfig `yaml:"ratelimits"`

	Pool     PoolConfig     `yaml:"pool"`
	Relay    RelayConfig    `yaml:"relay"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Ledger   LedgerConfig   `yaml:"ledger"`

	// Environment-specific overrides.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the sections an environment block may replace.
// Only non-empty fields take effect.
type Overrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Matrix   *MatrixConfig   `yaml:"matrix,omitempty"`
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Redis    *RedisConfig    `yaml:"redis,omitempty"`
	AMQP     *AMQPConfig     `yaml:"amqp,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
}

// PathsConfig defines filesystem locations. The other paths default to
// files under StateDir.
type PathsConfig struct {
	StateDir     string `yaml:"state_dir"`
	Database     string `yaml:"database"`
	CrashLog     string `yaml:"crash_log"`
	RestartState string `yaml:"restart_state"`
	Catalog      string `yaml:"catalog"`
}

// MatrixConfig configures the staff platform connection.
type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`
	UserID        string `yaml:"user_id"`

	// TokenEnv names the environment variable holding the access
	// token. The token itself never appears in the file.
	TokenEnv string `yaml:"token_env"`

	// StaffSpace is the space new ticket rooms are attached to.
	// Optional.
	StaffSpace string `yaml:"staff_space"`

	// StaffInvite lists users invited to every new ticket room.
	StaffInvite []string `yaml:"staff_invite"`

	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// TelegramConfig configures the customer platform connection.
type TelegramConfig struct {
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `yaml:"token_env"`

	// APIEndpoint overrides the Bot API URL format. Optional.
	APIEndpoint string `yaml:"api_endpoint"`

	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// RedisConfig selects the Redis session store. An empty URL keeps
// sessions in SQLite.
type RedisConfig struct {
	URL        string        `yaml:"url"`
	KeyPrefix  string        `yaml:"key_prefix"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// AMQPConfig enables lifecycle event publication. An empty URL
// discards events.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// LimitConfig is one rate-limit bucket shape.
type LimitConfig struct {
	Capacity int           `yaml:"capacity"`
	Interval time.Duration `yaml:"interval"`
}

// PoolConfig configures the staff connection pool. Zero fields take the
// pool's defaults.
type PoolConfig struct {
	MaxPerChannel    int           `yaml:"max_per_channel"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// RelayConfig configures bridge retries. Zero fields take the bridge's
// defaults.
type RelayConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// RecoveryConfig configures the restart policy. Zero fields take the
// supervisor's defaults.
type RecoveryConfig struct {
	BaseBackoff        time.Duration `yaml:"base_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	RapidWindow        time.Duration `yaml:"rapid_window"`
	MaxAttemptsPerHour int           `yaml:"max_attempts_per_hour"`
}

// LedgerConfig configures background ledger maintenance.
type LedgerConfig struct {
	// ReconcileInterval is how often worker summaries are rebuilt from
	// entries. Zero disables the periodic pass.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// Default returns a configuration with development defaults.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			StateDir:     "${HOME}/.local/state/ticketbridge",
			Database:     "${STATE_DIR}/ticketbridge.db",
			CrashLog:     "${STATE_DIR}/crashes.jsonl",
			RestartState: "${STATE_DIR}/restart.json",
			Catalog:      "${STATE_DIR}/categories.jsonc",
		},
		Matrix: MatrixConfig{
			TokenEnv:    "TICKETBRIDGE_MATRIX_TOKEN",
			SyncTimeout: 30 * time.Second,
		},
		Telegram: TelegramConfig{
			TokenEnv:    "TICKETBRIDGE_TELEGRAM_TOKEN",
			PollTimeout: 50 * time.Second,
		},
		Redis: RedisConfig{
			KeyPrefix:  "ticketbridge:session:",
			SessionTTL: 30 * 24 * time.Hour,
		},
		AMQP: AMQPConfig{
			Exchange: "ticketbridge",
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
		},
		Ledger: LedgerConfig{
			ReconcileInterval: time.Hour,
		},
	}
}

// Load loads configuration from the file named by TICKETBRIDGE_CONFIG.
// There is no search path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your ticketbridge.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// section for the selected environment, and expands ${VAR} references.
// Secrets are read from the environment variables the file names, never
// from the file itself.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section for c.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production logs are machine-read unless the file says otherwise.
		if overrides == nil {
			overrides = &Overrides{Log: &LogConfig{Level: "info", Format: "json"}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		override(&c.Paths.StateDir, overrides.Paths.StateDir)
		override(&c.Paths.Database, overrides.Paths.Database)
		override(&c.Paths.CrashLog, overrides.Paths.CrashLog)
		override(&c.Paths.RestartState, overrides.Paths.RestartState)
		override(&c.Paths.Catalog, overrides.Paths.Catalog)
	}

	if overrides.Matrix != nil {
		override(&c.Matrix.HomeserverURL, overrides.Matrix.HomeserverURL)
		override(&c.Matrix.UserID, overrides.Matrix.UserID)
		override(&c.Matrix.TokenEnv, overrides.Matrix.TokenEnv)
		override(&c.Matrix.StaffSpace, overrides.Matrix.StaffSpace)
		if len(overrides.Matrix.StaffInvite) > 0 {
			c.Matrix.StaffInvite = overrides.Matrix.StaffInvite
		}
		if overrides.Matrix.SyncTimeout > 0 {
			c.Matrix.SyncTimeout = overrides.Matrix.SyncTimeout
		}
	}

	if overrides.Telegram != nil {
		override(&c.Telegram.TokenEnv, overrides.Telegram.TokenEnv)
		override(&c.Telegram.APIEndpoint, overrides.Telegram.APIEndpoint)
		if overrides.Telegram.PollTimeout > 0 {
			c.Telegram.PollTimeout = overrides.Telegram.PollTimeout
		}
	}

	if overrides.Redis != nil {
		override(&c.Redis.URL, overrides.Redis.URL)
		override(&c.Redis.KeyPrefix, overrides.Redis.KeyPrefix)
		if overrides.Redis.SessionTTL > 0 {
			c.Redis.SessionTTL = overrides.Redis.SessionTTL
		}
	}

	if overrides.AMQP != nil {
		override(&c.AMQP.URL, overrides.AMQP.URL)
		override(&c.AMQP.Exchange, overrides.AMQP.Exchange)
	}

	if overrides.Log != nil {
		override(&c.Log.Level, overrides.Log.Level)
		override(&c.Log.Format, overrides.Log.Format)
	}
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and connection URLs. ${STATE_DIR} refers to the expanded state
// directory.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.StateDir = expandVars(c.Paths.StateDir, vars)
	vars["STATE_DIR"] = c.Paths.StateDir

	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.CrashLog = expandVars(c.Paths.CrashLog, vars)
	c.Paths.RestartState = expandVars(c.Paths.RestartState, vars)
	c.Paths.Catalog = expandVars(c.Paths.Catalog, vars)
	c.Matrix.HomeserverURL = expandVars(c.Matrix.HomeserverURL, vars)
	c.Redis.URL = expandVars(c.Redis.URL, vars)
	c.AMQP.URL = expandVars(c.AMQP.URL, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var rateLimitCategories = []string{"global", "send", "channel_create", "channel_edit", "fetch"}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Database == "" {
		errs = append(errs, errors.New("paths.database is required"))
	}
	if c.Paths.Catalog == "" {
		errs = append(errs, errors.New("paths.catalog is required"))
	}

	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, errors.New("matrix.homeserver_url is required"))
	} else if !strings.HasPrefix(c.Matrix.HomeserverURL, "http://") && !strings.HasPrefix(c.Matrix.HomeserverURL, "https://") {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url must be an http(s) URL, got %q", c.Matrix.HomeserverURL))
	}
	if !strings.HasPrefix(c.Matrix.UserID, "@") || !strings.Contains(c.Matrix.UserID, ":") {
		errs = append(errs, fmt.Errorf("matrix.user_id must look like @name:server, got %q", c.Matrix.UserID))
	}
	if c.Matrix.TokenEnv == "" {
		errs = append(errs, errors.New("matrix.token_env is required"))
	}
	if c.Telegram.TokenEnv == "" {
		errs = append(errs, errors.New("telegram.token_env is required"))
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		errs = append(errs, fmt.Errorf("redis.url must use redis:// or rediss://, got %q", c.Redis.URL))
	}
	if c.AMQP.URL != "" && !strings.HasPrefix(c.AMQP.URL, "amqp://") && !strings.HasPrefix(c.AMQP.URL, "amqps://") {
		errs = append(errs, fmt.Errorf("amqp.url must use amqp:// or amqps://, got %q", c.AMQP.URL))
	}

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be one of: [text json], got %q", c.Log.Format))
	}

	for name, limit := range c.RateLimits {
		if !contains(rateLimitCategories, name) {
			errs = append(errs, fmt.Errorf("ratelimits.%s: unknown category (want one of %v)", name, rateLimitCategories))
			continue
		}
		if limit.Capacity <= 0 || limit.Interval <= 0 {
			errs = append(errs, fmt.Errorf("ratelimits.%s: capacity and interval must be positive", name))
		}
	}

	if c.Pool.MaxPerChannel < 0 || c.Pool.FailureThreshold < 0 {
		errs = append(errs, errors.New("pool limits must not be negative"))
	}
	if c.Relay.MaxAttempts < 0 {
		errs = append(errs, errors.New("relay.max_attempts must not be negative"))
	}
	if c.Recovery.MaxAttemptsPerHour < 0 {
		errs = append(errs, errors.New("recovery.max_attempts_per_hour must not be negative"))
	}
	if c.Ledger.ReconcileInterval < 0 {
		errs = append(errs, errors.New("ledger.reconcile_interval must not be negative"))
	}

	return errors.Join(errs...)
}

// MatrixToken returns the staff access token from the environment.
func (c *Config) MatrixToken() (string, error) {
	return secret(c.Matrix.TokenEnv)
}

// TelegramToken returns the bot token from the environment.
func (c *Config) TelegramToken() (string, error) {
	return secret(c.Telegram.TokenEnv)
}

func secret(envVar string) (string, error) {
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("config: environment variable %s is not set", envVar)
	}
	return value, nil
}

// EnsurePaths creates the directories the configured files live in.
func (c *Config) EnsurePaths() error {
	directories := []string{
		c.Paths.StateDir,
		filepath.Dir(c.Paths.Database),
		filepath.Dir(c.Paths.CrashLog),
		filepath.Dir(c.Paths.RestartState),
	}
	for _, path := range directories {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("config: creating %s: %w", path, err)
		}
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	switch l.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be one of: [debug info warn error], got %q", l.Level)
}

// NewLogger builds the process logger writing to w. An invalid level
// falls back to info.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
