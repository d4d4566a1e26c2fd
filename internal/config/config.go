// Package config loads the service configuration from a YAML file, an optional
// .env file and the process environment. Secrets are read from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvConfigPath    = "CARDHUB_CONFIG"
	EnvDatabaseDSN   = "CARDHUB_DATABASE_DSN"
	EnvJWTSecret     = "CARDHUB_JWT_SECRET"
	EnvRedisPassword = "CARDHUB_REDIS_PASSWORD"
	EnvListen        = "CARDHUB_LISTEN"
	EnvGinMode       = "CARDHUB_GIN_MODE"
	EnvRedisAddr     = "CARDHUB_REDIS_ADDR"
	EnvLogLevel      = "CARDHUB_LOG_LEVEL"
)

// DefaultConfigPath is used when neither a flag nor CARDHUB_CONFIG names a file.
const DefaultConfigPath = "config.yaml"

// minJWTSecretLength is the shortest accepted HMAC secret.
const minJWTSecretLength = 32

// ErrMissingSecret reports a mandatory secret absent from the environment.
var ErrMissingSecret = errors.New("config: missing secret")

// AppConfig carries process-level options from the command line.
type AppConfig struct {
	ConfigPath string
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cards    CardsConfig    `yaml:"cards"`

	// Path is the file the configuration was read from, empty when none existed.
	Path string `yaml:"-"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	Mode            string        `yaml:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
}

// DatabaseConfig configures the record store. DSN comes from CARDHUB_DATABASE_DSN.
type DatabaseConfig struct {
	DSN             string        `yaml:"-"`
	MaxOpenConns    int           `yaml:"max-open-conns"`
	ConnMaxLifetime time.Duration `yaml:"conn-max-lifetime"`
}

// JWTConfig configures token signing. Secret comes from CARDHUB_JWT_SECRET.
type JWTConfig struct {
	Secret       string        `yaml:"-"`
	Expiry       time.Duration `yaml:"expiry"`
	ClinicExpiry time.Duration `yaml:"clinic-expiry"`
}

// RedisConfig enables Redis-backed sessions and card locks when Addr is set.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	DB          int           `yaml:"db"`
	Password    string        `yaml:"-"`
	KeyPrefix   string        `yaml:"key-prefix"`
	LockBackoff time.Duration `yaml:"lock-backoff"`
	LockWait    time.Duration `yaml:"lock-wait"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// LoggingConfig configures logrus and file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
	Compress   bool   `yaml:"compress"`
}

// CardsConfig tunes the card lifecycle manager.
type CardsConfig struct {
	ControlPrefix string        `yaml:"control-prefix"`
	ChunkSize     int           `yaml:"chunk-size"`
	MaxBatchSize  int           `yaml:"max-batch-size"`
	RedisLocks    bool          `yaml:"redis-locks"`
	LockTTL       time.Duration `yaml:"lock-ttl"`
	SweepInterval time.Duration `yaml:"sweep-interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:          ":8318",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			ConnMaxLifetime: 30 * time.Minute,
		},
		JWT: JWTConfig{
			Expiry:       12 * time.Hour,
			ClinicExpiry: 24 * time.Hour,
		},
		Redis: RedisConfig{
			KeyPrefix:   "cardhub:",
			LockBackoff: 250 * time.Millisecond,
			LockWait:    5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
		Cards: CardsConfig{
			ControlPrefix: "MOC",
			ChunkSize:     250,
			MaxBatchSize:  10000,
			LockTTL:       15 * time.Second,
			SweepInterval: time.Hour,
		},
	}
}

// ResolveConfigPath picks the config file from the flag, CARDHUB_CONFIG or the default.
func ResolveConfigPath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load reads the configuration at path. A missing file is an error only when
// the path differs from DefaultConfigPath. Secrets are read but not required;
// call RequireDatabase or RequireServer before using them.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	cfg := Default()
	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errDecode := yaml.Unmarshal(data, &cfg); errDecode != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errDecode)
		}
		cfg.Path = path
	case errors.Is(errRead, os.ErrNotExist) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnv(&cfg)
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

// loadDotEnv loads .env from the working directory and next to the config
// file. Variables already set in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); dir != "." && dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, candidate := range candidates {
		if _, errStat := os.Stat(candidate); errStat != nil {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func applyEnv(cfg *Config) {
	cfg.Database.DSN = strings.TrimSpace(os.Getenv(EnvDatabaseDSN))
	cfg.JWT.Secret = os.Getenv(EnvJWTSecret)
	cfg.Redis.Password = os.Getenv(EnvRedisPassword)

	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGinMode)); v != "" {
		cfg.Server.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Cards.ChunkSize <= 0 || c.Cards.MaxBatchSize <= 0 {
		return errors.New("config: cards.chunk-size and cards.max-batch-size must be positive")
	}
	if c.Cards.RedisLocks && !c.Redis.Enabled() {
		return errors.New("config: cards.redis-locks requires redis.addr")
	}
	if c.JWT.Expiry <= 0 || c.JWT.ClinicExpiry <= 0 {
		return errors.New("config: jwt expiries must be positive")
	}
	return nil
}

// RequireDatabase fails when the database DSN is absent.
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: %s", ErrMissingSecret, EnvDatabaseDSN)
	}
	return nil
}

// RequireServer fails when any secret the HTTP server needs is absent.
func (c *Config) RequireServer() error {
	if errDB := c.RequireDatabase(); errDB != nil {
		return errDB
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: %s", ErrMissingSecret, EnvJWTSecret)
	}
	if len(c.JWT.Secret) < minJWTSecretLength {
		return fmt.Errorf("config: %s must be at least %d characters", EnvJWTSecret, minJWTSecretLength)
	}
	return nil
}
