// Package config provides configuration management for the cultivation
// tracker. Settings load from environment variables with the MYCO_ prefix,
// with an optional YAML file overlay for deployments that prefer a config
// file. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	IoT     IoTConfig     `yaml:"iot"`
	Backup  BackupConfig  `yaml:"backup"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 8420)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)

	// RateLimitPerSecond bounds request throughput per client; 0 disables
	// the limiter.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Engine selects the storage backend: sqlite or postgres.
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the SQLite database file.
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string used when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	// JWTSecret signs access tokens. Required outside development.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is how long issued tokens stay valid (default: 24h).
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// IoTConfig contains gateway client settings.
type IoTConfig struct {
	// RequestTimeout bounds each Home Assistant API call (default: 10s).
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// BackupConfig contains backup configuration.
type BackupConfig struct {
	Enabled          bool   `yaml:"enabled"`           // Enable automatic backups (default: false)
	Interval         string `yaml:"interval"`          // Backup interval duration (default: 24h)
	Path             string `yaml:"path"`              // Path to backup directory (default: ./backups)
	Verify           bool   `yaml:"verify"`            // Verify backups after creation (default: true)
	RetentionHourly  int    `yaml:"retention_hourly"`  // Hourly backups to keep (default: 24)
	RetentionDaily   int    `yaml:"retention_daily"`   // Daily backups to keep (default: 7)
	RetentionWeekly  int    `yaml:"retention_weekly"`  // Weekly backups to keep (default: 4)
	RetentionMonthly int    `yaml:"retention_monthly"` // Monthly backups to keep (default: 12)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the MYCO_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads a YAML config file, then applies environment
// variable overrides on top. A missing file is not an error; the result is
// then identical to LoadConfig.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: MYCO_POSTGRES_DSN is required for the postgres engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8420,
			Host:               "127.0.0.1",
			RateLimitPerSecond: 50,
			RateLimitBurst:     100,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		IoT: IoTConfig{
			RequestTimeout: 10 * time.Second,
		},
		Backup: BackupConfig{
			Enabled:          false,
			Interval:         "24h",
			Path:             "./backups",
			Verify:           true,
			RetentionHourly:  24,
			RetentionDaily:   7,
			RetentionWeekly:  4,
			RetentionMonthly: 12,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("MYCO_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("MYCO_HOST", cfg.Server.Host)
	cfg.Server.RateLimitPerSecond = getEnvFloat("MYCO_RATE_LIMIT_PER_SECOND", cfg.Server.RateLimitPerSecond)
	cfg.Server.RateLimitBurst = getEnvInt("MYCO_RATE_LIMIT_BURST", cfg.Server.RateLimitBurst)

	cfg.Storage.Engine = getEnv("MYCO_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("MYCO_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("MYCO_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Auth.JWTSecret = getEnv("MYCO_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnvDuration("MYCO_TOKEN_TTL", cfg.Auth.TokenTTL)

	cfg.IoT.RequestTimeout = getEnvDuration("MYCO_IOT_REQUEST_TIMEOUT", cfg.IoT.RequestTimeout)

	cfg.Backup.Enabled = getEnvBool("MYCO_BACKUP_ENABLED", cfg.Backup.Enabled)
	cfg.Backup.Interval = getEnv("MYCO_BACKUP_INTERVAL", cfg.Backup.Interval)
	cfg.Backup.Path = getEnv("MYCO_BACKUP_PATH", cfg.Backup.Path)
	cfg.Backup.Verify = getEnvBool("MYCO_BACKUP_VERIFY", cfg.Backup.Verify)
	cfg.Backup.RetentionHourly = getEnvInt("MYCO_BACKUP_RETENTION_HOURLY", cfg.Backup.RetentionHourly)
	cfg.Backup.RetentionDaily = getEnvInt("MYCO_BACKUP_RETENTION_DAILY", cfg.Backup.RetentionDaily)
	cfg.Backup.RetentionWeekly = getEnvInt("MYCO_BACKUP_RETENTION_WEEKLY", cfg.Backup.RetentionWeekly)
	cfg.Backup.RetentionMonthly = getEnvInt("MYCO_BACKUP_RETENTION_MONTHLY", cfg.Backup.RetentionMonthly)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. An unparsable value falls back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
