package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	MetricsPort             string `mapstructure:"METRICS_PORT"`
	LogLevel                string `mapstructure:"LOG_LEVEL"`
	StorageDriver           string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	DatabaseMaxConns        int32  `mapstructure:"DATABASE_MAX_CONNS"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	LockPrefix              string `mapstructure:"LOCK_PREFIX"`
	LockTTLSeconds          int    `mapstructure:"LOCK_TTL_SECONDS"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	TransferEventExchange   string `mapstructure:"TRANSFER_EVENT_EXCHANGE"`
	EventWorkers            int    `mapstructure:"EVENT_WORKERS"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes           int    `mapstructure:"JWT_TTL_MINUTES"`
	SigningSecret           string `mapstructure:"SIGNING_SECRET"`
	TransferMaxAttempts     int    `mapstructure:"TRANSFER_MAX_ATTEMPTS"`
	FailureLogTimeoutSecs   int    `mapstructure:"FAILURE_LOG_TIMEOUT_SECONDS"`
	BalanceSnapshotSchedule string `mapstructure:"BALANCE_SNAPSHOT_SCHEDULE"`
	BalanceSeriesLimit      int    `mapstructure:"ACCOUNT_BALANCE_SERIES_LIMIT"`
	RequireSignature        bool   `mapstructure:"REQUIRE_TRANSFER_SIGNATURE"`
	CORSAllowedOrigins      string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	AdminUsername           string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword           string `mapstructure:"ADMIN_PASSWORD"`
}

var defaults = map[string]any{
	"SERVER_PORT":                  "8080",
	"METRICS_PORT":                 "9090",
	"LOG_LEVEL":                    "info",
	"STORAGE_DRIVER":               DriverMemory,
	"DATABASE_MAX_CONNS":           20,
	"LOCK_PREFIX":                  "ledger:lock",
	"LOCK_TTL_SECONDS":             10,
	"TRANSFER_EVENT_EXCHANGE":      "transfer_events",
	"EVENT_WORKERS":                2,
	"JWT_TTL_MINUTES":              60,
	"TRANSFER_MAX_ATTEMPTS":        3,
	"FAILURE_LOG_TIMEOUT_SECONDS":  5,
	"BALANCE_SNAPSHOT_SCHEDULE":    "@every 1m",
	"ACCOUNT_BALANCE_SERIES_LIMIT": 50,
	"REQUIRE_TRANSFER_SIGNATURE":   false,
	"CORS_ALLOWED_ORIGINS":         "http://localhost:4200",
}

var boundOnly = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"RABBITMQ_URL",
	"JWT_SECRET",
	"SIGNING_SECRET",
	"ADMIN_USERNAME",
	"ADMIN_PASSWORD",
}

// LoadConfig reads the environment and an optional .env file in path.
// Environment variables win over the file.
func LoadConfig(path string) (config Config, err error) {
	v := viper.GetViper()
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	for _, key := range boundOnly {
		_ = v.BindEnv(key)
	}

	if path != "" {
		if err = v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				slog.Warn("Failed to read config file, using environment values", slog.String("error", err.Error()))
			}
			err = nil
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	config.normalize()
	if err = config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RabbitMQURL = strings.TrimSpace(c.RabbitMQURL)
	c.LockPrefix = strings.TrimSpace(c.LockPrefix)
	if c.LockPrefix == "" {
		c.LockPrefix = "ledger:lock"
	}
	if c.DatabaseMaxConns <= 0 {
		c.DatabaseMaxConns = 20
	}
	if c.LockTTLSeconds <= 0 {
		c.LockTTLSeconds = 10
	}
	if c.EventWorkers <= 0 {
		c.EventWorkers = 1
	}
	if c.JWTTTLMinutes <= 0 {
		c.JWTTTLMinutes = 60
	}
	if c.TransferMaxAttempts <= 0 {
		c.TransferMaxAttempts = 1
	}
	if c.FailureLogTimeoutSecs <= 0 {
		c.FailureLogTimeoutSecs = 5
	}
	if c.BalanceSeriesLimit < 0 {
		c.BalanceSeriesLimit = 0
	}
	if strings.TrimSpace(c.BalanceSnapshotSchedule) == "" {
		c.BalanceSnapshotSchedule = "@every 1m"
	}
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.RequireSignature && strings.TrimSpace(c.SigningSecret) == "" {
		return errors.New("SIGNING_SECRET is required when REQUIRE_TRANSFER_SIGNATURE is set")
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func (c Config) FailureLogTimeout() time.Duration {
	return time.Duration(c.FailureLogTimeoutSecs) * time.Second
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
