package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultJWTSecret = "change-me-jwt-secret"
	defaultDSN       = "chargeslot.db"
)

type Config struct {
	AppEnv             string
	HTTPPort           string
	DatabaseURL        string
	JWTSecret          string
	JWTTTL             time.Duration
	LogLevel           string
	ReceiptDir         string
	Currency           string
	RabbitMQURL        string
	RedisAddr          string
	CORSAllowedOrigins []string
	Sweep              SweepConfig
}

type SweepConfig struct {
	StaleInterval     time.Duration
	PastStartInterval time.Duration
	PendingTTL        time.Duration
}

// Load reads .env (if present) and the environment. Explicit environment
// variables win over .env values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_URL", defaultDSN)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RECEIPT_DIR", "./data/receipts")
	v.SetDefault("CURRENCY", "EUR")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("SWEEP_STALE_INTERVAL", "1h")
	v.SetDefault("SWEEP_PAST_START_INTERVAL", "30m")
	v.SetDefault("SWEEP_PENDING_TTL", "24h")
	return v
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:      strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		HTTPPort:    strings.TrimSpace(v.GetString("HTTP_PORT")),
		DatabaseURL: strings.TrimSpace(v.GetString("DATABASE_URL")),
		JWTSecret:   strings.TrimSpace(v.GetString("JWT_SECRET")),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		ReceiptDir:  strings.TrimSpace(v.GetString("RECEIPT_DIR")),
		Currency:    strings.ToUpper(strings.TrimSpace(v.GetString("CURRENCY"))),
		RabbitMQURL: strings.TrimSpace(v.GetString("RABBITMQ_URL")),
		RedisAddr:   strings.TrimSpace(v.GetString("REDIS_ADDR")),
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "dev"
	}

	for _, origin := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	var err error
	if cfg.JWTTTL, err = parseDuration(v, "JWT_TTL"); err != nil {
		return nil, err
	}
	if cfg.Sweep.StaleInterval, err = parseDuration(v, "SWEEP_STALE_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.Sweep.PastStartInterval, err = parseDuration(v, "SWEEP_PAST_START_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.Sweep.PendingTTL, err = parseDuration(v, "SWEEP_PENDING_TTL"); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProd() bool { return isProdLike(c.AppEnv) }

func validateConfig(cfg *Config) error {
	if cfg.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.Sweep.StaleInterval <= 0 {
		return fmt.Errorf("SWEEP_STALE_INTERVAL must be > 0")
	}
	if cfg.Sweep.PastStartInterval <= 0 {
		return fmt.Errorf("SWEEP_PAST_START_INTERVAL must be > 0")
	}
	if cfg.Sweep.PendingTTL <= 0 {
		return fmt.Errorf("SWEEP_PENDING_TTL must be > 0")
	}
	if cfg.ReceiptDir == "" {
		return fmt.Errorf("RECEIPT_DIR must not be empty")
	}
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter code, got %q", cfg.Currency)
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres") {
			return fmt.Errorf("in prod/release DATABASE_URL must point to postgres")
		}
	}
	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDuration(v *viper.Viper, name string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(name))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}
