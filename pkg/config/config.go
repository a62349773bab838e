package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Payments PaymentsConfig
	Catalog  CatalogConfig
	Progress ProgressConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PaymentsConfig configures the external checkout provider and the
// background reconciliation worker.
type PaymentsConfig struct {
	ProviderBaseURL  string
	ClientID         string
	APIKey           string
	ChecksumKey      string
	CheckoutTimeout  time.Duration
	PendingTTL       time.Duration
	FrontendURL      string
	ReconcileEnabled bool
	ReconcileWorkers int
	ReconcileRetries int
	ReconcileDelay   time.Duration
}

// CatalogConfig governs caching of public course reads.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ProgressConfig bounds slow progress updates.
type ProgressConfig struct {
	ResponseTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Payments = PaymentsConfig{
		ProviderBaseURL:  v.GetString("PAYOS_BASE_URL"),
		ClientID:         v.GetString("PAYOS_CLIENT_ID"),
		APIKey:           v.GetString("PAYOS_API_KEY"),
		ChecksumKey:      v.GetString("PAYOS_CHECKSUM_KEY"),
		CheckoutTimeout:  parseDuration(v.GetString("PAYOS_CHECKOUT_TIMEOUT"), 10*time.Second),
		PendingTTL:       parseDuration(v.GetString("PAYMENTS_PENDING_TTL"), 15*time.Minute),
		FrontendURL:      v.GetString("FRONTEND_URL"),
		ReconcileEnabled: v.GetBool("PAYMENTS_RECONCILE_ENABLED"),
		ReconcileWorkers: v.GetInt("PAYMENTS_RECONCILE_WORKERS"),
		ReconcileRetries: v.GetInt("PAYMENTS_RECONCILE_RETRIES"),
		ReconcileDelay:   parseDuration(v.GetString("PAYMENTS_RECONCILE_DELAY"), 30*time.Second),
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("CATALOG_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Progress = ProgressConfig{
		ResponseTimeout: parseDuration(v.GetString("PROGRESS_RESPONSE_TIMEOUT"), 25*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edushare")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "edushare-course-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PAYOS_BASE_URL", "https://api-merchant.payos.vn")
	v.SetDefault("PAYOS_CLIENT_ID", "")
	v.SetDefault("PAYOS_API_KEY", "")
	v.SetDefault("PAYOS_CHECKSUM_KEY", "")
	v.SetDefault("PAYOS_CHECKOUT_TIMEOUT", "10s")
	v.SetDefault("PAYMENTS_PENDING_TTL", "15m")
	v.SetDefault("FRONTEND_URL", "http://localhost:8080")
	v.SetDefault("PAYMENTS_RECONCILE_ENABLED", false)
	v.SetDefault("PAYMENTS_RECONCILE_WORKERS", 1)
	v.SetDefault("PAYMENTS_RECONCILE_RETRIES", 3)
	v.SetDefault("PAYMENTS_RECONCILE_DELAY", "30s")

	v.SetDefault("CATALOG_CACHE_ENABLED", false)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	v.SetDefault("PROGRESS_RESPONSE_TIMEOUT", "25s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
