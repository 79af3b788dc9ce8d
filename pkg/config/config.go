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

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Attachments AttachmentsConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
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
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttachmentsConfig governs upload storage and the orphan sweep.
type AttachmentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	RetentionWindow  time.Duration
	SweepInterval    time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// RateLimitConfig tunes the Redis-backed request limiter.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
}

// CacheConfig governs read-model caching for grievance views.
type CacheConfig struct {
	Enabled bool
	ViewTTL time.Duration
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
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitList(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attachments = AttachmentsConfig{
		StorageDir:       v.GetString("ATTACHMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("ATTACHMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     v.GetDuration("ATTACHMENTS_SIGNED_URL_TTL"),
		RetentionWindow:  v.GetDuration("ATTACHMENTS_RETENTION_WINDOW"),
		SweepInterval:    v.GetDuration("ATTACHMENTS_SWEEP_INTERVAL"),
		MaxFileSizeBytes: v.GetInt64("ATTACHMENTS_MAX_FILE_SIZE_BYTES"),
		AllowedMIMEs:     splitList(v.GetString("ATTACHMENTS_ALLOWED_MIMES")),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
		RequestsPerWindow: v.GetInt("RATE_LIMIT_REQUESTS_PER_WINDOW"),
		Window:            v.GetDuration("RATE_LIMIT_WINDOW"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		ViewTTL: v.GetDuration("CACHE_VIEW_TTL"),
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
	v.SetDefault("DB_NAME", "grievance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "grievance-api")
	v.SetDefault("JWT_AUDIENCE", "grievance-clients")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTACHMENTS_STORAGE_DIR", "./uploads")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_SECRET", "")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_TTL", 15*time.Minute)
	v.SetDefault("ATTACHMENTS_RETENTION_WINDOW", 24*time.Hour)
	v.SetDefault("ATTACHMENTS_SWEEP_INTERVAL", time.Hour)
	v.SetDefault("ATTACHMENTS_MAX_FILE_SIZE_BYTES", int64(10*1024*1024))
	v.SetDefault("ATTACHMENTS_ALLOWED_MIMES", "application/pdf,image/png,image/jpeg")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_WINDOW", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_VIEW_TTL", 30*time.Second)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
