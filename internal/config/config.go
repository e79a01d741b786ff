package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Поддерживаемые бэкенды хранилища
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	App       AppConfig
	Store     StoreConfig
	DB        DBConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Shortener ShortenerConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port    string
	Env     string
	BaseURL string
}

type StoreConfig struct {
	Backend string
	Key     string // ключ, под которым лежит весь маппинг
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type ShortenerConfig struct {
	MaxBatchSize           int
	DefaultValidityMinutes int
	CodeLength             int
	ClickSourceFallback    string
	ClickLocation          string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Load читает конфиг из .env в рабочей директории и переменных окружения
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile читает конфиг из указанного env-файла. Отсутствие файла не ошибка:
// в контейнере всё приходит через окружение.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.Env = v.GetString("APP_ENV")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("BASE_URL"), "/")

	cfg.Store.Backend = strings.ToLower(v.GetString("STORE_BACKEND"))
	cfg.Store.Key = v.GetString("STORE_KEY")

	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")

	cfg.Cache.Enabled = v.GetBool("CACHE_ENABLED")
	cfg.Cache.TTL = v.GetDuration("CACHE_TTL")

	cfg.Shortener.MaxBatchSize = v.GetInt("MAX_BATCH_SIZE")
	cfg.Shortener.DefaultValidityMinutes = v.GetInt("DEFAULT_VALIDITY_MINUTES")
	cfg.Shortener.CodeLength = v.GetInt("CODE_LENGTH")
	cfg.Shortener.ClickSourceFallback = v.GetString("CLICK_SOURCE_FALLBACK")
	cfg.Shortener.ClickLocation = v.GetString("CLICK_LOCATION")

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("STORE_KEY", "shortUrls")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "shortener")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL", time.Minute)

	v.SetDefault("MAX_BATCH_SIZE", 5)
	v.SetDefault("DEFAULT_VALIDITY_MINUTES", 30)
	v.SetDefault("CODE_LENGTH", 6)
	v.SetDefault("CLICK_SOURCE_FALLBACK", "localhost")
	v.SetDefault("CLICK_LOCATION", "IN")

	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
}

// Validate проверяет значения, которые нельзя молча заменить дефолтом
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if c.Store.Key == "" {
		return errors.New("STORE_KEY must not be empty")
	}
	if c.Shortener.MaxBatchSize < 1 || c.Shortener.MaxBatchSize > 100 {
		return fmt.Errorf("MAX_BATCH_SIZE must be between 1 and 100, got %d", c.Shortener.MaxBatchSize)
	}
	if c.Shortener.DefaultValidityMinutes < 1 {
		return fmt.Errorf("DEFAULT_VALIDITY_MINUTES must be positive, got %d", c.Shortener.DefaultValidityMinutes)
	}
	if c.Shortener.CodeLength < 6 || c.Shortener.CodeLength > 32 {
		return fmt.Errorf("CODE_LENGTH must be between 6 and 32, got %d", c.Shortener.CodeLength)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("CACHE_TTL must be positive when cache is enabled")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}
