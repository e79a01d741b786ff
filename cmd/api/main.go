package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/batch-shortener/internal/config"
	"github.com/SergeiKhy/batch-shortener/internal/handler"
	"github.com/SergeiKhy/batch-shortener/internal/middleware"
	"github.com/SergeiKhy/batch-shortener/internal/repository"
	"github.com/SergeiKhy/batch-shortener/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := newLogger(cfg.App.Env)
	defer logger.Sync()

	// Хранилище ключ-значение
	kv, cleanup, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer cleanup()

	// Журнал событий (Worker Pool)
	journal := service.NewJournal(kv, logger)
	journal.Start()
	defer journal.Stop()

	// Инициализация сервиса
	store := repository.NewMappingStore(kv, cfg.Store.Key, logger)
	linkService := service.NewLinkService(store, journal, logger, service.WithConfig(cfg.Shortener))

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	// Настройка роутера
	router := handler.NewRouter(linkService, rateLimiter, cfg.App.BaseURL, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("backend", cfg.Store.Backend),
			zap.String("base_url", cfg.App.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(env string) *zap.Logger {
	if env == "development" {
		gin.SetMode(gin.DebugMode)
		logger, _ := zap.NewDevelopment()
		return logger
	}

	gin.SetMode(gin.ReleaseMode)
	logger, _ := zap.NewProduction()
	return logger
}

// openStore подключает выбранный бэкенд. Возвращённая функция закрывает
// все открытые соединения.
func openStore(cfg *config.Config, logger *zap.Logger) (repository.KV, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to Redis")
		return repository.NewRedisKV(redis), func() { redis.Close() }, nil

	case config.BackendPostgres:
		db, err := repository.NewPostgresDB(cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		kv, err := repository.NewPostgresKV(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}

		if !cfg.Cache.Enabled {
			return kv, db.Close, nil
		}

		// Redis как кэш перед PostgreSQL
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Connected to Redis", zap.Duration("cache_ttl", cfg.Cache.TTL))

		cached := repository.NewCachedKV(kv, repository.NewRedisKV(redis), cfg.Cache.TTL, logger)
		return cached, func() {
			redis.Close()
			db.Close()
		}, nil

	default:
		logger.Warn("Using in-memory store, data is lost on restart")
		return repository.NewMemoryKV(), func() {}, nil
	}
}
