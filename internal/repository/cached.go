package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// cachedKV cache-aside поверх основного хранилища. Ошибки кэша не
// прерывают операцию, только логируются.
type cachedKV struct {
	primary KV
	cache   KV
	ttl     time.Duration
	logger  *zap.Logger
}

func NewCachedKV(primary, cache KV, ttl time.Duration, logger *zap.Logger) KV {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedKV{
		primary: primary,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

func (r *cachedKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.cache.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		r.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err = r.primary.Get(ctx, key)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil {
		r.logger.Warn("Failed to warm up cache", zap.String("key", key), zap.Error(err))
	}

	return value, nil
}

func (r *cachedKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.primary.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	cacheTTL := r.ttl
	if ttl > 0 && ttl < cacheTTL {
		cacheTTL = ttl
	}
	if err := r.cache.Set(ctx, key, value, cacheTTL); err != nil {
		r.logger.Warn("Failed to refresh cache, dropping entry", zap.String("key", key), zap.Error(err))
		r.invalidate(ctx, key)
	}

	return nil
}

func (r *cachedKV) Delete(ctx context.Context, key string) error {
	r.invalidate(ctx, key)
	return r.primary.Delete(ctx, key)
}

func (r *cachedKV) invalidate(ctx context.Context, key string) {
	if err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warn("Failed to invalidate cache", zap.String("key", key), zap.Error(err))
	}
}
