package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SergeiKhy/batch-shortener/internal/models"
	"go.uber.org/zap"
)

// MappingStore читает и пишет весь маппинг целиком. Транзакций между
// Load и Save нет: при нескольких процессах побеждает последняя запись.
type MappingStore interface {
	Load(ctx context.Context) (models.Mapping, error)
	Save(ctx context.Context, mapping models.Mapping) error
}

type mappingStore struct {
	kv     KV
	key    string
	logger *zap.Logger
}

func NewMappingStore(kv KV, key string, logger *zap.Logger) MappingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mappingStore{kv: kv, key: key, logger: logger}
}

// Load возвращает пустой маппинг, если ключа нет или содержимое битое
func (s *mappingStore) Load(ctx context.Context) (models.Mapping, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return models.Mapping{}, nil
		}
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}

	if strings.TrimSpace(raw) == "" {
		return models.Mapping{}, nil
	}

	var mapping models.Mapping
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		s.logger.Warn("Stored mapping is malformed, starting from empty",
			zap.String("key", s.key),
			zap.Error(err),
		)
		return models.Mapping{}, nil
	}

	if mapping == nil {
		return models.Mapping{}, nil
	}

	for code, link := range mapping {
		if link == nil {
			s.logger.Warn("Dropping empty link record", zap.String("code", code))
			delete(mapping, code)
		}
	}

	return mapping, nil
}

func (s *mappingStore) Save(ctx context.Context, mapping models.Mapping) error {
	if mapping == nil {
		mapping = models.Mapping{}
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	return nil
}
