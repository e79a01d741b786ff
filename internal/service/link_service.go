package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SergeiKhy/batch-shortener/internal/config"
	"github.com/SergeiKhy/batch-shortener/internal/models"
	"github.com/SergeiKhy/batch-shortener/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса. Текст ошибок уровня строки формы показывается пользователю.
var (
	ErrInvalidURL      = errors.New("Invalid URL")
	ErrShortcodeExists = errors.New("Shortcode already exists")
	ErrCodeGeneration  = errors.New("Failed to generate shortcode")
	ErrNotFound        = errors.New("Shortcode not found")
	ErrExpired         = errors.New("This link has expired")

	ErrNoEntries      = errors.New("no entries to shorten")
	ErrTooManyEntries = errors.New("too many entries in one batch")
)

// Константы сервиса
const (
	defaultMaxBatchSize   = 5
	defaultValidity       = 30 * time.Minute
	defaultSourceFallback = "localhost"
	defaultClickLocation  = "IN"
	maxGenerateAttempts   = 5
)

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	Shorten(ctx context.Context, entries []models.ShortenEntry) ([]models.ShortenResult, error)
	Resolve(ctx context.Context, code string, visit models.Visit) (*models.Link, error)
	GetLink(ctx context.Context, code string) (*models.LinkInfo, error)
	MaxBatchSize() int
	DefaultValidity() time.Duration
}

// Option настраивает linkService
type Option func(*linkService)

// WithClock подменяет источник текущего времени
func WithClock(clock func() time.Time) Option {
	return func(s *linkService) {
		s.clock = clock
	}
}

// WithCodeGenerator подменяет генератор коротких кодов
func WithCodeGenerator(generate func() (string, error)) Option {
	return func(s *linkService) {
		s.generateCode = generate
	}
}

// WithConfig применяет лимиты и значения по умолчанию из конфига
func WithConfig(cfg config.ShortenerConfig) Option {
	return func(s *linkService) {
		if cfg.MaxBatchSize > 0 {
			s.maxBatchSize = cfg.MaxBatchSize
		}
		if cfg.DefaultValidityMinutes > 0 {
			s.defaultValidity = time.Duration(cfg.DefaultValidityMinutes) * time.Minute
		}
		if cfg.CodeLength > 0 {
			s.generateCode = NewCodeGenerator(cfg.CodeLength)
		}
		if cfg.ClickSourceFallback != "" {
			s.sourceFallback = cfg.ClickSourceFallback
		}
		if cfg.ClickLocation != "" {
			s.clickLocation = cfg.ClickLocation
		}
	}
}

// linkService реализация сервиса ссылок. Каждое изменение читает маппинг
// целиком и записывает его обратно под mu.
type linkService struct {
	mu      sync.Mutex
	store   repository.MappingStore
	journal EventJournal
	logger  *zap.Logger

	clock           func() time.Time
	generateCode    func() (string, error)
	maxBatchSize    int
	defaultValidity time.Duration
	sourceFallback  string
	clickLocation   string
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(store repository.MappingStore, journal EventJournal, logger *zap.Logger, opts ...Option) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &linkService{
		store:           store,
		journal:         journal,
		logger:          logger,
		clock:           time.Now,
		generateCode:    NewCodeGenerator(DefaultCodeLength),
		maxBatchSize:    defaultMaxBatchSize,
		defaultValidity: defaultValidity,
		sourceFallback:  defaultSourceFallback,
		clickLocation:   defaultClickLocation,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *linkService) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *linkService) DefaultValidity() time.Duration {
	return s.defaultValidity
}

// Shorten обрабатывает батч строк формы. Ошибка одной строки не мешает
// остальным, результаты идут в порядке строк. Маппинг читается один раз
// и сохраняется один раз, если создана хотя бы одна ссылка.
func (s *linkService) Shorten(ctx context.Context, entries []models.ShortenEntry) ([]models.ShortenResult, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	if len(entries) > s.maxBatchSize {
		return nil, ErrTooManyEntries
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	results := make([]models.ShortenResult, len(entries))
	created := 0

	for i, entry := range entries {
		code, link, err := s.createLink(mapping, entry, now)
		if err != nil {
			results[i] = models.ShortenResult{Error: err.Error()}
			continue
		}

		mapping[code] = link
		expires := link.Expires
		results[i] = models.ShortenResult{
			Code:    code,
			LongURL: link.LongURL,
			Expires: &expires,
		}
		created++
	}

	if created == 0 {
		return results, nil
	}

	if err := s.store.Save(ctx, mapping); err != nil {
		s.logger.Error("Failed to save mapping", zap.Int("created", created), zap.Error(err))
		return nil, fmt.Errorf("failed to save shortened links: %w", err)
	}

	for _, res := range results {
		if res.OK() {
			s.journal.Info("URL shortened", map[string]any{"url": res.LongURL, "code": res.Code})
		}
	}

	return results, nil
}

// createLink проверяет одну строку формы и строит запись, не трогая маппинг
func (s *linkService) createLink(mapping models.Mapping, entry models.ShortenEntry, now time.Time) (string, *models.Link, error) {
	longURL := strings.TrimSpace(entry.URL)
	if err := validateURL(longURL); err != nil {
		s.journal.Error(err.Error(), map[string]any{"url": entry.URL})
		return "", nil, err
	}

	code := strings.TrimSpace(entry.Code)
	if code != "" {
		if _, exists := mapping[code]; exists {
			s.journal.Error(ErrShortcodeExists.Error(), map[string]any{"code": code})
			return "", nil, ErrShortcodeExists
		}
	} else {
		var err error
		code, err = s.uniqueCode(mapping)
		if err != nil {
			s.journal.Error(err.Error(), map[string]any{"url": longURL})
			return "", nil, err
		}
	}

	validity := ParseValidity(entry.Validity, s.defaultValidity)

	return code, &models.Link{
		LongURL: longURL,
		Created: now,
		Expires: now.Add(validity),
		Clicks:  []models.Click{},
	}, nil
}

// uniqueCode генерирует код, повторяя попытку при коллизии
func (s *linkService) uniqueCode(mapping models.Mapping) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			s.logger.Error("Code generator failed", zap.Error(err))
			return "", ErrCodeGeneration
		}
		if _, exists := mapping[code]; !exists {
			return code, nil
		}
		s.logger.Debug("Generated code collides, retrying",
			zap.String("code", code),
			zap.Int("attempt", attempt+1),
		)
	}
	return "", ErrShortcodeExists
}

// Resolve проверяет код и записывает клик. Клик сохраняется до того, как
// вызывающий получит адрес для редиректа.
func (s *linkService) Resolve(ctx context.Context, code string, visit models.Visit) (*models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	link, ok := mapping[code]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.clock()
	if link.IsExpired(now) {
		return nil, ErrExpired
	}

	source := visit.Referrer
	if source == "" {
		source = s.sourceFallback
	}

	link.Clicks = append(link.Clicks, models.Click{
		Timestamp: now,
		Source:    source,
		Location:  s.clickLocation,
	})

	if err := s.store.Save(ctx, mapping); err != nil {
		s.logger.Error("Failed to record click", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	s.journal.Info("Redirected", map[string]any{"code": code, "source": source})

	return link, nil
}

// GetLink возвращает запись без изменений, в том числе истёкшую
func (s *linkService) GetLink(ctx context.Context, code string) (*models.LinkInfo, error) {
	mapping, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	link, ok := mapping[code]
	if !ok {
		return nil, ErrNotFound
	}

	return &models.LinkInfo{
		Code:    code,
		Link:    link,
		Expired: link.IsExpired(s.clock()),
	}, nil
}
