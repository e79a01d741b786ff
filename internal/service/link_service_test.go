package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/batch-shortener/internal/config"
	"github.com/SergeiKhy/batch-shortener/internal/models"
	"github.com/SergeiKhy/batch-shortener/internal/service"
	"github.com/SergeiKhy/batch-shortener/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock управляемые часы для проверки истечения без sleep
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceGenerator отдаёт коды по очереди, затем повторяет последний
func sequenceGenerator(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

// setupTestService создаёт тестовое окружение с моковым хранилищем
func setupTestService(opts ...service.Option) (service.LinkService, *mocks.MockMappingStore, *mocks.MockJournal, *fakeClock) {
	store := mocks.NewMockMappingStore()
	journal := mocks.NewMockJournal()
	clock := newFakeClock()
	logger, _ := zap.NewDevelopment()

	opts = append([]service.Option{service.WithClock(clock.Now)}, opts...)
	linkService := service.NewLinkService(store, journal, logger, opts...)
	return linkService, store, journal, clock
}

// TestLinkService_ShortenAndResolve сценарий: ссылка на минуту, переход, истечение
func TestLinkService_ShortenAndResolve(t *testing.T) {
	linkService, store, _, clock := setupTestService()
	ctx := context.Background()
	start := clock.Now()

	results, err := linkService.Shorten(ctx, []models.ShortenEntry{
		{URL: "https://example.com", Validity: "1", Code: ""},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.True(t, res.OK(), res.Error)
	assert.Len(t, res.Code, 6)
	assert.Equal(t, "https://example.com", res.LongURL)
	require.NotNil(t, res.Expires)
	assert.True(t, start.Add(time.Minute).Equal(*res.Expires))

	link, err := linkService.Resolve(ctx, res.Code, models.Visit{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", link.LongURL)
	assert.Len(t, store.Snapshot()[res.Code].Clicks, 1)

	clock.Advance(61 * time.Second)

	_, err = linkService.Resolve(ctx, res.Code, models.Visit{})
	assert.ErrorIs(t, err, service.ErrExpired)
	assert.Len(t, store.Snapshot()[res.Code].Clicks, 1, "истёкшая ссылка не должна получать клики")
}

// TestLinkService_Shorten_MixedBatch сценарий: невалидный URL и кастомный код в одном батче
func TestLinkService_Shorten_MixedBatch(t *testing.T) {
	linkService, store, _, _ := setupTestService()

	results, err := linkService.Shorten(context.Background(), []models.ShortenEntry{
		{URL: "not-a-url"},
		{URL: "https://a.com", Code: "abc"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Invalid URL", results[0].Error)
	assert.Empty(t, results[0].Code)

	assert.Empty(t, results[1].Error)
	assert.Equal(t, "abc", results[1].Code)
	assert.Equal(t, "https://a.com", results[1].LongURL)

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.Contains(t, snapshot, "abc")
	assert.Equal(t, 1, store.SaveCalls, "весь батч сохраняется одной записью")
}

// TestLinkService_Shorten_CustomCodeExists проверяет повторный кастомный код
func TestLinkService_Shorten_CustomCodeExists(t *testing.T) {
	linkService, store, _, clock := setupTestService()
	ctx := context.Background()

	first, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://first.com", Code: "mine"}})
	require.NoError(t, err)
	require.True(t, first[0].OK())
	before := store.Raw()

	clock.Advance(time.Minute)
	second, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://second.com", Code: "mine"}})
	require.NoError(t, err)

	assert.Equal(t, service.ErrShortcodeExists.Error(), second[0].Error)
	assert.Equal(t, before, store.Raw(), "первая запись не должна измениться")
	assert.Equal(t, "https://first.com", store.Snapshot()["mine"].LongURL)
}

// TestLinkService_Shorten_DuplicateInsideBatch проверяет дубликат кода внутри одного батча
func TestLinkService_Shorten_DuplicateInsideBatch(t *testing.T) {
	linkService, store, _, _ := setupTestService()

	results, err := linkService.Shorten(context.Background(), []models.ShortenEntry{
		{URL: "https://one.com", Code: "dup"},
		{URL: "https://two.com", Code: "dup"},
	})
	require.NoError(t, err)

	assert.True(t, results[0].OK())
	assert.Equal(t, service.ErrShortcodeExists.Error(), results[1].Error)
	assert.Equal(t, "https://one.com", store.Snapshot()["dup"].LongURL)
}

// TestLinkService_Shorten_InvalidURLNeverMutates проверяет идемпотентность ошибок
func TestLinkService_Shorten_InvalidURLNeverMutates(t *testing.T) {
	linkService, store, journal, _ := setupTestService()

	invalidURLs := []string{
		"not-a-url",
		"",
		"   ",
		"example.com",
		"/relative/path",
		"mailto:user@example.com",
		"javascript:alert(1)",
		"http://",
		"http://exa mple.com",
	}

	for i := 0; i < 3; i++ {
		for _, url := range invalidURLs {
			results, err := linkService.Shorten(context.Background(), []models.ShortenEntry{{URL: url}})
			require.NoError(t, err)
			assert.Equal(t, "Invalid URL", results[0].Error, "URL должен быть невалидным: %q", url)
		}
	}

	assert.Equal(t, 0, store.SaveCalls)
	assert.Empty(t, store.Snapshot())
	assert.Len(t, journal.Events("error"), 3*len(invalidURLs))
}

// TestLinkService_Shorten_Validity проверяет разбор срока жизни
func TestLinkService_Shorten_Validity(t *testing.T) {
	tests := []struct {
		validity string
		want     time.Duration
	}{
		{validity: "", want: 30 * time.Minute},
		{validity: "abc", want: 30 * time.Minute},
		{validity: "0", want: 30 * time.Minute},
		{validity: "-5", want: 30 * time.Minute},
		{validity: "15", want: 15 * time.Minute},
		{validity: " 45 ", want: 45 * time.Minute},
		{validity: "2.5", want: 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("validity=%q", tt.validity), func(t *testing.T) {
			linkService, _, _, clock := setupTestService()

			results, err := linkService.Shorten(context.Background(), []models.ShortenEntry{
				{URL: "https://example.com", Validity: tt.validity},
			})
			require.NoError(t, err)
			require.NotNil(t, results[0].Expires)
			assert.Equal(t, tt.want, results[0].Expires.Sub(clock.Now()))
		})
	}
}

// TestLinkService_Shorten_CustomCodeTrimmed проверяет обрезку пробелов в коде
func TestLinkService_Shorten_CustomCodeTrimmed(t *testing.T) {
	linkService, store, _, _ := setupTestService()

	results, err := linkService.Shorten(context.Background(), []models.ShortenEntry{
		{URL: "https://example.com", Code: "  spaced  "},
		{URL: "https://example.org", Code: "   "},
	})
	require.NoError(t, err)

	assert.Equal(t, "spaced", results[0].Code)
	assert.Len(t, results[1].Code, 6, "пустой после обрезки код означает автогенерацию")
	assert.Len(t, store.Snapshot(), 2)
}

// TestLinkService_Shorten_UniqueCodes проверяет уникальность сгенерированных кодов
func TestLinkService_Shorten_UniqueCodes(t *testing.T) {
	linkService, store, _, _ := setupTestService()
	ctx := context.Background()

	codes := make(map[string]string)
	for batch := 0; batch < 20; batch++ {
		entries := make([]models.ShortenEntry, 5)
		for i := range entries {
			entries[i] = models.ShortenEntry{URL: fmt.Sprintf("https://example.com/%d/%d", batch, i)}
		}

		results, err := linkService.Shorten(ctx, entries)
		require.NoError(t, err)
		for _, res := range results {
			require.True(t, res.OK(), res.Error)
			assert.NotContains(t, codes, res.Code, "коды должны быть уникальными")
			codes[res.Code] = res.LongURL
		}
	}

	assert.Len(t, store.Snapshot(), 100)
	for code, longURL := range codes {
		link, err := linkService.Resolve(ctx, code, models.Visit{})
		require.NoError(t, err)
		assert.Equal(t, longURL, link.LongURL)
	}
}

// TestLinkService_Shorten_RetriesOnCollision проверяет повтор генерации при коллизии
func TestLinkService_Shorten_RetriesOnCollision(t *testing.T) {
	linkService, _, _, _ := setupTestService(
		service.WithCodeGenerator(sequenceGenerator("aaaaaa", "aaaaaa", "bbbbbb")),
	)
	ctx := context.Background()

	first, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://one.com"}})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaa", first[0].Code)

	second, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://two.com"}})
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb", second[0].Code)
}

// TestLinkService_Shorten_CollisionExhausted проверяет исчерпание попыток генерации
func TestLinkService_Shorten_CollisionExhausted(t *testing.T) {
	linkService, store, _, _ := setupTestService(
		service.WithCodeGenerator(sequenceGenerator("same00")),
	)
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://one.com"}})
	require.NoError(t, err)
	before := store.Raw()

	results, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://two.com"}})
	require.NoError(t, err)
	assert.Equal(t, service.ErrShortcodeExists.Error(), results[0].Error)
	assert.Equal(t, before, store.Raw())
}

// TestLinkService_Shorten_GeneratorFailure проверяет ошибку генератора
func TestLinkService_Shorten_GeneratorFailure(t *testing.T) {
	linkService, store, _, _ := setupTestService(
		service.WithCodeGenerator(func() (string, error) { return "", errors.New("no entropy") }),
	)

	results, err := linkService.Shorten(context.Background(), []models.ShortenEntry{
		{URL: "https://one.com"},
		{URL: "https://two.com", Code: "manual"},
	})
	require.NoError(t, err)
	assert.Equal(t, service.ErrCodeGeneration.Error(), results[0].Error)
	assert.True(t, results[1].OK())
	assert.Len(t, store.Snapshot(), 1)
}

// TestLinkService_Shorten_BatchLimits проверяет ограничения размера батча
func TestLinkService_Shorten_BatchLimits(t *testing.T) {
	linkService, store, _, _ := setupTestService()
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, nil)
	assert.ErrorIs(t, err, service.ErrNoEntries)

	entries := make([]models.ShortenEntry, 6)
	for i := range entries {
		entries[i] = models.ShortenEntry{URL: "https://example.com"}
	}
	_, err = linkService.Shorten(ctx, entries)
	assert.ErrorIs(t, err, service.ErrTooManyEntries)

	assert.Equal(t, 0, store.LoadCalls)
	assert.Equal(t, 5, linkService.MaxBatchSize())
}

// TestLinkService_WithConfig проверяет применение конфига
func TestLinkService_WithConfig(t *testing.T) {
	linkService, _, _, clock := setupTestService(service.WithConfig(config.ShortenerConfig{
		MaxBatchSize:           2,
		DefaultValidityMinutes: 10,
		CodeLength:             8,
		ClickSourceFallback:    "direct",
		ClickLocation:          "XX",
	}))
	ctx := context.Background()

	assert.Equal(t, 2, linkService.MaxBatchSize())
	assert.Equal(t, 10*time.Minute, linkService.DefaultValidity())

	results, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://example.com"}})
	require.NoError(t, err)
	assert.Len(t, results[0].Code, 8)
	assert.Equal(t, 10*time.Minute, results[0].Expires.Sub(clock.Now()))

	link, err := linkService.Resolve(ctx, results[0].Code, models.Visit{})
	require.NoError(t, err)
	require.Len(t, link.Clicks, 1)
	assert.Equal(t, "direct", link.Clicks[0].Source)
	assert.Equal(t, "XX", link.Clicks[0].Location)

	_, err = linkService.Shorten(ctx, make([]models.ShortenEntry, 3))
	assert.ErrorIs(t, err, service.ErrTooManyEntries)
}

// TestLinkService_Resolve_NotFound проверяет несуществующий код
func TestLinkService_Resolve_NotFound(t *testing.T) {
	linkService, store, _, _ := setupTestService()

	for _, code := range []string{"nonexistent", "", "abc"} {
		link, err := linkService.Resolve(context.Background(), code, models.Visit{})
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.Nil(t, link)
	}
	assert.Equal(t, 0, store.SaveCalls)
}

// TestLinkService_Resolve_ClickSource проверяет источник и место клика
func TestLinkService_Resolve_ClickSource(t *testing.T) {
	linkService, store, journal, clock := setupTestService()
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com", Code: "abc"}})
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = linkService.Resolve(ctx, "abc", models.Visit{})
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = linkService.Resolve(ctx, "abc", models.Visit{Referrer: "https://news.site/post"})
	require.NoError(t, err)

	clicks := store.Snapshot()["abc"].Clicks
	require.Len(t, clicks, 2)
	assert.Equal(t, "localhost", clicks[0].Source)
	assert.Equal(t, "IN", clicks[0].Location)
	assert.Equal(t, "https://news.site/post", clicks[1].Source)
	assert.True(t, clicks[0].Timestamp.Before(clicks[1].Timestamp), "клики добавляются в порядке переходов")

	assert.Len(t, journal.Events("info"), 3)
}

// TestLinkService_Resolve_ExpiryBoundary проверяет границу истечения
func TestLinkService_Resolve_ExpiryBoundary(t *testing.T) {
	linkService, store, _, clock := setupTestService()
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com", Validity: "1", Code: "edge"}})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = linkService.Resolve(ctx, "edge", models.Visit{})
	require.NoError(t, err, "в момент expires ссылка ещё активна")

	saves := store.SaveCalls
	clock.Advance(time.Nanosecond)
	_, err = linkService.Resolve(ctx, "edge", models.Visit{})
	assert.ErrorIs(t, err, service.ErrExpired)
	assert.Equal(t, saves, store.SaveCalls)
}

// TestLinkService_Resolve_SaveFailure проверяет, что без сохранённого клика редиректа нет
func TestLinkService_Resolve_SaveFailure(t *testing.T) {
	linkService, store, _, _ := setupTestService()
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com", Code: "abc"}})
	require.NoError(t, err)

	store.SaveErr = errors.New("disk full")
	link, err := linkService.Resolve(ctx, "abc", models.Visit{})
	assert.Error(t, err)
	assert.Nil(t, link)
	assert.NotErrorIs(t, err, service.ErrNotFound)

	store.SaveErr = nil
	assert.Empty(t, store.Snapshot()["abc"].Clicks)
}

// TestLinkService_StoreErrors проверяет проброс ошибок хранилища
func TestLinkService_StoreErrors(t *testing.T) {
	linkService, store, _, _ := setupTestService()
	ctx := context.Background()
	store.LoadErr = errors.New("backend down")

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com"}})
	assert.ErrorIs(t, err, store.LoadErr)

	_, err = linkService.Resolve(ctx, "abc", models.Visit{})
	assert.ErrorIs(t, err, store.LoadErr)

	_, err = linkService.GetLink(ctx, "abc")
	assert.ErrorIs(t, err, store.LoadErr)

	store.LoadErr = nil
	store.SaveErr = errors.New("read only")
	_, err = linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com"}})
	assert.ErrorIs(t, err, store.SaveErr)
}

// TestLinkService_GetLink проверяет чтение записи без побочных эффектов
func TestLinkService_GetLink(t *testing.T) {
	linkService, store, _, clock := setupTestService()
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com", Validity: "1", Code: "abc"}})
	require.NoError(t, err)
	saves := store.SaveCalls

	clock.Advance(time.Hour)
	info, err := linkService.GetLink(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", info.Code)
	assert.Equal(t, "https://a.com", info.Link.LongURL)
	assert.True(t, info.Expired, "истёкшая запись остаётся в хранилище")
	assert.Equal(t, saves, store.SaveCalls)

	_, err = linkService.GetLink(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// TestLinkService_ConcurrentResolve проверяет, что параллельные переходы не теряют клики
func TestLinkService_ConcurrentResolve(t *testing.T) {
	linkService, store, _, _ := setupTestService()
	ctx := context.Background()

	_, err := linkService.Shorten(ctx, []models.ShortenEntry{{URL: "https://a.com", Code: "hot"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := linkService.Resolve(ctx, "hot", models.Visit{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.Snapshot()["hot"].Clicks, 20)
}
