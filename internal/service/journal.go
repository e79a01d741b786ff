package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/batch-shortener/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool журнала
const (
	defaultWorkerCount   = 2    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
	journalKeyPrefix     = "log-"
)

// Типы записей журнала
const (
	EventInfo  = "info"
	EventError = "error"
)

// EventJournal журнал событий только на запись: каждая запись кладётся в
// KV под своим ключом с меткой времени и никогда не читается сервисом.
type EventJournal interface {
	Start()
	Stop()
	Info(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}

type journalEvent struct {
	key    string
	record map[string]any
}

// journal реализация журнала с использованием Worker Pool
type journal struct {
	kv          repository.KV
	logger      *zap.Logger
	events      chan journalEvent
	workerCount int
	seq         atomic.Uint64
	wg          sync.WaitGroup
	mu          sync.RWMutex // проверка остановки и отправка в канал под одной блокировкой
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	stopOnce    sync.Once
}

// NewJournal создаёт журнал поверх KV. Записи принимаются сразу, но
// пишутся только после Start.
func NewJournal(kv repository.KV, logger *zap.Logger) EventJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &journal{
		kv:          kv,
		logger:      logger,
		events:      make(chan journalEvent, defaultChannelBuffer),
		workerCount: defaultWorkerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start запускает worker pool
func (j *journal) Start() {
	j.logger.Info("Запуск воркеров журнала", zap.Int("count", j.workerCount))

	for i := 0; i < j.workerCount; i++ {
		j.wg.Add(1)
		go j.worker(i)
	}
}

// Stop останавливает воркеров и дописывает то, что осталось в буфере
func (j *journal) Stop() {
	j.stopOnce.Do(func() {
		j.logger.Info("Остановка журнала...")

		// После этого enqueue уже ничего не положит в канал, и drain
		// воркеров увидит все принятые записи
		j.mu.Lock()
		j.stopped = true
		j.cancel()
		j.mu.Unlock()

		j.wg.Wait()
		j.logger.Info("Журнал остановлен")
	})
}

func (j *journal) Info(message string, fields map[string]any) {
	j.enqueue(EventInfo, message, fields)
}

func (j *journal) Error(message string, fields map[string]any) {
	j.enqueue(EventError, message, fields)
}

// enqueue неблокирующая постановка записи в очередь
func (j *journal) enqueue(kind, message string, fields map[string]any) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.stopped {
		j.logger.Debug("Журнал остановлен, запись пропущена", zap.String("message", message))
		return
	}

	record := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		record[k] = v
	}
	record["type"] = kind
	record["message"] = message

	event := journalEvent{
		key:    fmt.Sprintf("%s%d-%d", journalKeyPrefix, time.Now().UnixMilli(), j.seq.Add(1)),
		record: record,
	}

	select {
	case j.events <- event:
	default:
		// Буфер заполнен, запрос не блокируем
		j.logger.Warn("Буфер журнала заполнен, запись потеряна", zap.String("message", message))
	}
}

// worker пишет записи из канала до остановки, затем вычитывает остаток
func (j *journal) worker(id int) {
	defer j.wg.Done()

	j.logger.Debug("Воркер журнала запущен", zap.Int("id", id))

	for {
		select {
		case <-j.ctx.Done():
			j.drain()
			j.logger.Debug("Воркер журнала остановлен", zap.Int("id", id))
			return

		case event := <-j.events:
			j.write(event)
		}
	}
}

func (j *journal) drain() {
	for {
		select {
		case event := <-j.events:
			j.write(event)
		default:
			return
		}
	}
}

// write сохраняет одну запись с retry логикой. Контекст не связан с j.ctx,
// чтобы начатая запись не обрывалась при Stop.
func (j *journal) write(event journalEvent) {
	data, err := json.Marshal(event.record)
	if err != nil {
		j.logger.Error("Не удалось сериализовать запись журнала", zap.String("key", event.key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < maxRetries; i++ {
		if err = j.kv.Set(ctx, event.key, string(data), 0); err == nil {
			return
		}
		if i < maxRetries-1 {
			j.logger.Debug("Повторная попытка записи в журнал",
				zap.String("key", event.key),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	j.logger.Error("Не удалось записать в журнал после всех попыток",
		zap.String("key", event.key),
		zap.Error(err),
	)
}
