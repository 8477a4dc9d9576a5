package outcome

/*
Файл feed.go реализует фид реакций игроков (engagement outcomes) — поток
отметок «пуш открыт / проигнорирован / игрок вернулся» от трекинговых систем.

Архитектура — неблокирующий сборщик с пакетной записью:
- Non-blocking ingest: события уходят в буферизованный канал, HTTP-хендлер
  не ждет БД.
- Batching: воркер копит события и пишет пачкой (Bulk Insert) по таймеру
  или при достижении лимита.
- Drain Pattern: Stop() запирает вход, воркер вычитывает остатки и делает
  финальный flush — ничего не теряется при перезагрузке.
- Retry: flush повторяется при кратковременных сбоях БД (это offline-поток
  аналитики, ретраи тут не меняют семантику решений).
*/

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Допустимые реакции игрока на исполненное действие.
const (
	ResponseDelivered      = "delivered"
	ResponseOpened         = "opened"
	ResponseIgnored        = "ignored"
	ResponseReturnedToGame = "returned_to_game"
)

// Event — одна отметка реакции, привязанная к записи леджера (ActionID).
type Event struct {
	ID       string    `json:"id"`
	ActionID string    `json:"action_id"` // ID записи Action Ledger
	PlayerID string    `json:"player_id"`
	Response string    `json:"response"`
	NotedAt  time.Time `json:"noted_at"`
}

// ValidResponse проверяет код реакции.
func ValidResponse(r string) bool {
	switch r {
	case ResponseDelivered, ResponseOpened, ResponseIgnored, ResponseReturnedToGame:
		return true
	}
	return false
}

// Storage определяет, куда физически сохраняются отметки.
type Storage interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Feed struct {
	ch     chan Event
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	flushInterval time.Duration
	batchSize     int

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Note после Stop
	isClosed int32
}

func NewFeed(repo Storage, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Feed {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Feed{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "outcome-feed")),
		flushInterval: flushInterval,
		batchSize:     100,
	}
}

func (f *Feed) Start() {
	f.wg.Add(1)
	go f.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (f *Feed) Stop() {
	atomic.StoreInt32(&f.isClosed, 1)

	// Крошечная пауза, чтобы пролетающие Note успели проскочить
	time.Sleep(10 * time.Millisecond)

	f.logger.Info("stopping outcome feed: closing channel and flushing buffer...")
	close(f.ch)
	f.wg.Wait()
	f.logger.Info("outcome feed stopped gracefully")
}

// Note принимает отметку без блокировки вызывающего. При переполнении буфера
// работает Load Shedding: событие уходит в лог, а не стопорит ingest.
func (f *Feed) Note(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.NotedAt.IsZero() {
		e.NotedAt = time.Now().UTC()
	}

	if atomic.LoadInt32(&f.isClosed) == 1 {
		f.logger.Warn("outcome event dropped: feed is stopping", zap.String("id", e.ID))
		return
	}

	select {
	case f.ch <- e:
	default:
		f.logger.Error("outcome_buffer_overflow",
			zap.String("action_id", e.ActionID),
			zap.String("player_id", e.PlayerID),
		)
	}
}

// Buffered — текущая заполненность буфера (для метрики saturation).
func (f *Feed) Buffered() int { return len(f.ch) }

func (f *Feed) worker() {
	defer f.wg.Done()

	batch := make([]Event, 0, f.batchSize)
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту финального flush может
		// быть уже закрыт
		if err := f.flushWithRetry(context.Background(), batch); err != nil {
			f.logger.Error("outcome flush failed", zap.Int("batch", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-f.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал завершения:
				// воркер вычитал остатки, делает финальный flush и выходит
				flush()
				f.logger.Info("outcome worker finished")
				return
			}
			batch = append(batch, e)
			if len(batch) >= f.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flushWithRetry переживает кратковременный сбой БД: три попытки с бэкоффом.
func (f *Feed) flushWithRetry(ctx context.Context, batch []Event) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
	)
	if err := r.Do(func() error {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return f.repo.WriteBatch(wctx, batch)
	}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}
