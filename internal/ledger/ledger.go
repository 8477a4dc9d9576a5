package ledger

/*
Файл ledger.go реализует Action Ledger — append-only журнал всех попыток
вмешательства. Журнал одновременно является источником аудита и базой для
прогрева Frequency Guard после рестарта.

Ключевой инвариант — happens-before между записью и отправкой:
для ветки с реальной отправкой запись создается ДО вызова диспетчера
(Begin, статус PENDING) и финализируется после (Commit). Так исключается
состояние «действие исполнено, но не записано». Ошибка вставки фатальна
для решения — шлюз обязан ответить FAILED("ledger_write_error") и ничего
не отправлять (fail closed).
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/liveops-guard/internal/domain"
	"go.uber.org/zap"
)

// verdictPending — внутренний маркер незавершенной двухфазной записи.
// Наружу (Query) такие записи не отдаются как финальные вердикты.
const verdictPending domain.Verdict = "PENDING"

// Storage определяет, куда физически сохраняются записи (Postgres в проде,
// in-memory в тестах и локальных запусках).
type Storage interface {
	Insert(ctx context.Context, e domain.LedgerEntry) error
	// Finalize переводит PENDING-запись в терминальный вердикт. Единственная
	// допустимая «мутация»: после нее запись неизменяема.
	Finalize(ctx context.Context, id string, verdict domain.Verdict, reason string) error
	// Query возвращает записи игрока с sinceTimestamp, свежие первыми.
	Query(ctx context.Context, playerID string, since time.Time) ([]domain.LedgerEntry, error)
	// RecentExecuted — все EXECUTED записи за окно, для прогрева Frequency Guard.
	RecentExecuted(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error)
}

type Ledger struct {
	store  Storage
	logger *zap.Logger
}

func New(store Storage, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.Named("ledger"),
	}
}

// Append синхронно пишет терминальную запись (BLOCKED и прочие исходы без
// отправки). Ошибка хранилища возвращается вызывающему — никогда не молчим.
func (l *Ledger) Append(ctx context.Context, e domain.LedgerEntry) (string, error) {
	fill(&e)
	if e.Verdict == "" || e.Verdict == verdictPending {
		return "", fmt.Errorf("ledger: append requires a terminal verdict")
	}
	if err := l.store.Insert(ctx, e); err != nil {
		l.logger.Error("ledger append failed",
			zap.String("player_id", e.PlayerID),
			zap.Error(err),
		)
		return "", fmt.Errorf("ledger: append: %w", err)
	}
	return e.ID, nil
}

// Begin открывает двухфазную запись для ветки с отправкой: строка PENDING
// вставляется до вызова диспетчера.
func (l *Ledger) Begin(ctx context.Context, e domain.LedgerEntry) (*Pending, error) {
	fill(&e)
	e.Verdict = verdictPending
	e.BlockReason = ""
	if err := l.store.Insert(ctx, e); err != nil {
		l.logger.Error("ledger begin failed",
			zap.String("player_id", e.PlayerID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ledger: begin: %w", err)
	}
	return &Pending{ledger: l, id: e.ID}, nil
}

func (l *Ledger) Query(ctx context.Context, playerID string, since time.Time) ([]domain.LedgerEntry, error) {
	return l.store.Query(ctx, playerID, since)
}

func (l *Ledger) RecentExecuted(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	return l.store.RecentExecuted(ctx, since)
}

// Pending — открытая запись, ждущая исхода отправки.
type Pending struct {
	ledger *Ledger
	id     string
	done   bool
}

func (p *Pending) ID() string { return p.id }

// Commit финализирует запись терминальным вердиктом. Повторный вызов — ошибка:
// решение порождает ровно одну запись с ровно одним исходом.
func (p *Pending) Commit(ctx context.Context, verdict domain.Verdict, reason string) error {
	if p.done {
		return fmt.Errorf("ledger: pending entry %s already committed", p.id)
	}
	if err := p.ledger.store.Finalize(ctx, p.id, verdict, reason); err != nil {
		// Отправка к этому моменту уже состоялась или не состоялась — исход
		// решения не меняем, но сигналим во весь голос: запись разошлась с фактом.
		p.ledger.logger.Error("ledger finalize failed",
			zap.String("entry_id", p.id),
			zap.String("verdict", string(verdict)),
			zap.Error(err),
		)
		return fmt.Errorf("ledger: finalize %s: %w", p.id, err)
	}
	p.done = true
	return nil
}

func fill(e *domain.LedgerEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
