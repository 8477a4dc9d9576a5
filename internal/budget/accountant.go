package budget

/*
Файл accountant.go реализует Budget Accountant — единственный кусок общего
мутабельного состояния, требующий сериализованного доступа. Пара
(day, committedUSD) защищена одним мьютексом: никакая операция не видит
«рваного» чтения, две конкурентные брони никогда не проходят обе, если их
сумма превышает дневной cap.

Смена дня (UTC) выполняется лениво внутри того же замка. Бронь несет дату,
под которую была выдана: компенсация (Release) после полуночи уменьшает
расход именно того дня, в котором началась — ничего не теряется и не
считается дважды.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

// Repository персистит строку расхода на каждую UTC-дату.
// Вызывается под замком аккаунтанта; допускается nil (чистый in-memory режим).
type Repository interface {
	// LoadDay возвращает зафиксированный расход даты (0, если строки нет).
	LoadDay(ctx context.Context, day string) (float64, error)
	// SaveDay перезаписывает расход даты (UPSERT).
	SaveDay(ctx context.Context, day string, committedUSD float64) error
	// AddToDay атомарно прибавляет дельту к исторической дате (компенсация
	// брони, пережившей полуночный rollover).
	AddToDay(ctx context.Context, day string, deltaUSD float64) error
}

// Reservation — провизорная атомарная фиксация бюджета до исхода отправки.
type Reservation struct {
	Day       string
	AmountUSD float64
}

type Accountant struct {
	mu        sync.Mutex
	day       string
	committed float64

	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewAccountant(repo Repository, logger *zap.Logger) *Accountant {
	a := &Accountant{
		repo:   repo,
		logger: logger.Named("budget"),
		now:    time.Now,
	}
	a.day = a.today()
	return a
}

// Init подтягивает уже зафиксированный расход текущего дня (рестарт шлюза
// посреди дня не обнуляет учет).
func (a *Accountant) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.repo == nil {
		return nil
	}
	committed, err := a.repo.LoadDay(ctx, a.day)
	if err != nil {
		return err
	}
	a.committed = committed
	a.logger.Info("budget loaded", zap.String("day", a.day), zap.Float64("committed_usd", committed))
	return nil
}

// TryReserve атомарно бронирует amount против остатка (cap − committed).
// Cap приходит из снапшота constraints конкретного решения, а не хранится тут:
// политика у Policy Store, учет у Accountant.
func (a *Accountant) TryReserve(ctx context.Context, amountUSD, capUSD float64) (Reservation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rolloverLocked(ctx)

	if a.committed+amountUSD > capUSD {
		return Reservation{}, false
	}

	a.committed += amountUSD
	a.persistLocked(ctx)
	return Reservation{Day: a.day, AmountUSD: amountUSD}, true
}

// ForceCommit фиксирует расход без проверки cap. Используется только веткой
// bypass (compliance выключен): учет остается честным даже при отключенных
// проверках.
func (a *Accountant) ForceCommit(ctx context.Context, amountUSD float64) Reservation {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rolloverLocked(ctx)
	a.committed += amountUSD
	a.persistLocked(ctx)
	return Reservation{Day: a.day, AmountUSD: amountUSD}
}

// Release — компенсирующая операция: сбой отправки после успешной брони
// возвращает ровно сумму брони в день, под который она была выдана.
func (a *Accountant) Release(ctx context.Context, r Reservation) {
	if r.AmountUSD == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rolloverLocked(ctx)

	if r.Day == a.day {
		a.committed -= r.AmountUSD
		if a.committed < 0 {
			// Сюда попадать не должны: каждая Release парна одной брони
			a.logger.Error("budget underflow after release", zap.String("day", a.day))
			a.committed = 0
		}
		a.persistLocked(ctx)
		return
	}

	// Бронь пережила полуночный rollover — правим историческую строку
	if a.repo != nil {
		if err := a.repo.AddToDay(ctx, r.Day, -r.AmountUSD); err != nil {
			a.logger.Error("failed to compensate past-day reservation",
				zap.String("day", r.Day),
				zap.Float64("amount_usd", r.AmountUSD),
				zap.Error(err),
			)
		}
	}
}

// RolloverIfNewDay — явная проверка смены дня (для фонового тикера в main).
// Та же логика выполняется лениво при каждой броне.
func (a *Accountant) RolloverIfNewDay(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(ctx)
}

// Committed возвращает согласованную пару (день, расход).
func (a *Accountant) Committed() (string, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.day, a.committed
}

func (a *Accountant) rolloverLocked(ctx context.Context) {
	today := a.today()
	if today == a.day {
		return
	}

	a.logger.Info("budget day rollover",
		zap.String("from", a.day),
		zap.String("to", today),
	)
	a.day = today
	a.committed = 0

	// Новая дата могла уже получить расход от другого инстанса
	if a.repo != nil {
		if committed, err := a.repo.LoadDay(ctx, today); err == nil {
			a.committed = committed
		} else {
			a.logger.Error("failed to load committed spend for new day", zap.Error(err))
		}
	}
}

func (a *Accountant) persistLocked(ctx context.Context) {
	if a.repo == nil {
		return
	}
	if err := a.repo.SaveDay(ctx, a.day, a.committed); err != nil {
		// In-memory значение остается авторитетным для решений; потерю
		// write-through видно в логах и метриках
		a.logger.Error("failed to persist budget day",
			zap.String("day", a.day),
			zap.Error(err),
		)
	}
}

func (a *Accountant) today() string {
	return a.now().UTC().Format(dayLayout)
}
