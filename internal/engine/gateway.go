package engine

/*
Файл gateway.go реализует Decision Gateway — единственный путь, которым
рекомендация оракла превращается в исполненное действие. Оракл предлагает,
шлюз располагает.

Порядок проверок фиксирован, first-failure-wins: после первого отказа
дальнейшие проверки не выполняются, поэтому причина блокировки всегда
детерминированная и единственная:
  1. compliance выключен     -> исполнение с пометкой bypassed
  2. сегмент в черном списке -> BLOCKED(segment_excluded)
  3. частотный лимит 7 дней  -> BLOCKED(frequency_exceeded)
  4. лимит стоимости награды -> BLOCKED(reward_value_exceeded)
  5. атомарная бронь бюджета -> BLOCKED(budget_cap_exceeded)
  6. оракл выбрал молчание   -> BLOCKED(no_action_recommended)
  7. отправка в канал        -> EXECUTED | FAILED(+компенсация брони)

Каждое решение порождает ровно одну запись леджера и никогда не отправляет
действие дважды. Constraints читаются одним снапшотом в начале решения.
*/

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/liveops-guard/internal/budget"
	"github.com/xela07ax/liveops-guard/internal/dispatch"
	"github.com/xela07ax/liveops-guard/internal/domain"
	"github.com/xela07ax/liveops-guard/internal/frequency"
	"github.com/xela07ax/liveops-guard/internal/ledger"
	"github.com/xela07ax/liveops-guard/internal/policy"
	"go.uber.org/zap"
)

// ConstraintsProvider — снапшот действующих safety rails на одно решение.
type ConstraintsProvider interface {
	Current() domain.SafetyConstraints
}

// Компилятор проверяет, что Policy Store реализует контракт шлюза.
var _ ConstraintsProvider = (*policy.Store)(nil)

type Gateway struct {
	constraints ConstraintsProvider
	guard       *frequency.Guard
	budget      *budget.Accountant
	ledger      *ledger.Ledger
	dispatcher  dispatch.Dispatcher
	locks       *playerLocks
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewGateway(
	constraints ConstraintsProvider,
	guard *frequency.Guard,
	acct *budget.Accountant,
	lgr *ledger.Ledger,
	dispatcher dispatch.Dispatcher,
	metrics *Metrics,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		constraints: constraints,
		guard:       guard,
		budget:      acct,
		ledger:      lgr,
		dispatcher:  dispatcher,
		locks:       newPlayerLocks(),
		metrics:     metrics,
		logger:      logger.Named("gateway"),
		now:         time.Now,
	}
}

// Evaluate прогоняет предложение через 7 шагов и возвращает вердикт.
// Ошибка возвращается только на невалидный вход; все остальные исходы —
// в самом вердикте (PolicyBlock — ожидаемое значение, а не Go-ошибка).
func (g *Gateway) Evaluate(ctx context.Context, p domain.ProposedAction) (domain.GatewayVerdict, error) {
	if err := p.Validate(); err != nil {
		return domain.GatewayVerdict{}, err
	}

	start := g.now()
	verdict := domain.GatewayVerdict{TraceID: extractTraceID(ctx)}
	defer func() {
		g.metrics.DecisionDuration.WithLabelValues(string(verdict.Verdict)).Observe(time.Since(start).Seconds())
		g.metrics.DecisionsTotal.WithLabelValues(string(verdict.Verdict), verdict.Reason).Inc()
	}()

	// Решения одного игрока строго последовательны: иначе два конкурентных
	// Evaluate пройдут частотную проверку на одних и тех же счетчиках
	mu := g.locks.lock(p.PlayerID)
	mu.Lock()
	defer mu.Unlock()

	// Один атомарный снапшот constraints на все решение
	cons := g.constraints.Current()
	verdict.ConstraintsVersion = cons.Version

	entry := domain.LedgerEntry{
		ID:                 uuid.New().String(),
		TraceID:            verdict.TraceID,
		PlayerID:           p.PlayerID,
		Segment:            p.Segment,
		ActionType:         p.ActionType,
		EstimatedValueUSD:  p.EstimatedValueUSD,
		Confidence:         p.Confidence,
		ConstraintsVersion: cons.Version,
		Timestamp:          start.UTC(),
	}

	// Шаг 1: сознательно отключенный compliance — отдельная ветка исполнения
	if !cons.ComplianceEnabled {
		return g.evaluateBypassed(ctx, p, entry, &verdict), nil
	}

	// Шаг 2: исключенные сегменты
	if cons.SegmentBlocked(p.Segment) {
		return g.block(ctx, entry, &verdict, domain.ReasonSegmentExcluded), nil
	}

	// Шаг 3: частота за трейлинг-окно 7 дней
	if g.guard.CountRecent(p.PlayerID) >= cons.MaxActionsPerPlayerPerWeek {
		return g.block(ctx, entry, &verdict, domain.ReasonFrequencyExceeded), nil
	}

	// Шаг 4: потолок стоимости одной награды
	if p.EstimatedValueUSD > cons.MaxRewardValueUSD {
		return g.block(ctx, entry, &verdict, domain.ReasonRewardValueExceeded), nil
	}

	// Шаг 5: атомарная бронь бюджета — commit здесь же, не отдельной фазой,
	// чтобы конкурентное решение не потратило те же деньги
	res, granted := g.budget.TryReserve(ctx, p.EstimatedValueUSD, cons.BudgetCapDailyUSD)
	if !granted {
		return g.block(ctx, entry, &verdict, domain.ReasonBudgetCapExceeded), nil
	}
	g.observeBudget()

	// Шаг 6: молчание оракла. Все проверки пройдены, но исполнять нечего —
	// бронь возвращается, в учет частоты/бюджета исход не попадает
	if p.ActionType == domain.ActionNone {
		g.budget.Release(ctx, res)
		g.observeBudget()
		return g.block(ctx, entry, &verdict, domain.ReasonNoActionRecommended), nil
	}

	// Шаг 7: отправка
	return g.dispatchAndRecord(ctx, p, entry, &verdict, res, false), nil
}

// evaluateBypassed — ветка отключенного compliance: проверки пропущены,
// но исполнение идет через тот же леджер и тот же учет. Расход фиксируется
// без проверки cap (ForceCommit) — журнал и бюджет остаются честными.
func (g *Gateway) evaluateBypassed(ctx context.Context, p domain.ProposedAction, entry domain.LedgerEntry, verdict *domain.GatewayVerdict) domain.GatewayVerdict {
	entry.Bypassed = true
	verdict.Bypassed = true

	// NONE нечего отправлять даже при выключенных проверках
	if p.ActionType == domain.ActionNone {
		return g.block(ctx, entry, verdict, domain.ReasonNoActionRecommended)
	}

	res := g.budget.ForceCommit(ctx, p.EstimatedValueUSD)
	g.observeBudget()
	g.metrics.BypassedTotal.Inc()

	return g.dispatchAndRecord(ctx, p, entry, verdict, res, true)
}

// dispatchAndRecord — общая механика шага 7 для обычной и bypass-ветки:
// PENDING-запись до отправки (happens-before), финализация после,
// компенсация брони на любом сбое.
func (g *Gateway) dispatchAndRecord(ctx context.Context, p domain.ProposedAction, entry domain.LedgerEntry, verdict *domain.GatewayVerdict, res budget.Reservation, bypassed bool) domain.GatewayVerdict {
	pending, err := g.ledger.Begin(ctx, entry)
	if err != nil {
		// Fail closed: без записи нет отправки
		g.budget.Release(ctx, res)
		g.observeBudget()
		verdict.Verdict = domain.VerdictFailed
		verdict.Reason = domain.ReasonLedgerWriteError
		verdict.EntryID = entry.ID
		return *verdict
	}
	verdict.EntryID = pending.ID()

	err = g.dispatcher.Send(ctx, p.ActionType, p.PlayerID, p.Payload)
	if err != nil {
		// Компенсация: реальной траты не случилось
		g.budget.Release(ctx, res)
		g.observeBudget()

		reason := domain.ReasonDispatchErrorPrefix + sanitizeDetail(err)
		if errors.Is(err, context.DeadlineExceeded) {
			reason = domain.ReasonDispatchTimeout
		}

		verdict.Verdict = domain.VerdictFailed
		verdict.Reason = reason
		_ = pending.Commit(ctx, domain.VerdictFailed, reason)

		g.logger.Warn("dispatch failed",
			zap.String("player_id", p.PlayerID),
			zap.String("action_type", string(p.ActionType)),
			zap.Bool("bypassed", bypassed),
			zap.Error(err),
		)
		return *verdict
	}

	// Успех: действие исполнено ровно один раз
	g.guard.Record(p.PlayerID, entry.Timestamp)
	verdict.Verdict = domain.VerdictExecuted
	_ = pending.Commit(ctx, domain.VerdictExecuted, "")

	g.logger.Info("action executed",
		zap.String("player_id", p.PlayerID),
		zap.String("action_type", string(p.ActionType)),
		zap.Float64("value_usd", p.EstimatedValueUSD),
		zap.Bool("bypassed", bypassed),
	)
	return *verdict
}

// block записывает терминальный BLOCKED-исход. Сбой записи фатален и для
// блокировок: решение без следа в журнале не существует.
func (g *Gateway) block(ctx context.Context, entry domain.LedgerEntry, verdict *domain.GatewayVerdict, reason string) domain.GatewayVerdict {
	entry.Verdict = domain.VerdictBlocked
	entry.BlockReason = reason

	id, err := g.ledger.Append(ctx, entry)
	if err != nil {
		verdict.Verdict = domain.VerdictFailed
		verdict.Reason = domain.ReasonLedgerWriteError
		verdict.EntryID = entry.ID
		return *verdict
	}

	verdict.Verdict = domain.VerdictBlocked
	verdict.Reason = reason
	verdict.EntryID = id
	return *verdict
}

func (g *Gateway) observeBudget() {
	_, committed := g.budget.Committed()
	g.metrics.BudgetCommittedUSD.Set(committed)
}

// sanitizeDetail сжимает ошибку канала в однострочную деталь причины.
func sanitizeDetail(err error) string {
	d := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(d) > 200 {
		d = d[:200]
	}
	return d
}
