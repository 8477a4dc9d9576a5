package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/liveops-guard/internal/budget"
	"github.com/xela07ax/liveops-guard/internal/dispatch"
	"github.com/xela07ax/liveops-guard/internal/domain"
	"github.com/xela07ax/liveops-guard/internal/frequency"
	"github.com/xela07ax/liveops-guard/internal/ledger"
)

// fixedConstraints — провайдер со статичным набором ограничений.
type fixedConstraints struct {
	mu sync.Mutex
	c  domain.SafetyConstraints
}

func (f *fixedConstraints) Current() domain.SafetyConstraints {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.c.Clone()
}

func (f *fixedConstraints) set(c domain.SafetyConstraints) {
	f.mu.Lock()
	f.c = c
	f.mu.Unlock()
}

func testConstraints() domain.SafetyConstraints {
	return domain.SafetyConstraints{
		Version:                    3,
		MaxActionsPerPlayerPerWeek: 1,
		MaxRewardValueUSD:          25,
		BudgetCapDailyUSD:          1000,
		BlacklistedSegments:        []domain.Segment{"payment_issues"},
		ComplianceEnabled:          true,
	}
}

type gatewayFixture struct {
	gateway     *Gateway
	constraints *fixedConstraints
	store       *ledger.MemoryStorage
	mock        *dispatch.MockDispatcher
	acct        *budget.Accountant
}

func newFixture(t *testing.T, cons domain.SafetyConstraints) *gatewayFixture {
	t.Helper()
	logger := zap.NewNop()

	fc := &fixedConstraints{c: cons}
	store := ledger.NewMemoryStorage()
	lgr := ledger.New(store, logger)
	acct := budget.NewAccountant(nil, logger)
	guard := frequency.NewGuard(logger)
	md := dispatch.NewMockDispatcher()
	md.Latency = time.Millisecond
	metrics := NewMetrics(prometheus.NewRegistry())

	return &gatewayFixture{
		gateway:     NewGateway(fc, guard, acct, lgr, md, metrics, logger),
		constraints: fc,
		store:       store,
		mock:        md,
		acct:        acct,
	}
}

func proposal(playerID string, action domain.ActionType, value float64) domain.ProposedAction {
	return domain.ProposedAction{
		PlayerID:          playerID,
		Segment:           "at_risk_of_churn",
		ActionType:        action,
		EstimatedValueUSD: value,
		Confidence:        80,
	}
}

func TestEvaluateInvalidInput(t *testing.T) {
	fx := newFixture(t, testConstraints())

	_, err := fx.gateway.Evaluate(context.Background(), domain.ProposedAction{ActionType: domain.ActionResourceGift})
	if err == nil {
		t.Fatal("expected validation error for empty player_id")
	}
	if len(fx.store.All()) != 0 {
		t.Fatal("invalid input must not produce ledger entries")
	}
}

func TestEvaluateHappyPath(t *testing.T) {
	fx := newFixture(t, testConstraints())

	v, err := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionResourceGift, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("verdict = %s (%s), want EXECUTED", v.Verdict, v.Reason)
	}
	if v.ConstraintsVersion != 3 {
		t.Fatalf("constraints version = %d, want 3", v.ConstraintsVersion)
	}
	if got := len(fx.mock.Sent()); got != 1 {
		t.Fatalf("dispatched %d times, want 1", got)
	}
	if _, committed := fx.acct.Committed(); committed != 10 {
		t.Fatalf("committed = %v, want 10", committed)
	}

	entries := fx.store.All()
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(entries))
	}
	if entries[0].Verdict != domain.VerdictExecuted || entries[0].ID != v.EntryID {
		t.Fatalf("ledger entry mismatch: %+v", entries[0])
	}
}

func TestEvaluateSegmentExcluded(t *testing.T) {
	fx := newFixture(t, testConstraints())

	p := proposal("p-1", domain.ActionResourceGift, 10)
	p.Segment = "payment_issues"

	v, err := fx.gateway.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != domain.VerdictBlocked || v.Reason != domain.ReasonSegmentExcluded {
		t.Fatalf("got %s/%s, want BLOCKED/segment_excluded", v.Verdict, v.Reason)
	}
	if len(fx.mock.Sent()) != 0 {
		t.Fatal("blocked action must not be dispatched")
	}
	if _, committed := fx.acct.Committed(); committed != 0 {
		t.Fatalf("blocked action must not spend budget, committed = %v", committed)
	}
}

func TestEvaluateRewardValueExceeded(t *testing.T) {
	fx := newFixture(t, testConstraints())

	v, _ := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionInGameOffer, 25.01))
	if v.Verdict != domain.VerdictBlocked || v.Reason != domain.ReasonRewardValueExceeded {
		t.Fatalf("got %s/%s, want BLOCKED/reward_value_exceeded", v.Verdict, v.Reason)
	}

	// Ровно на потолке — проходит
	v, _ = fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionInGameOffer, 25))
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("value exactly at cap must execute, got %s/%s", v.Verdict, v.Reason)
	}
}

func TestEvaluateFrequencyExceeded(t *testing.T) {
	fx := newFixture(t, testConstraints())
	ctx := context.Background()

	v, _ := fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionPushNotification, 0))
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("first action: got %s/%s, want EXECUTED", v.Verdict, v.Reason)
	}

	v, _ = fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionPushNotification, 0))
	if v.Verdict != domain.VerdictBlocked || v.Reason != domain.ReasonFrequencyExceeded {
		t.Fatalf("second action: got %s/%s, want BLOCKED/frequency_exceeded", v.Verdict, v.Reason)
	}

	// Лимит считается на игрока: другой игрок проходит
	v, _ = fx.gateway.Evaluate(ctx, proposal("p-2", domain.ActionPushNotification, 0))
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("other player: got %s/%s, want EXECUTED", v.Verdict, v.Reason)
	}
}

// Блокировки в частотное окно не попадают: после отказа лимит не «съеден».
func TestBlockedActionsDoNotConsumeFrequency(t *testing.T) {
	fx := newFixture(t, testConstraints())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, _ := fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionInGameOffer, 100))
		if v.Reason != domain.ReasonRewardValueExceeded {
			t.Fatalf("got %s/%s, want reward_value_exceeded", v.Verdict, v.Reason)
		}
	}

	v, _ := fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionInGameOffer, 5))
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("blocks consumed the frequency window: got %s/%s", v.Verdict, v.Reason)
	}
}

// Конкурентные решения одного игрока сериализуются: при лимите 1/неделю
// из N параллельных предложений исполняется ровно одно.
func TestEvaluateSamePlayerConcurrency(t *testing.T) {
	fx := newFixture(t, testConstraints())
	ctx := context.Background()

	const n = 8
	verdicts := make([]domain.GatewayVerdict, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionResourceGift, 1))
			if err != nil {
				t.Errorf("evaluate %d: %v", i, err)
				return
			}
			verdicts[i] = v
		}(i)
	}
	wg.Wait()

	executed, blocked := 0, 0
	for _, v := range verdicts {
		switch {
		case v.Verdict == domain.VerdictExecuted:
			executed++
		case v.Verdict == domain.VerdictBlocked && v.Reason == domain.ReasonFrequencyExceeded:
			blocked++
		default:
			t.Fatalf("unexpected outcome %s/%s", v.Verdict, v.Reason)
		}
	}
	if executed != 1 || blocked != n-1 {
		t.Fatalf("executed=%d blocked=%d, want 1/%d", executed, blocked, n-1)
	}
	if got := len(fx.mock.Sent()); got != 1 {
		t.Fatalf("dispatched %d times, want exactly 1", got)
	}
}

// Два конкурентных решения, чья сумма превышает дневной cap: бронь атомарна,
// проходит ровно одно.
func TestEvaluateConcurrentBudgetReservation(t *testing.T) {
	fx := newFixture(t, testConstraints())
	cons := testConstraints()
	cons.MaxRewardValueUSD = 1000
	fx.constraints.set(cons)
	ctx := context.Background()

	amounts := map[string]float64{"p-a": 600, "p-b": 500}
	results := make(map[string]domain.GatewayVerdict)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for player, amount := range amounts {
		wg.Add(1)
		go func(player string, amount float64) {
			defer wg.Done()
			v, err := fx.gateway.Evaluate(ctx, proposal(player, domain.ActionInGameOffer, amount))
			if err != nil {
				t.Errorf("evaluate %s: %v", player, err)
				return
			}
			mu.Lock()
			results[player] = v
			mu.Unlock()
		}(player, amount)
	}
	wg.Wait()

	executed, blocked := "", ""
	for player, v := range results {
		switch {
		case v.Verdict == domain.VerdictExecuted:
			executed = player
		case v.Verdict == domain.VerdictBlocked && v.Reason == domain.ReasonBudgetCapExceeded:
			blocked = player
		default:
			t.Fatalf("unexpected outcome for %s: %s/%s", player, v.Verdict, v.Reason)
		}
	}
	if executed == "" || blocked == "" {
		t.Fatalf("want exactly one executed and one blocked, got %+v", results)
	}
	if _, committed := fx.acct.Committed(); committed != amounts[executed] {
		t.Fatalf("committed = %v, want %v", committed, amounts[executed])
	}
}

func TestEvaluateNoActionRecommended(t *testing.T) {
	fx := newFixture(t, testConstraints())

	v, _ := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionNone, 0))
	if v.Verdict != domain.VerdictBlocked || v.Reason != domain.ReasonNoActionRecommended {
		t.Fatalf("got %s/%s, want BLOCKED/no_action_recommended", v.Verdict, v.Reason)
	}
	if len(fx.mock.Sent()) != 0 {
		t.Fatal("NONE must never reach the dispatcher")
	}
	if _, committed := fx.acct.Committed(); committed != 0 {
		t.Fatalf("reservation for NONE must be released, committed = %v", committed)
	}
}

func TestEvaluateDispatchFailureCompensatesBudget(t *testing.T) {
	fx := newFixture(t, testConstraints())
	fx.mock.FailChannel(domain.ActionResourceGift, errors.New("channel unavailable"))

	v, _ := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionResourceGift, 10))
	if v.Verdict != domain.VerdictFailed {
		t.Fatalf("got %s/%s, want FAILED", v.Verdict, v.Reason)
	}
	if !strings.HasPrefix(v.Reason, domain.ReasonDispatchErrorPrefix) {
		t.Fatalf("reason = %q, want %s prefix", v.Reason, domain.ReasonDispatchErrorPrefix)
	}
	if _, committed := fx.acct.Committed(); committed != 0 {
		t.Fatalf("failed dispatch must release the reservation, committed = %v", committed)
	}

	entries := fx.store.All()
	if len(entries) != 1 || entries[0].Verdict != domain.VerdictFailed {
		t.Fatalf("ledger must hold one FAILED entry, got %+v", entries)
	}

	// Сбой отправки не тратит частотный лимит
	fx.mock.FailChannel(domain.ActionResourceGift, nil)
	v, _ = fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionResourceGift, 10))
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("retry after failure: got %s/%s, want EXECUTED", v.Verdict, v.Reason)
	}
}

type timeoutDispatcher struct{}

func (timeoutDispatcher) Send(context.Context, domain.ActionType, string, []byte) error {
	return context.DeadlineExceeded
}

func TestEvaluateDispatchTimeout(t *testing.T) {
	fx := newFixture(t, testConstraints())
	fx.gateway.dispatcher = timeoutDispatcher{}

	v, _ := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionPushNotification, 5))
	if v.Verdict != domain.VerdictFailed || v.Reason != domain.ReasonDispatchTimeout {
		t.Fatalf("got %s/%s, want FAILED/dispatch_timeout", v.Verdict, v.Reason)
	}
	if _, committed := fx.acct.Committed(); committed != 0 {
		t.Fatalf("timeout must release the reservation, committed = %v", committed)
	}
}

type brokenStorage struct{}

func (brokenStorage) Insert(context.Context, domain.LedgerEntry) error {
	return errors.New("postgres is down")
}

func (brokenStorage) Finalize(context.Context, string, domain.Verdict, string) error {
	return errors.New("postgres is down")
}

func (brokenStorage) Query(context.Context, string, time.Time) ([]domain.LedgerEntry, error) {
	return nil, errors.New("postgres is down")
}

func (brokenStorage) RecentExecuted(context.Context, time.Time) ([]domain.LedgerEntry, error) {
	return nil, errors.New("postgres is down")
}

// Fail closed: не смогли записать — не отправляем.
func TestEvaluateLedgerWriteErrorFailsClosed(t *testing.T) {
	fx := newFixture(t, testConstraints())
	fx.gateway.ledger = ledger.New(brokenStorage{}, zap.NewNop())

	v, err := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionResourceGift, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != domain.VerdictFailed || v.Reason != domain.ReasonLedgerWriteError {
		t.Fatalf("got %s/%s, want FAILED/ledger_write_error", v.Verdict, v.Reason)
	}
	if len(fx.mock.Sent()) != 0 {
		t.Fatal("nothing may be dispatched without a ledger record")
	}
	if _, committed := fx.acct.Committed(); committed != 0 {
		t.Fatalf("reservation must be released, committed = %v", committed)
	}

	// И для ветки блокировки тоже
	p := proposal("p-1", domain.ActionResourceGift, 100)
	v, _ = fx.gateway.Evaluate(context.Background(), p)
	if v.Verdict != domain.VerdictFailed || v.Reason != domain.ReasonLedgerWriteError {
		t.Fatalf("blocked branch: got %s/%s, want FAILED/ledger_write_error", v.Verdict, v.Reason)
	}
}

func TestEvaluateBypass(t *testing.T) {
	cons := testConstraints()
	cons.ComplianceEnabled = false
	fx := newFixture(t, cons)
	ctx := context.Background()

	// Сегмент из черного списка и сумма выше потолка: при bypass исполняется
	p := proposal("p-1", domain.ActionInGameOffer, 500)
	p.Segment = "payment_issues"

	v, err := fx.gateway.Evaluate(ctx, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != domain.VerdictExecuted || !v.Bypassed {
		t.Fatalf("got %s bypassed=%v, want EXECUTED bypassed=true", v.Verdict, v.Bypassed)
	}

	entries := fx.store.All()
	if len(entries) != 1 || !entries[0].Bypassed {
		t.Fatalf("ledger entry must carry the bypassed flag: %+v", entries)
	}

	// Расход фиксируется даже сверх cap
	v, _ = fx.gateway.Evaluate(ctx, proposal("p-2", domain.ActionInGameOffer, 800))
	if v.Verdict != domain.VerdictExecuted {
		t.Fatalf("bypass over cap: got %s/%s, want EXECUTED", v.Verdict, v.Reason)
	}
	if _, committed := fx.acct.Committed(); committed != 1300 {
		t.Fatalf("committed = %v, want 1300", committed)
	}
}

func TestEvaluateBypassNoneStillBlocked(t *testing.T) {
	cons := testConstraints()
	cons.ComplianceEnabled = false
	fx := newFixture(t, cons)

	v, _ := fx.gateway.Evaluate(context.Background(), proposal("p-1", domain.ActionNone, 0))
	if v.Verdict != domain.VerdictBlocked || v.Reason != domain.ReasonNoActionRecommended {
		t.Fatalf("got %s/%s, want BLOCKED/no_action_recommended", v.Verdict, v.Reason)
	}
	if !v.Bypassed {
		t.Fatal("bypass decisions stay marked even for NONE")
	}
	if len(fx.mock.Sent()) != 0 {
		t.Fatal("NONE must never reach the dispatcher")
	}
}

// Возврат compliance не ретроактивен: исполненное при bypass остается
// исполненным и продолжает учитываться частотным окном.
func TestComplianceReenableIsNotRetroactive(t *testing.T) {
	cons := testConstraints()
	cons.ComplianceEnabled = false
	fx := newFixture(t, cons)
	ctx := context.Background()

	v, _ := fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionResourceGift, 10))
	if v.Verdict != domain.VerdictExecuted || !v.Bypassed {
		t.Fatalf("setup: got %s bypassed=%v", v.Verdict, v.Bypassed)
	}

	cons.ComplianceEnabled = true
	fx.constraints.set(cons)

	v, _ = fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionResourceGift, 10))
	if v.Verdict != domain.VerdictBlocked || v.Reason != domain.ReasonFrequencyExceeded {
		t.Fatalf("got %s/%s, want BLOCKED/frequency_exceeded", v.Verdict, v.Reason)
	}
	if v.Bypassed {
		t.Fatal("decision after re-enable must not be marked bypassed")
	}
}

// Решение живет на одном снапшоте: у каждой записи версия constraints,
// действовавшая на момент решения.
func TestEvaluateRecordsConstraintsVersion(t *testing.T) {
	fx := newFixture(t, testConstraints())
	ctx := context.Background()

	fx.gateway.Evaluate(ctx, proposal("p-1", domain.ActionResourceGift, 1))

	cons := testConstraints()
	cons.Version = 4
	fx.constraints.set(cons)
	fx.gateway.Evaluate(ctx, proposal("p-2", domain.ActionResourceGift, 1))

	entries := fx.store.All()
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].ConstraintsVersion != 3 || entries[1].ConstraintsVersion != 4 {
		t.Fatalf("versions = %d/%d, want 3/4", entries[0].ConstraintsVersion, entries[1].ConstraintsVersion)
	}
}

func TestSanitizeDetail(t *testing.T) {
	err := errors.New("broker unreachable\nretrying\n")
	if got := sanitizeDetail(err); strings.ContainsRune(got, '\n') {
		t.Fatalf("newlines must be stripped, got %q", got)
	}
	long := errors.New(strings.Repeat("x", 500))
	if got := sanitizeDetail(long); len(got) != 200 {
		t.Fatalf("len = %d, want 200", len(got))
	}
}
