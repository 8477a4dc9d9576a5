package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/liveops-guard/internal/dispatch"
	"github.com/xela07ax/liveops-guard/internal/domain"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает Execution Dispatcher в Rate Limiter,
// Circuit Breaker и операторский таймаут.
//
// Намеренно БЕЗ ретраев: повторная отправка того же действия меняет семантику
// частотного и бюджетного учета. Таймаут наружу выглядит как
// context.DeadlineExceeded — шлюз превращает его в FAILED("dispatch_timeout").
type ReliabilityWrapper struct {
	next    dispatch.Dispatcher
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	metrics *Metrics
}

func NewReliabilityWrapper(next dispatch.Dispatcher, cfg infra.GatewayConfig, metrics *Metrics) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lguard-dispatch",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerState.Set(1)
			} else {
				metrics.CircuitBreakerState.Set(0)
			}
		},
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.DispatchRateLimit), cfg.DispatchBurst)

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: limiter,
		timeout: cfg.DispatchTimeout,
		metrics: metrics,
	}
}

func (w *ReliabilityWrapper) Send(ctx context.Context, action domain.ActionType, playerID string, payload []byte) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Операторский таймаут ожидания канала
	tCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	// 3. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, w.next.Send(tCtx, action, playerID, payload)
	})
	if err != nil {
		// Таймаут отдаем как DeadlineExceeded самого tCtx, чтобы вызывающий
		// отличил его от ошибки канала
		if tCtx.Err() != nil {
			return tCtx.Err()
		}
		return err
	}
	return nil
}
