package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняло решение (включая ожидание диспетчера)
	DecisionDuration *prometheus.HistogramVec

	// Traffic: общее кол-во решений по вердиктам и причинам
	DecisionsTotal *prometheus.CounterVec

	// Решения, исполненные при отключенном compliance — отдельный счетчик,
	// bypass обязан быть виден на графиках
	BypassedTotal prometheus.Counter

	// Saturation: дневной расход бюджета
	BudgetCommittedUSD prometheus.Gauge

	// Состояние Circuit Breaker каналов доставки (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Заполненность буфера фида реакций (backpressure)
	OutcomeBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lguard_decision_duration_seconds",
			Help:    "Histogram of decision latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"verdict"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lguard_decisions_total",
			Help: "Total number of gateway decisions by verdict and reason.",
		}, []string{"verdict", "reason"}),

		BypassedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lguard_bypassed_decisions_total",
			Help: "Decisions executed with compliance disabled.",
		}),

		BudgetCommittedUSD: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lguard_budget_committed_usd",
			Help: "Committed spend for the current UTC day.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lguard_dispatch_circuit_breaker_state",
			Help: "Current state of the dispatch circuit breaker (0=closed, 1=open).",
		}),

		OutcomeBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lguard_outcome_buffer_utilization",
			Help: "Current number of events in the outcome feed buffer.",
		}),
	}
}
