package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/liveops-guard/internal/budget"
	"github.com/xela07ax/liveops-guard/internal/dispatch"
	"github.com/xela07ax/liveops-guard/internal/engine"
	"github.com/xela07ax/liveops-guard/internal/frequency"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"github.com/xela07ax/liveops-guard/internal/ledger"
	"github.com/xela07ax/liveops-guard/internal/outcome"
	"github.com/xela07ax/liveops-guard/internal/policy"
	"github.com/xela07ax/liveops-guard/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// 3. Policy Store: холодная загрузка + подписка на refresh-сигналы
	constraintsRepo := postgres.NewConstraintsRepo(pool)
	policyStore := policy.NewStore(constraintsRepo, rdb, logger)
	if err := policyStore.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load safety constraints", zap.Error(err))
	}
	go policyStore.StartListener(appCtx)

	// 4. Леджер, бюджет, частотный guard
	ledgerRepo := postgres.NewLedgerRepo(pool)
	actionLedger := ledger.New(ledgerRepo, logger)

	budgetRepo := postgres.NewBudgetRepo(pool)
	accountant := budget.NewAccountant(budgetRepo, logger)
	if err := accountant.Init(appCtx); err != nil {
		logger.Fatal("failed to load budget day", zap.Error(err))
	}

	guard := frequency.NewGuard(logger)
	warmupGuard(appCtx, guard, actionLedger, logger)

	// 5. Execution Layer (Каналы + Надежность)
	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)

	var dispatcher dispatch.Dispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kd := dispatch.NewKafkaDispatcher(cfg.Kafka, logger)
		defer kd.Close()
		dispatcher = kd
	} else {
		// Без брокеров — mock-каналы (локальная разработка)
		logger.Warn("kafka brokers are not configured, using mock dispatcher")
		dispatcher = dispatch.NewMockDispatcher()
	}
	safeDispatcher := engine.NewReliabilityWrapper(dispatcher, cfg.Gateway, metrics)

	// 6. Core (сборка Decision Gateway)
	gateway := engine.NewGateway(policyStore, guard, accountant, actionLedger, safeDispatcher, metrics, logger)

	// 7. Фид реакций игроков (engagement outcomes)
	outcomeRepo, err := postgres.NewOutcomeRepo(cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to open outcome storage", zap.Error(err))
	}
	defer outcomeRepo.Close()

	feed := outcome.NewFeed(outcomeRepo, cfg.Gateway.OutcomeBufferSize, cfg.Gateway.OutcomeFlushInterval, logger)
	feed.Start()

	// Метрика saturation буфера фида
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-t.C:
				metrics.OutcomeBufferFill.Set(float64(feed.Buffered()))
			}
		}
	}()

	// Фоновый rollover бюджета: ленивая смена дня есть в каждой броне,
	// тикер лишь не дает пустой ночи отложить переключение
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-t.C:
				accountant.RolloverIfNewDay(appCtx)
			}
		}
	}()

	// 8. Экспортируем метрики для Prometheus
	go func() {
		mmux := http.NewServeMux()
		mmux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, mmux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 9. HTTP Server
	mux := http.NewServeMux()
	mux.Handle("/v1/evaluate", engine.TracingMiddleware(http.HandlerFunc(gateway.HandleHTTPRequest)))
	mux.Handle("/v1/outcomes", http.HandlerFunc(feed.HandleHTTP))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("decision gateway started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("decision gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel()    // Останавливаем слушателей
	feed.Stop() // Финальный flush буфера реакций
	logger.Info("decision gateway exited properly")
}

// warmupGuard восстанавливает 7-дневные окна из леджера.
// SetNX-замок тут не нужен: каждый инстанс греет собственную память.
func warmupGuard(ctx context.Context, guard *frequency.Guard, l *ledger.Ledger, logger *zap.Logger) {
	since := time.Now().UTC().Add(-frequency.Window)
	entries, err := l.RecentExecuted(ctx, since)
	if err != nil {
		// Без прогрева частотные счетчики начинают с нуля — это ослабляет
		// лимит до следующих реальных исполнений, поэтому падаем громко
		logger.Fatal("failed to warm up frequency guard from ledger", zap.Error(err))
	}
	guard.Warmup(entries)
}
