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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/liveops-guard/internal/console/handler"
	"github.com/xela07ax/liveops-guard/internal/console/server"
	"github.com/xela07ax/liveops-guard/internal/console/service"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"github.com/xela07ax/liveops-guard/internal/policy"
	"github.com/xela07ax/liveops-guard/internal/repository/postgres"
)

// Операторская консоль: управление safety constraints, аудит леджера,
// сводный дашборд. Пишет новые версии политики в Postgres и шлет
// refresh-сигнал инстансам шлюза через Redis Pub/Sub.
func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Policy Store консоли — источник записи: Update валидирует,
	// персистит новую версию и публикует сигнал в Redis
	constraintsRepo := postgres.NewConstraintsRepo(pool)
	policyStore := policy.NewStore(constraintsRepo, rdb, logger)
	if err := policyStore.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load safety constraints", zap.Error(err))
	}

	ledgerRepo := postgres.NewLedgerRepo(pool)
	consoleRepo := postgres.NewConsoleRepo(pool)

	constraintsSvc := service.NewConstraintsService(policyStore)
	auditSvc := service.NewAuditService(ledgerRepo)
	dashSvc := service.NewDashboardService(consoleRepo, constraintsSvc)

	srvHandler := server.NewConsoleServer(
		cfg,
		logger,
		handler.NewConstraintsHandler(constraintsSvc),
		handler.NewAuditHandler(auditSvc),
		handler.NewDashboardHandler(dashSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srvHandler.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("ops console started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("ops console stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("ops console exited properly")
}
