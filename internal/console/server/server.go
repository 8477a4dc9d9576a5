package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/liveops-guard/internal/console/handler"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Обработчики бизнес-доменов
	constraintsHandler *handler.ConstraintsHandler // /v1/constraints, /v1/compliance
	auditHandler       *handler.AuditHandler       // /v1/ledger
	dashHandler        *handler.DashboardHandler   // /v1/dashboard
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями.
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	constraintsH *handler.ConstraintsHandler,
	auditH *handler.AuditHandler,
	dashH *handler.DashboardHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:             chi.NewRouter(),
		logger:             logger.Named("console-api"),
		cfg:                cfg,
		constraintsHandler: constraintsH,
		auditHandler:       auditH,
		dashHandler:        dashH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Healthcheck для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/constraints", s.constraintsHandler.Get)
		r.Put("/constraints", s.constraintsHandler.Update)
		r.Post("/compliance", s.constraintsHandler.SetCompliance)

		r.Get("/ledger", s.auditHandler.GetEntries)

		r.Get("/dashboard", s.dashHandler.Overview)
		r.Get("/dashboard/channels", s.dashHandler.Channels)
	})
}

func (s *ConsoleServer) Handler() http.Handler {
	return s.router
}
