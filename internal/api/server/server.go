package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harleysmodernlife/VERN/internal/api/handler"
	"github.com/harleysmodernlife/VERN/internal/infra"
	"github.com/harleysmodernlife/VERN/internal/infra/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256).
	// nil, когда auth.enabled=false — защищенная группа открыта (dev-режим)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	registryHandler *handler.RegistryHandler // /v1/agents
	consentHandler  *handler.ConsentHandler  // /v1/privacy/policy
	turnHandler     *handler.TurnHandler     // /v1/orchestrator/respond
	auditHandler    *handler.AuditHandler    // /v1/audit

	promRegistry *prometheus.Registry
}

// New инициализирует сервер контрольной плоскости со всеми зависимостями
func New(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	registryH *handler.RegistryHandler,
	consentH *handler.ConsentHandler,
	turnH *handler.TurnHandler,
	auditH *handler.AuditHandler,
	promReg *prometheus.Registry,
) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          logger.Named("control-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		registryHandler: registryH,
		consentHandler:  consentH,
		turnHandler:     turnH,
		auditHandler:    auditH,
		promRegistry:    promReg,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		if s.authHandler != nil {
			// Логин должен быть доступен без токена
			r.Post("/auth/token", s.authHandler.Login)
		}

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.promRegistry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
		}

		// Присутствие агентов: сигналы и чтение
		r.Post("/v1/agents/heartbeat", s.registryHandler.Heartbeat)
		r.Get("/v1/agents", s.registryHandler.List)
		r.Get("/v1/agents/{name}", s.registryHandler.Get)

		// Ворота согласий
		r.Route("/v1/privacy/policy", func(r chi.Router) {
			r.Post("/evaluate", s.consentHandler.Evaluate)
			r.Post("/decision", s.consentHandler.Decide)
			r.Get("/decision/{request_id}", s.consentHandler.GetDecision)
		})

		// Единая точка входа хода
		r.Post("/v1/orchestrator/respond", s.turnHandler.Respond)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		// Административные операции над реестром
		r.Delete("/v1/agents/{name}", s.registryHandler.Delete)
		r.Post("/v1/agents/{name}/status", s.registryHandler.SetStatus)
		r.Post("/v1/agents/clear", s.registryHandler.Clear)

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.auditHandler.GetLogs)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
