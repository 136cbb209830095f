package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/copilot-governance/internal/console/handler"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/engine"
	"github.com/xela07ax/copilot-governance/internal/infra/auth"
	"go.uber.org/zap"
)

// Handlers: обработчики бизнес-доменов
type Handlers struct {
	Worker     *handler.WorkerHandler     // /v1/decide, /v1/requests
	Review     *handler.ReviewHandler     // /v1/reviews, /v1/metrics
	Policy     *handler.PolicyHandler     // /v1/admin/policy
	Quarantine *handler.QuarantineHandler // /v1/admin/quarantine
	Audit      *handler.AuditHandler      // /v1/admin/audit
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// nil: auth.disabled, все запросы от локального администратора
	authValidator auth.TokenValidator
	gatherer      prometheus.Gatherer
	h             Handlers
}

// NewConsoleServer инициализирует HTTP API governance со всеми зависимостями
func NewConsoleServer(logger *zap.Logger, validator auth.TokenValidator, gatherer prometheus.Gatherer, h Handlers) *ConsoleServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		gatherer:      gatherer,
		h:             h,
	}
	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен + скоуп) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		} else {
			s.logger.Warn("authentication is disabled")
			r.Use(auth.DevMiddleware)
		}

		// Воркеры: решение политики и жизненный цикл запроса
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeWorker))
			r.Post("/v1/decide", s.h.Worker.Decide)
			r.Post("/v1/requests", s.h.Worker.CreateRequest)
			r.Get("/v1/requests/{id}", s.h.Worker.GetRequest)
			r.Post("/v1/requests/{id}/status", s.h.Worker.Transition)
			r.Post("/v1/requests/{id}/evaluate", s.h.Worker.Evaluate)
		})

		// Ревьюеры: очередь, решения, метрики
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeReviewer))
			r.Get("/v1/reviews/pending", s.h.Review.Pending)
			r.Get("/v1/reviews/overdue", s.h.Review.Overdue)
			r.Get("/v1/reviews/{id}", s.h.Review.Get)
			r.Get("/v1/requests/{id}/reviews", s.h.Review.History)
			r.Post("/v1/requests/{id}/reviews", s.h.Review.Submit)
			r.Get("/v1/metrics", s.h.Review.Metrics)
		})

		// Администраторы: политика, карантин, журнал
		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeAdmin))
			r.Get("/policy", s.h.Policy.Get)
			r.Put("/policy", s.h.Policy.Update)
			r.Post("/policy/reload", s.h.Policy.Reload)
			r.Get("/quarantine", s.h.Quarantine.List)
			r.Post("/quarantine/{domain}", s.h.Quarantine.Add)
			r.Delete("/quarantine/{domain}", s.h.Quarantine.Remove)
			r.Get("/audit", s.h.Audit.GetLogs)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
