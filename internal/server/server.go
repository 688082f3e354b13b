// Пакет server — HTTP-сервер SmartSite с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/nextmonthlab/smartsite/internal/api/handlers"
	"github.com/nextmonthlab/smartsite/internal/api/middleware"
	"github.com/nextmonthlab/smartsite/internal/api/openapi"
	"github.com/nextmonthlab/smartsite/internal/config"
)

// publicPrefixes — пути, доступные без JWT (пробы Kubernetes, метрики, контракт).
var publicPrefixes = []string{"/health/", "/metrics", "/api/openapi.yaml"}

// Options — необязательные компоненты маршрутизации.
type Options struct {
	// JWTAuth — nil отключает аутентификацию.
	JWTAuth *middleware.JWTAuth
	// Validator — nil отключает проверку запросов по OpenAPI.
	Validator *openapi.Validator
	// CORSAllowedOrigins — пустой список отключает CORS.
	CORSAllowedOrigins []string
}

// Server — HTTP-сервер SmartSite.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, opts Options) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, h, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, opts Options) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	if len(opts.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID},
			MaxAge:         300,
		}))
	}
	if opts.JWTAuth != nil {
		router.Use(jwtAuthWithExclusions(opts.JWTAuth, publicPrefixes...))
	}
	if opts.Validator != nil {
		router.Use(opts.Validator.Middleware())
	}

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Get("/api/openapi.yaml", openapi.Handler().ServeHTTP)

	router.Route("/api/blueprint", func(r chi.Router) {
		r.Get("/status", h.GetBlueprintStatus)
		r.Post("/tag", h.TagBlueprint)
		r.Post("/modules", h.GenerateModuleMap)
		r.Post("/package", h.PackageBlueprint)
		r.Post("/notify-guardian", h.NotifyGuardian)
		r.Post("/handoff-status", h.SetHandoffStatus)
		r.Post("/export-v1.1.1", h.ExportCurrentVersion)
		r.Post("/auto-publish-v1.1.1", h.PublishCurrentVersion)
		r.Post("/announcements", h.AddAnnouncements)
		r.Get("/extract", h.ExtractBlueprint)
		r.Get("/diff", h.DiffBlueprint)
		r.Get("/versions", h.ListBlueprintVersions)
		r.Get("/templates", h.ListBlueprintTemplates)
		r.Post("/templates", h.RegisterBlueprintTemplate)
		r.Patch("/templates/{id}", h.SetBlueprintTemplateCloneable)
	})

	router.Route("/api/modules", func(r chi.Router) {
		r.Get("/", h.ListModules)
		r.Post("/", h.RegisterModule)
		r.Get("/*", h.GetModule)
	})

	router.Route("/api/businesses", func(r chi.Router) {
		r.Get("/", h.ListBusinesses)
		r.Post("/", h.CreateBusinessProfile)
		r.Get("/{tenantId}", h.GetBusinessProfile)
		r.Patch("/{tenantId}/status", h.UpdateBusinessStatus)
	})

	router.Route("/api/admin/{tenantId}", func(r chi.Router) {
		r.Use(middleware.TenantGuard(h.Tenants()))

		r.Get("/insight-users", h.ListInsightUsers)
		r.Post("/insight-users", h.InviteInsightUser)
		r.Get("/insights", h.ListInsights)
		r.Post("/insights", h.CreateInsight)
		r.Get("/blog-posts", h.ListBlogPosts)
		r.Post("/blog-posts", h.CreateBlogPost)
		r.Get("/themes", h.ListThemes)
		r.Post("/themes", h.CreateTheme)
		r.Get("/innovation-ideas", h.ListInnovationIdeas)
		r.Post("/innovation-ideas", h.CreateInnovationIdea)
		r.Get("/analytics-events", h.ListAnalyticsEvents)
		r.Post("/analytics-events", h.LogAnalyticsEvent)
		r.Get("/ai-events", h.ListAIEvents)
		r.Post("/ai-events", h.LogAIEvent)
		r.Get("/tools", h.ListTools)
		r.Post("/tools", h.CreateTool)
		r.Get("/embed-code", h.GetEmbedCode)
		r.Get("/dashboard/summary", h.GetDashboardSummary)
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает SIGINT/SIGTERM или отмены ctx,
// после чего выполняет graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
