// Пакет server — HTTP-сервер access-module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/bizpanel/access-module/internal/api/handlers"
	"github.com/bigkaa/bizpanel/access-module/internal/api/middleware"
	"github.com/bigkaa/bizpanel/access-module/internal/config"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/catalog"
)

// Server — HTTP-сервер access-module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth),
// checker — проверка прав вызывающего для защищённых групп маршрутов.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	checker middleware.PermissionChecker,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, jwtAuth, checker),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi router со всеми маршрутами API.
func NewRouter(
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	checker middleware.PermissionChecker,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// JWT middleware с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, "/health/", "/metrics"))
	}

	health := handler.Health()
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/permissions", handler.ListPermissions)
		r.Post("/permissions/check", handler.CheckPermission)
		r.Get("/me/permissions", handler.MyPermissions)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(checker, catalog.PermUsersManagePermissions))
			r.Get("/roles/{role}/defaults", handler.GetRoleDefaults)
			r.Put("/roles/{role}/defaults", handler.SetRoleDefaults)
			r.Get("/users/{id}/permissions", handler.GetUserPermissions)
			r.Get("/users/{id}/overrides", handler.GetUserOverrides)
			r.Patch("/users/{id}/overrides", handler.PatchUserOverrides)
			r.Delete("/users/{id}/overrides/{permission}", handler.DeleteUserOverride)
			r.Post("/users/{id}/role-template", handler.ApplyRoleTemplate)
		})

		r.Post("/access-requests", handler.SubmitAccessRequest)
		r.Get("/access-requests", handler.ListAccessRequests)
		r.Get("/access-requests/{id}", handler.GetAccessRequest)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(checker, catalog.PermApprovalsManage))
			r.Post("/access-requests/{id}/decision", handler.DecideAccessRequest)
			r.Post("/access-requests/{id}/revoke", handler.RevokeAccessRequest)
		})
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
