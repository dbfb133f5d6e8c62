package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/api/middleware"
	"github.com/tembedos/runtime/internal/app"
	"github.com/tembedos/runtime/internal/infrastructure/config"
	"github.com/tembedos/runtime/internal/infrastructure/monitoring"
	"github.com/tembedos/runtime/internal/sandbox"
)

// Server is the HTTP control surface.
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    *zap.Logger
}

// NewServer wires the router, middleware and routes.
func NewServer(cfg *config.Config, apps *app.Manager, sandboxes *sandbox.Manager,
	metrics *monitoring.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	if metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}
	router.Use(middleware.CORS())
	if cfg.RateLimit.Enabled {
		log.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := NewHandlers(apps, sandboxes, log)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stats", handlers.GetStats)

	// App management
	router.POST("/apps", handlers.InstallApp)
	router.GET("/apps", handlers.ListApps)
	router.GET("/apps/:id", handlers.GetApp)
	router.DELETE("/apps/:id", handlers.UninstallApp)

	// Lifecycle
	router.POST("/apps/:id/start", handlers.StartApp)
	router.POST("/apps/:id/stop", handlers.StopApp)
	router.POST("/apps/:id/pause", handlers.PauseApp)
	router.POST("/apps/:id/resume", handlers.ResumeApp)
	router.GET("/current", handlers.CurrentApp)

	// Permissions
	router.GET("/apps/:id/permissions", handlers.GetPermissions)
	router.POST("/apps/:id/permissions/grant", handlers.GrantPermissions)
	router.POST("/apps/:id/permissions/revoke", handlers.RevokePermissions)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		log: log,
	}
}

// Run starts serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
