package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/talmeida/linktrace/config"
	"github.com/talmeida/linktrace/internal/app/repository"
	"github.com/talmeida/linktrace/internal/app/service"
	"github.com/talmeida/linktrace/internal/http/handler"
	"github.com/talmeida/linktrace/internal/http/middleware"
	infraprom "github.com/talmeida/linktrace/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs to register routes.
type Dependencies struct {
	Logger      *zap.Logger
	Config      *config.Config
	Redis       *redis.Client
	Engine      *service.RedirectEngine
	LinkService service.LinkService
	Dashboard   *service.Dashboard
	AccessLogs  repository.AccessLogRepository
	Metrics     *infraprom.Metrics
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Metrics != nil {
		s.app.Use(middleware.Metrics(s.deps.Metrics))
	}
}

func (s *Server) registerRoutes() {
	cfg := s.deps.Config
	secret := []byte(cfg.Auth.JWTSecret)

	authHandler := handler.NewAuthHandler(s.deps.Logger, cfg.Auth)
	authHandler.Register(s.app)

	adminHandler := handler.NewAdminHandler(handler.AdminDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.LinkService,
		AccessLogs:  s.deps.AccessLogs,
		BaseURL:     cfg.Server.BaseURL,
	})

	requireJWT := middleware.RequireJWT(secret)

	s.app.Post("/shorten", requireJWT, adminHandler.Shorten)

	admin := s.app.Group("/admin", requireJWT)
	adminHandler.Register(admin)

	dashHandler := handler.NewDashHandler(handler.DashDeps{
		Logger:     s.deps.Logger,
		Dashboard:  s.deps.Dashboard,
		AccessLogs: s.deps.AccessLogs,
	})
	dash := s.app.Group("/dash", requireJWT)
	dashHandler.Register(dash)

	if cfg.Server.StaticDir != "" {
		s.app.Static("/static", cfg.Server.StaticDir)
	}

	// The catch-all :slug route goes last so it cannot shadow the groups
	// above. Redirects get their own rate limit bucket.
	redirectHandler := handler.NewRedirectHandler(handler.RedirectDeps{
		Logger: s.deps.Logger,
		Engine: s.deps.Engine,
	})
	public := s.app.Group("",
		middleware.RateLimit(s.deps.Redis, middleware.RateLimitConfig{
			MaxRequests: 120,
			Window:      time.Minute,
			KeyPrefix:   "ratelimit:redirect",
		}, s.deps.Logger),
	)
	redirectHandler.Register(public)
}
