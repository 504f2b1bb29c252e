// Package api exposes the engine over HTTP: event registration, context
// collection, analysis runs and the suggestion/optimization lifecycles.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/opsengine/internal/collector"
	"github.com/p-blackswan/opsengine/internal/engine"
	"github.com/p-blackswan/opsengine/internal/event"
	"github.com/p-blackswan/opsengine/internal/goals"
	"github.com/p-blackswan/opsengine/internal/health"
	"github.com/p-blackswan/opsengine/internal/metrics"
	"github.com/p-blackswan/opsengine/internal/requestid"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	ListenAddr         string
	AuthConfig         AuthConfig
	RateLimit          RateLimitConfig
	CORSOrigins        string
	Version            string
	DefaultHorizonDays int // applied when a request omits horizon_days
}

// Server is the Fiber application wired to the engine's collaborators.
type Server struct {
	app       *fiber.App
	registry  *event.Registry
	collector *collector.Collector
	engine    *engine.Engine
	store     *suggest.Store
	presets   goals.Presets
	checker   *health.Checker
	metrics   *metrics.Metrics
	startTime time.Time
	version   string
	logger    zerolog.Logger
	config    ServerConfig
}

// NewServer creates and configures the HTTP server.
func NewServer(
	cfg ServerConfig,
	registry *event.Registry,
	col *collector.Collector,
	eng *engine.Engine,
	store *suggest.Store,
	presets goals.Presets,
	checker *health.Checker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:       app,
		registry:  registry,
		collector: col,
		engine:    eng,
		store:     store,
		presets:   presets,
		checker:   checker,
		metrics:   m,
		startTime: time.Now(),
		version:   cfg.Version,
		logger:    logger.With().Str("component", "api_server").Logger(),
		config:    cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit log; probes are skipped to keep the log readable.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Probe endpoints bypass auth in the auth middleware.
	s.app.Get("/healthz", s.handleLiveness)
	s.app.Get("/readyz", s.handleReadiness)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	v1 := s.app.Group("/api/v1")

	v1.Post("/events", requireRole(RoleOperator), s.handleRegisterEvent)
	v1.Get("/events", s.handleListEvents)

	v1.Post("/context", s.handleCollect)
	v1.Post("/analyze", requireRole(RoleOperator), s.handleAnalyze)

	v1.Get("/suggestions", s.handleListSuggestions)
	v1.Get("/suggestions/:id", s.handleGetSuggestion)
	v1.Post("/suggestions/:id/approve", requireRole(RoleOperator), s.handleApproveSuggestion)
	v1.Post("/suggestions/:id/dismiss", requireRole(RoleOperator), s.handleDismissSuggestion)
	v1.Post("/suggestions/:id/create", requireRole(RoleOperator), s.handleCreateFromSuggestion)

	v1.Get("/optimizations", s.handleListOptimizations)
	v1.Get("/optimizations/:id", s.handleGetOptimization)
	v1.Post("/optimizations/:id/apply", requireRole(RoleOperator), s.handleApplyOptimization)
	v1.Post("/optimizations/:id/reject", requireRole(RoleOperator), s.handleRejectOptimization)

	v1.Get("/stats", s.handleStats)
	v1.Get("/health", s.handleHealthDetail)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("api server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
