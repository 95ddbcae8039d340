// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"time"

	"threads/internal/cache"
	"threads/internal/config"
	"threads/internal/database"
	"threads/internal/featureflags"
	"threads/internal/middleware"
	"threads/internal/repository"
	"threads/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config           *config.Config
	store            *database.Store
	redis            *redis.Client
	promMiddleware   *fiberprometheus.FiberPrometheus
	userRepo         repository.UserRepository
	threadRepo       repository.ThreadRepository
	communityRepo    repository.CommunityRepository
	featureFlags     *featureflags.Manager
	threadService    *service.ThreadService
	userService      *service.UserService
	communityService *service.CommunityService
}

// NewServer creates a new server instance with all dependencies.
func NewServer(cfg *config.Config) (*Server, error) {
	store := database.New(cfg)

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	middleware.InitMiddleware(cfg)

	return NewServerWithDeps(cfg, store, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the store and Redis.
func NewServerWithDeps(cfg *config.Config, store *database.Store, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(store)
	threadRepo := repository.NewThreadRepository(store)
	communityRepo := repository.NewCommunityRepository(store)

	prom := fiberprometheus.New("threads-api")

	server := &Server{
		config:         cfg,
		store:          store,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		threadRepo:     threadRepo,
		communityRepo:  communityRepo,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	server.threadService = service.NewThreadService(threadRepo, userRepo, communityRepo, server.featureFlags)
	server.userService = service.NewUserService(userRepo, threadRepo)
	server.communityService = service.NewCommunityService(communityRepo, userRepo)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for correlation
	app.Use(requestid.New())

	// Context middleware to propagate request id and caller id
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Public thread routes (browse)
	publicThreads := api.Group("/threads")
	publicThreads.Get("/", s.GetThreads)
	publicThreads.Get("/:id", s.GetThread)

	// Public community routes
	communities := api.Group("/communities")
	communities.Get("/:id", s.GetCommunity)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired)

	// User routes
	users := protected.Group("/users")
	users.Get("/", s.GetUsers)
	users.Put("/me", s.UpdateMyProfile)
	// Specific /:id/:resource routes BEFORE generic /:id route
	users.Get("/:id/threads", s.GetUserThreads)
	users.Get("/:id/activity", s.GetUserActivity)
	users.Get("/:id", s.GetUser)

	// Protected thread routes
	threads := protected.Group("/threads")
	threads.Post("/", middleware.RateLimit(
		s.redis, 5, time.Minute, "create_thread"), s.CreateThread)
	threads.Post("/:id/comments", middleware.RateLimit(
		s.redis, 15, time.Minute, "create_comment"), s.AddComment)
	threads.Delete("/:id", s.DeleteThread)

	// Protected community routes
	protectedCommunities := protected.Group("/communities")
	protectedCommunities.Post("/", s.CreateCommunity)
	protectedCommunities.Post("/:id/members", s.AddCommunityMember)
	protectedCommunities.Delete("/:id/members/:userId", s.RemoveCommunityMember)

	// Feature flag snapshot for the authenticated caller
	protected.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// The app degrades to no-cache without Redis; readiness only requires the store.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if storeStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// GetFeatureFlags returns the flag snapshot evaluated for the caller.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	caller := middleware.CallerExternalID(c)
	return c.JSON(fiber.Map{
		"flags": s.featureFlags.Snapshot(caller),
	})
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.store != nil {
		return s.store.Disconnect(ctx)
	}
	return nil
}
