package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

// Dependencies are the collaborators behind the HTTP surface. Attendance
// may be nil when no template store is configured; its routes are then
// not mounted.
type Dependencies struct {
	Verifier   handler.Verifier
	Attendance handler.AttendanceService
	Models     handler.ModelStatus
	DB         handler.Pinger
	// Events streams audit events over a websocket when set.
	Events *ws.Hub

	// APIKeyHash is the SHA-256 of the accepted bearer token.
	APIKeyHash string
	// AllowAnonymous disables auth when APIKeyHash is empty (development).
	AllowAnonymous bool
	RateLimit      *middleware.RateLimiterConfig
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Presenca API",
		BodyLimit:    64 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var models handler.ModelStatus
	var db handler.Pinger
	if r.deps != nil {
		models, db = r.deps.Models, r.deps.DB
	}

	// Health check endpoints (no auth required)
	healthHandler := handler.NewHealthHandler(models, db)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil || r.deps.Verifier == nil {
		return
	}

	v1 := r.app.Group("/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		KeyHash:        r.deps.APIKeyHash,
		AllowAnonymous: r.deps.AllowAnonymous,
		Logger:         r.logger,
	}))

	// Rate limiting must come after auth to key by client
	rlConfig := middleware.DefaultRateLimiterConfig()
	if r.deps.RateLimit != nil {
		rlConfig = *r.deps.RateLimit
	}
	r.rateLimiter = middleware.NewRateLimiter(rlConfig)
	v1.Use(r.rateLimiter.Handler())

	verification := handler.NewVerificationHandler(r.deps.Verifier, r.logger)
	v1.Post("/liveness", verification.Liveness)
	v1.Post("/liveness/sequence", verification.Sequence)
	v1.Post("/detect", verification.Detect)

	if r.deps.Attendance != nil {
		attendance := handler.NewAttendanceHandler(r.deps.Attendance, r.logger)
		v1.Post("/templates/:user_id", attendance.Enroll)
		v1.Delete("/templates/:user_id", attendance.Remove)
		v1.Post("/attendance/:user_id", attendance.Mark)
	}

	if r.deps.Events != nil {
		v1.Get("/events", ws.UpgradeMiddleware(), ws.Handler(r.deps.Events))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
