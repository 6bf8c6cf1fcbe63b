package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/observability"
)

// ServerConfig bundles what NewServer needs.
type ServerConfig struct {
	Name      string
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Timeout   time.Duration
	RateLimit config.RateLimitConfig
	Routes    RouteConfig
}

// NewServer builds the fiber app with middlewares and routes registered.
func NewServer(cfg ServerConfig) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	// Path params outlive the request in locks and spans, so fiber must not
	// hand out views into its reused buffers.
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			writeError(c, logger, cfg.Metrics, err)
			return nil
		},
	})
	RegisterMiddlewares(app, logger, cfg.Metrics, cfg.Timeout, cfg.RateLimit)
	RegisterRoutes(app, cfg.Routes)
	return app
}
