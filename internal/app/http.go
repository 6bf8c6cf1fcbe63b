package app

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/mentor-ticket-service/internal/api/http"
	"github.com/spec-kit/mentor-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/mentor-ticket-service/internal/auth"
	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/observability"
)

func wireHTTP(cfg *config.Config, a *App, metrics *observability.Metrics, log *zap.Logger) *fiber.App {
	deps := map[string]handlers.Pinger{}
	if a.Postgres != nil {
		deps["postgres"] = a.Postgres
	}
	if a.Redis != nil {
		deps["redis"] = a.Redis
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	if cfg.Auth.ChatServiceKeyHash == "" {
		log.Warn("AUTH_CHAT_SERVICE_KEY_HASH not set; chat routes are unauthenticated")
	}

	return httptransport.NewServer(httptransport.ServerConfig{
		Name:      cfg.App.Name,
		Logger:    log,
		Metrics:   metrics,
		Timeout:   cfg.App.RequestTimeout(),
		RateLimit: cfg.RateLimit,
		Routes: httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
			Tickets:        handlers.NewTicketsHandler(a.Services.Tickets, a.Services.Query),
			Chat:           handlers.NewChatHandler(a.Services.Bridge, a.Services.Tickets),
			Profiles:       handlers.NewProfileHandler(a.Services.Profiles),
			AuthMiddleware: auth.NewAuthMiddleware(tokens),
			ServiceKey:     auth.NewServiceKeyMiddleware(cfg.Auth.ChatServiceKeyHash),
		},
	})
}
