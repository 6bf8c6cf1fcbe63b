package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mentor-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/mentor-ticket-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Chat           *handlers.ChatHandler
	Profiles       *handlers.ProfileHandler
	AuthMiddleware *auth.AuthMiddleware
	ServiceKey     *auth.ServiceKeyMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	// Group middleware on /api would also run for /api/chat.
	mentor := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleMentor, auth.RoleLead), h}
	}
	api.Get("/tickets", mentor(cfg.Tickets.ListTickets)...)
	api.Post("/tickets", mentor(cfg.Tickets.CreateTicket)...)
	api.Get("/tickets/by-key/:key", mentor(cfg.Tickets.GetTicketByKey)...)
	api.Get("/tickets/:id", mentor(cfg.Tickets.GetTicket)...)
	api.Get("/tickets/:id/comments", mentor(cfg.Tickets.ListComments)...)
	api.Patch("/tickets/:id/assign", mentor(cfg.Tickets.Assign)...)
	api.Patch("/tickets/:id/resolve", mentor(cfg.Tickets.Resolve)...)
	api.Post("/tickets/:id/escalate", mentor(cfg.Tickets.Escalate)...)
	api.Post("/tickets/:id/close", mentor(cfg.Tickets.Close)...)
	api.Post("/tickets/:id/reopen", mentor(cfg.Tickets.Reopen)...)
	api.Post("/tickets/:id/comment", mentor(cfg.Tickets.AddComment)...)
	api.Get("/students/:userHash/profile", mentor(cfg.Profiles.GetProfile)...)

	chat := api.Group("/chat", cfg.ServiceKey.Handle)
	chat.Post("/escalations", cfg.Chat.Escalate)
	chat.Get("/tickets/:id", cfg.Chat.StudentTicket)
	chat.Post("/tickets/:id/feedback", cfg.Chat.Feedback)
}
