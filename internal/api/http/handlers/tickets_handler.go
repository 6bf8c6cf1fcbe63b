package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mentor-ticket-service/internal/api/dto"
	"github.com/spec-kit/mentor-ticket-service/internal/auth"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/service"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// TicketsHandler serves the mentor console.
type TicketsHandler struct {
	tickets *service.TicketService
	query   *service.QueryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, query *service.QueryService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, query: query}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	views, err := h.query.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(views))
	for i := range views {
		items = append(items, dto.NewTicketResponse(&views[i].Ticket, views[i].SLAStatus))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Origin: domain.Origin{
			UserHash:    req.UserHash,
			CourseID:    req.CourseID,
			ModuleID:    req.ModuleID,
			Title:       req.Title,
			Description: req.Description,
		},
		RiskScore: req.RiskScore,
		Scenario:  req.Scenario,
		Channel:   "console",
		Language:  req.Language,
	})
	if err != nil {
		return err
	}
	return h.respond(c.Status(http.StatusCreated), ticket)
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// GetTicketByKey GET /api/tickets/by-key/:key.
func (h *TicketsHandler) GetTicketByKey(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicketByKey(c.UserContext(), c.Params("key"))
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// ListComments GET /api/tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	comments, err := h.tickets.ListComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCommentResponses(comments)})
}

// Assign PATCH /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Assign(c.UserContext(), actor, c.Params("id"), req.AssignedTo, req.Notes)
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// Resolve PATCH /api/tickets/:id/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Resolve(c.UserContext(), actor, c.Params("id"), req.ResolutionNotes)
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// Escalate POST /api/tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	var req dto.EscalateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Escalate(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// Close POST /api/tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Close(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// Reopen POST /api/tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	var req dto.ReopenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Reopen(c.UserContext(), actor, c.Params("id"), req.Comment)
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// AddComment POST /api/tickets/:id/comment.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := mentorID(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.tickets.AddComment(c.UserContext(), actor, c.Params("id"), req.Comment, req.IsInternal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

func (h *TicketsHandler) respond(c *fiber.Ctx, ticket *domain.Ticket) error {
	view := h.query.View(ticket)
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(&view.Ticket, view.SLAStatus)})
}

func mentorID(c *fiber.Ctx) (string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.MentorID == "" {
		return "", apperrors.NewUnauthorized("mentor required")
	}
	return principal.MentorID, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	for _, part := range splitCSV(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitCSV(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(part))
	}
	// sla_filter is the console's historical name.
	if v := firstQuery(c, "sla_status", "sla_filter"); v != "" {
		s := domain.SLAStatus(v)
		filter.SLAStatus = &s
	}
	if v := firstQuery(c, "language", "language_filter"); v != "" {
		filter.Language = &v
	}
	if v := strings.TrimSpace(c.Query("assigned_to")); v != "" {
		filter.Assignee = &v
	}
	if v := strings.TrimSpace(c.Query("course_id")); v != "" {
		filter.CourseID = &v
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func splitCSV(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstQuery(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
	}
	return ""
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	val := c.Query(key)
	if val == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return 0, apperrors.NewValidationError(key+" must be a non-negative integer", map[string]any{key: val})
	}
	return parsed, nil
}
