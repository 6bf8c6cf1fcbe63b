package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mentor-ticket-service/internal/api/dto"
	"github.com/spec-kit/mentor-ticket-service/internal/service"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// ChatHandler serves the routes the AI chat surface calls.
type ChatHandler struct {
	bridge  *service.EscalationBridge
	tickets *service.TicketService
}

// NewChatHandler constructs handler.
func NewChatHandler(bridge *service.EscalationBridge, tickets *service.TicketService) *ChatHandler {
	return &ChatHandler{bridge: bridge, tickets: tickets}
}

// Escalate POST /api/chat/escalations. Responds 201 for a new ticket and
// 200 when folded into an existing one.
func (h *ChatHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.bridge.BridgeFromChat(c.UserContext(), service.EscalationInput{
		ConversationID: req.ConversationID,
		UserHash:       req.UserHash,
		CourseID:       req.CourseID,
		ModuleID:       req.ModuleID,
		LastQuestion:   req.LastQuestion,
		AIAnswer:       req.AIAnswer,
		RiskScoreHint:  req.RiskScore,
		Language:       req.Language,
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.EscalationResponse{
		TicketID:   res.Ticket.ID,
		Key:        res.Ticket.Key,
		Created:    res.Created,
		Status:     res.Ticket.Status,
		Priority:   res.Ticket.Priority,
		SLADueDate: res.Ticket.SLADueAt,
	}})
}

// StudentTicket GET /api/chat/tickets/:id?user_id_hash=.
func (h *ChatHandler) StudentTicket(c *fiber.Ctx) error {
	ticket, comments, err := h.tickets.StudentView(c.UserContext(), c.Params("id"), c.Query("user_id_hash"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStudentTicketResponse(ticket, comments)})
}

// Feedback POST /api/chat/tickets/:id/feedback.
func (h *ChatHandler) Feedback(c *fiber.Ctx) error {
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if _, err := h.tickets.RecordFeedback(c.UserContext(), service.FeedbackInput{
		TicketID:  c.Params("id"),
		UserHash:  req.UserHash,
		MessageID: req.MessageID,
		Helpful:   req.Helpful,
	}); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
