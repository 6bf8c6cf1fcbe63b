package dto

import (
	"time"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
)

// EscalationRequest is sent by the chat surface when a turn escalates.
type EscalationRequest struct {
	ConversationID string `json:"conversation_id"`
	UserHash       string `json:"user_id_hash"`
	CourseID       string `json:"course_id"`
	ModuleID       string `json:"module_id"`
	LastQuestion   string `json:"last_question"`
	AIAnswer       string `json:"ai_answer"`
	RiskScore      *int   `json:"risk_score"`
	Language       string `json:"language"`
}

// EscalationResponse reports where the escalation landed.
type EscalationResponse struct {
	TicketID   string                `json:"ticket_id"`
	Key        string                `json:"key"`
	Created    bool                  `json:"created"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	SLADueDate time.Time             `json:"sla_due_date"`
}

// FeedbackRequest records whether a chat answer helped.
type FeedbackRequest struct {
	MessageID string `json:"message_id"`
	UserHash  string `json:"user_id_hash"`
	Helpful   bool   `json:"helpful"`
}

// StudentTicketResponse is what a student sees of their ticket.
type StudentTicketResponse struct {
	ID        string              `json:"id"`
	Key       string              `json:"key"`
	Title     string              `json:"title"`
	Status    domain.TicketStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Comments  []StudentComment    `json:"comments"`
}

// StudentComment omits author identity beyond the display name.
type StudentComment struct {
	Comment   string    `json:"comment"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStudentTicketResponse maps the student view.
func NewStudentTicketResponse(t *domain.Ticket, comments []domain.Comment) StudentTicketResponse {
	out := StudentTicketResponse{
		ID:        t.ID,
		Key:       t.Key,
		Title:     t.Title,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Comments:  make([]StudentComment, 0, len(comments)),
	}
	for _, c := range comments {
		out.Comments = append(out.Comments, StudentComment{Comment: c.Text, Author: c.Author, CreatedAt: c.CreatedAt})
	}
	return out
}
