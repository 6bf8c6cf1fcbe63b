package dto

import (
	"time"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
)

// CreateTicketRequest payload for manual console tickets.
type CreateTicketRequest struct {
	UserHash    string `json:"user_hash"`
	CourseID    string `json:"course_id"`
	ModuleID    string `json:"module_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	RiskScore   int    `json:"risk_score"`
	Scenario    string `json:"scenario"`
	Language    string `json:"language"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssignedTo string `json:"assigned_to"`
	Notes      string `json:"notes"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// EscalateTicketRequest payload.
type EscalateTicketRequest struct {
	Reason string `json:"reason"`
}

// ReopenTicketRequest payload.
type ReopenTicketRequest struct {
	Comment string `json:"comment"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Comment    string `json:"comment"`
	IsInternal bool   `json:"is_internal"`
}

// TicketResponse is the mentor view of a ticket.
type TicketResponse struct {
	ID               string                `json:"id"`
	Key              string                `json:"key"`
	UserHash         string                `json:"user_hash"`
	CourseID         string                `json:"course_id"`
	ModuleID         string                `json:"module_id,omitempty"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Status           domain.TicketStatus   `json:"status"`
	Priority         domain.TicketPriority `json:"priority"`
	Language         string                `json:"language"`
	Scenario         string                `json:"scenario"`
	Channel          string                `json:"channel"`
	AssignedTo       *string               `json:"assigned_to"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	ResolvedAt       *time.Time            `json:"resolved_at"`
	SLADueDate       time.Time             `json:"sla_due_date"`
	SLAStatus        domain.SLAStatus      `json:"sla_status"`
	ResolutionNotes  *string               `json:"resolution_notes"`
	CommentsCount    int                   `json:"comments_count"`
	StudentRiskScore int                   `json:"student_risk_score"`
}

// CommentResponse is one thread entry.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	Comment    string    `json:"comment"`
	Author     string    `json:"author"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTicketResponse maps a ticket and its derived SLA bucket.
func NewTicketResponse(t *domain.Ticket, sla domain.SLAStatus) TicketResponse {
	return TicketResponse{
		ID:               t.ID,
		Key:              t.Key,
		UserHash:         t.UserHash,
		CourseID:         t.CourseID,
		ModuleID:         t.ModuleID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		Priority:         t.Priority,
		Language:         t.Language,
		Scenario:         t.Scenario,
		Channel:          t.Channel,
		AssignedTo:       t.AssignedTo,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		ResolvedAt:       t.ResolvedAt,
		SLADueDate:       t.SLADueAt,
		SLAStatus:        sla,
		ResolutionNotes:  t.ResolutionNotes,
		CommentsCount:    t.CommentCount,
		StudentRiskScore: t.RiskScore,
	}
}

// NewCommentResponse maps a comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		TicketID:   c.TicketID,
		Comment:    c.Text,
		Author:     c.Author,
		IsInternal: c.Internal,
		CreatedAt:  c.CreatedAt,
	}
}

// NewCommentResponses maps a thread.
func NewCommentResponses(comments []domain.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, NewCommentResponse(&comments[i]))
	}
	return out
}
