package events

import (
	"time"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
	EventEscalationMerged    EventType = "ticket_escalation_merged"
	EventTicketFeedback      EventType = "ticket_feedback_recorded"
	EventTicketSLAAtRisk     EventType = "ticket_sla_at_risk"
	EventTicketSLAOverdue    EventType = "ticket_sla_overdue"
)

// Event represents a domain event emitted by services. Actor is the explicit
// identity that caused it, or "system" for engine-originated events.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Key            string                `json:"key"`
	Priority       domain.TicketPriority `json:"priority"`
	Scenario       string                `json:"scenario"`
	Channel        string                `json:"channel"`
	SLADueAt       time.Time             `json:"sla_due_at"`
	CorrelationKey *string               `json:"correlation_key,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Event     string              `json:"event"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAssignee *string `json:"previous_assignee,omitempty"`
	Assignee         string  `json:"assignee"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	Author      string `json:"author"`
	Internal    bool   `json:"internal"`
	BodyPreview string `json:"body_preview"`
}

// EscalationMergedPayload payload; emitted when a repeat chat escalation is
// folded into an existing ticket.
type EscalationMergedPayload struct {
	ConversationID string `json:"conversation_id"`
	CommentID      string `json:"comment_id"`
}

// TicketFeedbackPayload payload.
type TicketFeedbackPayload struct {
	MessageID string `json:"message_id"`
	Helpful   bool   `json:"helpful"`
}

// TicketSLAPayload payload for SLA bucket changes.
type TicketSLAPayload struct {
	SLAStatus domain.SLAStatus      `json:"sla_status"`
	Priority  domain.TicketPriority `json:"priority"`
	SLADueAt  time.Time             `json:"sla_due_at"`
	Assignee  *string               `json:"assignee,omitempty"`
}
