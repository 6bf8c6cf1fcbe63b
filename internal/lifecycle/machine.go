// Package lifecycle validates and applies ticket status transitions.
//
// Apply never touches the ticket it is given: it works on a clone and
// returns the mutated copy together with the audit comments the transition
// produced, so a failed transition leaves no trace.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// Event names a lifecycle action.
type Event string

const (
	EventAssign   Event = "assign"
	EventEscalate Event = "escalate"
	EventResolve  Event = "resolve"
	EventClose    Event = "close"
	EventReopen   Event = "reopen"
)

// transitions follows the lifecycle table: escalating an open ticket does not
// require an assignee.
var transitions = map[domain.TicketStatus]map[Event]domain.TicketStatus{
	domain.TicketStatusOpen: {
		EventAssign:   domain.TicketStatusInProgress,
		EventEscalate: domain.TicketStatusEscalated,
	},
	domain.TicketStatusInProgress: {
		EventAssign:   domain.TicketStatusInProgress,
		EventEscalate: domain.TicketStatusEscalated,
		EventResolve:  domain.TicketStatusResolved,
	},
	domain.TicketStatusResolved: {
		EventClose:  domain.TicketStatusClosed,
		EventReopen: domain.TicketStatusInProgress,
	},
	domain.TicketStatusEscalated: {
		EventAssign: domain.TicketStatusInProgress,
	},
	domain.TicketStatusClosed: {},
}

// Next returns the target status for event from status, if allowed.
func Next(from domain.TicketStatus, event Event) (domain.TicketStatus, bool) {
	to, ok := transitions[from][event]
	return to, ok
}

// Events lists every lifecycle event.
func Events() []Event {
	return []Event{EventAssign, EventEscalate, EventResolve, EventClose, EventReopen}
}

// Command carries the inputs of one transition. Actor is always required.
type Command struct {
	Event    Event
	Actor    string
	Assignee string
	// Reason is the escalation reason or the reopen justification.
	Reason string
	Notes  string
}

// Result is the outcome of a successful transition.
type Result struct {
	Ticket   *domain.Ticket
	From     domain.TicketStatus
	To       domain.TicketStatus
	Comments []domain.Comment
}

// Apply validates cmd against t and returns the transitioned copy.
func Apply(t *domain.Ticket, cmd Command, now time.Time) (*Result, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	to, ok := Next(t.Status, cmd.Event)
	if !ok {
		return nil, apperrors.NewInvalidTransition(t.ID, string(cmd.Event), string(t.Status))
	}

	next := t.Clone()
	res := &Result{Ticket: next, From: t.Status, To: to}
	actor := strings.TrimSpace(cmd.Actor)
	var detail string

	switch cmd.Event {
	case EventAssign:
		assignee := strings.TrimSpace(cmd.Assignee)
		previous := next.Assignee()
		next.AssignedTo = &assignee
		if previous != "" && previous != assignee {
			detail = fmt.Sprintf("reassigned from %s to %s", previous, assignee)
		} else {
			detail = "assigned to " + assignee
		}
	case EventEscalate:
		detail = "reason: " + strings.TrimSpace(cmd.Reason)
	case EventResolve:
		if next.Assignee() == "" {
			return nil, apperrors.NewInvalidTransition(t.ID, string(cmd.Event), string(t.Status))
		}
		notes := strings.TrimSpace(cmd.Notes)
		next.ResolutionNotes = &notes
		resolvedAt := now
		next.ResolvedAt = &resolvedAt
		detail = "notes: " + notes
	case EventClose:
		detail = "archived"
	case EventReopen:
		next.ResolvedAt = nil
		next.ResolutionNotes = nil
		reason := strings.TrimSpace(cmd.Reason)
		detail = "reason: " + reason
		res.Comments = append(res.Comments, domain.Comment{
			ID:        uuid.NewString(),
			TicketID:  t.ID,
			Text:      reason,
			Author:    actor,
			Internal:  true,
			CreatedAt: now,
		})
	}

	next.Status = to
	next.UpdatedAt = now
	res.Comments = append([]domain.Comment{AuditComment(t.ID, cmd.Event, res.From, to, actor, detail, now)}, res.Comments...)
	return res, nil
}

// AuditComment builds the internal system comment recorded for a transition.
func AuditComment(ticketID string, event Event, from, to domain.TicketStatus, actor, detail string, at time.Time) domain.Comment {
	text := fmt.Sprintf("%s by %s at %s (%s -> %s)", event, actor, at.UTC().Format(time.RFC3339), from, to)
	if detail != "" {
		text += ": " + detail
	}
	return domain.Comment{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Text:      text,
		Author:    domain.SystemAuthor,
		Internal:  true,
		CreatedAt: at,
	}
}

func validate(cmd Command) error {
	if strings.TrimSpace(cmd.Actor) == "" {
		return apperrors.NewValidationError("actor required", map[string]any{"event": string(cmd.Event)})
	}
	switch cmd.Event {
	case EventAssign:
		if strings.TrimSpace(cmd.Assignee) == "" {
			return apperrors.NewValidationError("assignee required", nil)
		}
	case EventEscalate:
		if strings.TrimSpace(cmd.Reason) == "" {
			return apperrors.NewValidationError("escalation reason required", nil)
		}
	case EventResolve:
		if strings.TrimSpace(cmd.Notes) == "" {
			return apperrors.NewValidationError("resolution notes required", nil)
		}
	case EventReopen:
		if strings.TrimSpace(cmd.Reason) == "" {
			return apperrors.NewValidationError("reopen comment required", nil)
		}
	case EventClose:
	default:
		return apperrors.NewValidationError("unknown lifecycle event", map[string]any{"event": string(cmd.Event)})
	}
	return nil
}
