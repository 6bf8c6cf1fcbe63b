package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/lifecycle"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	"github.com/spec-kit/mentor-ticket-service/internal/triage"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// TicketService coordinates ticket workflows. Every mutation takes the acting
// identity explicitly.
type TicketService struct {
	tickets    repository.TicketRepository
	triage     *triage.Policy
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Triage     *triage.Policy
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Origin    domain.Origin
	RiskScore int
	Scenario  string
	Channel   string
	Language  string

	// SystemNote, when set, becomes the first internal comment and is stored
	// in the same write as the ticket.
	SystemNote string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		triage:     deps.Triage,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// CreateTicket triages and persists a new open ticket. The thread is empty
// unless input carries a SystemNote.
func (s *TicketService) CreateTicket(ctx context.Context, actor string, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := triage.ValidateOrigin(input.Origin); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	assessment, err := s.triage.Assess(input.RiskScore, input.Scenario, input.Channel, input.Language, now)
	if err != nil {
		return nil, err
	}

	scenario := triage.Normalize(input.Scenario)
	title := strings.TrimSpace(input.Origin.Title)
	if title == "" {
		title = defaultTitle(scenario)
	}
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Key:         generateTicketKey(),
		UserHash:    strings.TrimSpace(input.Origin.UserHash),
		CourseID:    strings.TrimSpace(input.Origin.CourseID),
		ModuleID:    strings.TrimSpace(input.Origin.ModuleID),
		Title:       title,
		Description: strings.TrimSpace(input.Origin.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    assessment.Priority,
		Language:    assessment.Language,
		Scenario:    scenario,
		Channel:     triage.Normalize(input.Channel),
		CreatedAt:   now,
		UpdatedAt:   now,
		SLADueAt:    assessment.DueAt,
		RiskScore:   input.RiskScore,
	}
	if conv := strings.TrimSpace(input.Origin.ConversationID); conv != "" {
		ticket.CorrelationKey = &conv
	}

	var seed []domain.Comment
	if note := strings.TrimSpace(input.SystemNote); note != "" {
		seed = append(seed, newComment(ticket.ID, note, domain.SystemAuthor, true, now))
	}
	if err := s.tickets.Create(ctx, ticket, seed...); err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("actor", actor),
		zap.String("priority", string(ticket.Priority)),
		zap.String("scenario", ticket.Scenario))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			Key:            ticket.Key,
			Priority:       ticket.Priority,
			Scenario:       ticket.Scenario,
			Channel:        ticket.Channel,
			SLADueAt:       ticket.SLADueAt,
			CorrelationKey: ticket.CorrelationKey,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket snapshot.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.tickets.GetByID(ctx, ticketID)
}

// GetTicketByKey fetches a ticket by its human-friendly key.
func (s *TicketService) GetTicketByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	return s.tickets.GetByKey(ctx, strings.ToUpper(strings.TrimSpace(key)))
}

// ListComments returns the full thread, internal entries included.
func (s *TicketService) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	return s.tickets.ListComments(ctx, ticketID)
}

// Assign moves a ticket to in_progress under assignee, or reassigns it.
// Non-empty notes are kept as an internal comment by actor.
func (s *TicketService) Assign(ctx context.Context, actor, ticketID, assignee, notes string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, lifecycle.Command{
		Event:    lifecycle.EventAssign,
		Actor:    actor,
		Assignee: assignee,
	}, notes)
}

// Escalate flags a ticket for senior attention.
func (s *TicketService) Escalate(ctx context.Context, actor, ticketID, reason string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, lifecycle.Command{
		Event:  lifecycle.EventEscalate,
		Actor:  actor,
		Reason: reason,
	}, "")
}

// Resolve records resolution notes and stamps resolved_at.
func (s *TicketService) Resolve(ctx context.Context, actor, ticketID, notes string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, lifecycle.Command{
		Event: lifecycle.EventResolve,
		Actor: actor,
		Notes: notes,
	}, "")
}

// Close archives a resolved ticket. No transition leaves closed.
func (s *TicketService) Close(ctx context.Context, actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, lifecycle.Command{
		Event: lifecycle.EventClose,
		Actor: actor,
	}, "")
}

// Reopen returns a resolved ticket to in_progress; comment is mandatory.
func (s *TicketService) Reopen(ctx context.Context, actor, ticketID, comment string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, lifecycle.Command{
		Event:  lifecycle.EventReopen,
		Actor:  actor,
		Reason: comment,
	}, "")
}

func (s *TicketService) transition(ctx context.Context, ticketID string, cmd lifecycle.Command, notes string) (*domain.Ticket, error) {
	var res *lifecycle.Result
	var previousAssignee *string
	updated, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) ([]domain.Comment, error) {
		now := s.clock.Now()
		applied, err := lifecycle.Apply(t, cmd, now)
		if err != nil {
			return nil, err
		}
		previousAssignee = t.AssignedTo
		res = applied
		comments := applied.Comments
		if text := strings.TrimSpace(notes); text != "" {
			comments = append(comments, newComment(t.ID, text, strings.TrimSpace(cmd.Actor), true, now))
		}
		*t = *applied.Ticket
		return comments, nil
	})
	if err != nil {
		s.logger.Info("ticket transition rejected",
			zap.String("ticket_id", ticketID),
			zap.String("actor", cmd.Actor),
			zap.String("event", string(cmd.Event)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("ticket transitioned",
		zap.String("ticket_id", updated.ID),
		zap.String("actor", cmd.Actor),
		zap.String("event", string(cmd.Event)),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)))

	if cmd.Event == lifecycle.EventAssign {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: updated.ID,
			Actor:    cmd.Actor,
			Payload: events.TicketAssignedPayload{
				PreviousAssignee: previousAssignee,
				Assignee:         updated.Assignee(),
			},
		})
	}
	if res.From != res.To {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: updated.ID,
			Actor:    cmd.Actor,
			Payload: events.TicketStatusChangedPayload{
				Event:     string(cmd.Event),
				OldStatus: res.From,
				NewStatus: res.To,
				Comment:   firstNonEmpty(cmd.Reason, cmd.Notes),
			},
		})
	}
	return updated, nil
}

// AddComment appends a comment. Comments are accepted in every status,
// closed included.
func (s *TicketService) AddComment(ctx context.Context, actor, ticketID, text string, internal bool) (*domain.Comment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text required", nil)
	}
	return s.appendComment(ctx, ticketID, strings.TrimSpace(actor), text, internal)
}

// AddSystemComment appends an internal comment signed by the engine.
func (s *TicketService) AddSystemComment(ctx context.Context, ticketID, text string) (*domain.Comment, error) {
	return s.appendComment(ctx, ticketID, domain.SystemAuthor, text, true)
}

func (s *TicketService) appendComment(ctx context.Context, ticketID, author, text string, internal bool) (*domain.Comment, error) {
	var added domain.Comment
	_, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) ([]domain.Comment, error) {
		now := s.clock.Now()
		added = newComment(t.ID, text, author, internal, now)
		t.UpdatedAt = now
		return []domain.Comment{added}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket comment added",
		zap.String("ticket_id", ticketID),
		zap.String("actor", author),
		zap.Bool("internal", internal))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticketID,
		Actor:    author,
		Payload: events.TicketCommentAddedPayload{
			CommentID:   added.ID,
			Author:      added.Author,
			Internal:    added.Internal,
			BodyPreview: stringPreview(added.Text, 120),
		},
	})
	return &added, nil
}

// StudentView returns the ticket and its student-visible comments. The
// caller's identity hash must match the ticket owner.
func (s *TicketService) StudentView(ctx context.Context, ticketID, userHash string) (*domain.Ticket, []domain.Comment, error) {
	ticket, err := s.ownedTicket(ctx, ticketID, userHash)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.tickets.ListComments(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, visibleCommentsForStudent(comments), nil
}

// FeedbackInput is a helpful/unhelpful rating from the chat surface.
type FeedbackInput struct {
	TicketID  string
	UserHash  string
	MessageID string
	Helpful   bool
}

// RecordFeedback keeps chat feedback on the ticket as an internal comment.
func (s *TicketService) RecordFeedback(ctx context.Context, input FeedbackInput) (*domain.Comment, error) {
	if strings.TrimSpace(input.MessageID) == "" {
		return nil, apperrors.NewValidationError("message_id required", nil)
	}
	if _, err := s.ownedTicket(ctx, input.TicketID, input.UserHash); err != nil {
		return nil, err
	}
	verdict := "unhelpful"
	if input.Helpful {
		verdict = "helpful"
	}
	added, err := s.appendComment(ctx, input.TicketID, domain.SystemAuthor,
		fmt.Sprintf("student rated chat message %s as %s", strings.TrimSpace(input.MessageID), verdict), true)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketFeedback,
		TicketID: input.TicketID,
		Actor:    domain.SystemAuthor,
		Payload:  events.TicketFeedbackPayload{MessageID: input.MessageID, Helpful: input.Helpful},
	})
	return added, nil
}

func (s *TicketService) ownedTicket(ctx context.Context, ticketID, userHash string) (*domain.Ticket, error) {
	if strings.TrimSpace(userHash) == "" {
		return nil, apperrors.NewValidationError("user_hash required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserHash != strings.TrimSpace(userHash) {
		return nil, apperrors.NewForbidden("ticket belongs to another student")
	}
	return ticket, nil
}

func visibleCommentsForStudent(comments []domain.Comment) []domain.Comment {
	filtered := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Internal {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

func newComment(ticketID, text, author string, internal bool, at time.Time) domain.Comment {
	return domain.Comment{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Text:      text,
		Author:    author,
		Internal:  internal,
		CreatedAt: at,
	}
}

func defaultTitle(scenario string) string {
	if scenario == "" {
		return "Support request"
	}
	words := strings.Split(scenario, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.clock, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, clk clock.Clock, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clk.Now()
	}
	// Handler failures are logged by the dispatcher.
	_ = dispatcher.Publish(ctx, event)
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apperrors.NewValidationError("actor required", nil)
	}
	return nil
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
