package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/lock"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	"github.com/spec-kit/mentor-ticket-service/internal/triage"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

const (
	DefaultDedupWindow         = 10 * time.Minute
	DefaultMaxDescriptionChars = 2000
	escalationActor            = "chat"
	escalationLockPrefix       = "escalation:"
)

// EscalationConfig tunes the chat bridge.
type EscalationConfig struct {
	DedupWindow         time.Duration
	MaxDescriptionChars int
}

// EscalationBridge turns chat escalations into tickets. Repeat escalations
// of one conversation inside the dedup window land on the same ticket.
type EscalationBridge struct {
	tickets    *TicketService
	repo       repository.TicketRepository
	profiles   *ProfileService
	locker     lock.Locker
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        EscalationConfig
}

// EscalationDependencies bundles collaborators for the bridge.
type EscalationDependencies struct {
	Tickets    *TicketService
	TicketRepo repository.TicketRepository
	Profiles   *ProfileService
	Locker     lock.Locker
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Config     EscalationConfig
}

// NewEscalationBridge constructs the bridge.
func NewEscalationBridge(deps EscalationDependencies) *EscalationBridge {
	if deps.Config.DedupWindow <= 0 {
		deps.Config.DedupWindow = DefaultDedupWindow
	}
	if deps.Config.MaxDescriptionChars <= 0 {
		deps.Config.MaxDescriptionChars = DefaultMaxDescriptionChars
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &EscalationBridge{
		tickets:    deps.Tickets,
		repo:       deps.TicketRepo,
		profiles:   deps.Profiles,
		locker:     deps.Locker,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// EscalationInput is what the chat surface reports when a turn escalates.
type EscalationInput struct {
	ConversationID string
	UserHash       string
	CourseID       string
	ModuleID       string
	LastQuestion   string
	AIAnswer       string
	RiskScoreHint  *int
	Language       string
}

// EscalationResult reports the ticket the escalation landed on.
type EscalationResult struct {
	Ticket  *domain.Ticket
	Created bool
}

// BridgeFromChat creates a ticket for the conversation, or appends to the
// one opened for it within the dedup window.
func (b *EscalationBridge) BridgeFromChat(ctx context.Context, input EscalationInput) (*EscalationResult, error) {
	conversationID := strings.TrimSpace(input.ConversationID)
	if conversationID == "" {
		return nil, apperrors.NewValidationError("conversation_id required", nil)
	}
	origin := domain.Origin{
		UserHash:       input.UserHash,
		CourseID:       input.CourseID,
		ModuleID:       input.ModuleID,
		ConversationID: conversationID,
	}
	if err := triage.ValidateOrigin(origin); err != nil {
		return nil, err
	}
	if input.RiskScoreHint != nil && (*input.RiskScoreHint < 0 || *input.RiskScoreHint > 100) {
		return nil, apperrors.NewValidationError("risk score hint must be between 0 and 100",
			map[string]any{"risk_score": *input.RiskScoreHint})
	}

	unlock, err := b.locker.Lock(ctx, escalationLockPrefix+conversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", conversationID, err)
	}
	defer unlock()

	since := b.clock.Now().Add(-b.cfg.DedupWindow)
	existing, err := b.repo.FindByCorrelationKey(ctx, conversationID, since)
	switch {
	case err == nil:
		return b.merge(ctx, existing, conversationID, input)
	case !apperrors.IsCode(err, apperrors.CodeNotFound):
		return nil, err
	}

	risk, language := b.resolveRiskAndLanguage(ctx, input)
	origin.Title = "Chat escalation: " + stringPreview(input.LastQuestion, 80)
	origin.Description = buildEscalationDescription(input.LastQuestion, input.AIAnswer, b.cfg.MaxDescriptionChars)

	ticket, err := b.tickets.CreateTicket(ctx, escalationActor, TicketCreateInput{
		Origin:     origin,
		RiskScore:  risk,
		Scenario:   triage.ScenarioChatEscalation,
		Channel:    "chat",
		Language:   language,
		SystemNote: fmt.Sprintf("escalated from chat conversation %s (risk %d)", conversationID, risk),
	})
	if err != nil {
		return nil, err
	}
	return &EscalationResult{Ticket: ticket, Created: true}, nil
}

func (b *EscalationBridge) merge(ctx context.Context, existing *domain.Ticket, conversationID string, input EscalationInput) (*EscalationResult, error) {
	dup := apperrors.NewDuplicateEscalation(existing.ID, conversationID)
	b.logger.Info("duplicate escalation folded into existing ticket",
		zap.String("ticket_id", existing.ID),
		zap.String("conversation_id", conversationID),
		zap.Error(dup))

	text := fmt.Sprintf("repeat escalation from chat conversation %s", conversationID)
	if q := stringPreview(input.LastQuestion, 200); q != "" {
		text += ": " + q
	}
	added, err := b.tickets.AddSystemComment(ctx, existing.ID, text)
	if err != nil {
		return nil, err
	}
	publish(ctx, b.dispatcher, b.clock, events.Event{
		Type:     events.EventEscalationMerged,
		TicketID: existing.ID,
		Actor:    escalationActor,
		Payload:  events.EscalationMergedPayload{ConversationID: conversationID, CommentID: added.ID},
	})
	ticket, err := b.repo.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	return &EscalationResult{Ticket: ticket, Created: false}, nil
}

// resolveRiskAndLanguage prefers the hint and falls back to the student's
// profile; with neither the risk is 0.
func (b *EscalationBridge) resolveRiskAndLanguage(ctx context.Context, input EscalationInput) (int, string) {
	language := strings.TrimSpace(input.Language)
	if input.RiskScoreHint != nil && language != "" {
		return *input.RiskScoreHint, language
	}
	risk := 0
	if input.RiskScoreHint != nil {
		risk = *input.RiskScoreHint
	}
	if b.profiles == nil {
		return risk, language
	}
	profile, err := b.profiles.Get(ctx, input.UserHash, input.CourseID)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			b.logger.Warn("student profile unavailable for escalation",
				zap.String("conversation_id", input.ConversationID),
				zap.Error(err))
		}
		return risk, language
	}
	if input.RiskScoreHint == nil {
		risk = clampRisk(profile.RiskScore)
	}
	if language == "" {
		language = profile.PreferredLanguage
	}
	return risk, language
}

func buildEscalationDescription(question, answer string, max int) string {
	var sb strings.Builder
	sb.WriteString("Student question:\n")
	sb.WriteString(strings.TrimSpace(question))
	if a := strings.TrimSpace(answer); a != "" {
		sb.WriteString("\n\nAI answer:\n")
		sb.WriteString(a)
	}
	return stringPreview(sb.String(), max)
}

func clampRisk(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
