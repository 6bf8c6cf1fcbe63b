// Package triage assigns priority and SLA deadlines to new tickets.
package triage

import (
	"strings"
	"time"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/sla"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// ScenarioChatEscalation tags tickets opened by the chat escalation bridge.
const ScenarioChatEscalation = "chat_escalation"

// Risk thresholds; a score equal to a threshold takes the higher priority.
const (
	UrgentRiskThreshold = 80
	HighRiskThreshold   = 60
	MediumRiskThreshold = 30
)

// DefaultLanguage is used when no language preference is supplied.
const DefaultLanguage = "English"

var defaultScenarios = []string{
	ScenarioChatEscalation,
	"academic_doubt",
	"assignment_help",
	"course_content",
	"technical_issue",
	"deadline_extension",
	"exam_anxiety",
	"career_guidance",
	"study_motivation",
	"wellbeing_concern",
	"crisis",
	"other",
}

var defaultCrisisScenarios = []string{"crisis", "wellbeing_concern", "self_harm_risk"}

var defaultChannels = []string{"chat", "console", "web", "whatsapp", "email", "push"}

// Assessment is the outcome of triaging a new ticket.
type Assessment struct {
	Priority domain.TicketPriority
	DueAt    time.Time
	Language string
}

// Policy decides priority and deadline. It holds no mutable state.
type Policy struct {
	sla       sla.Policy
	scenarios map[string]struct{}
	crisis    map[string]struct{}
	channels  map[string]struct{}
}

// Option customizes a Policy.
type Option func(*Policy)

// WithCrisisScenarios replaces the crisis-adjacent scenario set. Crisis
// scenarios are also added to the recognized set.
func WithCrisisScenarios(scenarios ...string) Option {
	return func(p *Policy) {
		if len(scenarios) == 0 {
			return
		}
		p.crisis = toSet(scenarios)
		for s := range p.crisis {
			p.scenarios[s] = struct{}{}
		}
	}
}

// WithScenarios adds recognized scenarios.
func WithScenarios(scenarios ...string) Option {
	return func(p *Policy) {
		for _, s := range scenarios {
			if s = normalize(s); s != "" {
				p.scenarios[s] = struct{}{}
			}
		}
	}
}

// NewPolicy builds a Policy over the given SLA windows.
func NewPolicy(slaPolicy sla.Policy, opts ...Option) *Policy {
	p := &Policy{
		sla:       slaPolicy,
		scenarios: toSet(defaultScenarios),
		crisis:    toSet(defaultCrisisScenarios),
		channels:  toSet(defaultChannels),
	}
	for s := range p.crisis {
		p.scenarios[s] = struct{}{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SLA exposes the deadline policy backing this triage policy.
func (p *Policy) SLA() sla.Policy {
	return p.sla
}

// PriorityFor maps a risk score and scenario to a priority.
func (p *Policy) PriorityFor(riskScore int, scenario string) domain.TicketPriority {
	if _, crisis := p.crisis[normalize(scenario)]; crisis || riskScore >= UrgentRiskThreshold {
		return domain.TicketPriorityUrgent
	}
	switch {
	case riskScore >= HighRiskThreshold:
		return domain.TicketPriorityHigh
	case riskScore >= MediumRiskThreshold:
		return domain.TicketPriorityMedium
	default:
		return domain.TicketPriorityLow
	}
}

// Assess validates the triage inputs and returns priority, deadline and the
// effective language.
func (p *Policy) Assess(riskScore int, scenario, channel, language string, createdAt time.Time) (Assessment, error) {
	if riskScore < 0 || riskScore > 100 {
		return Assessment{}, apperrors.NewValidationError("risk score must be between 0 and 100", map[string]any{"risk_score": riskScore})
	}
	if _, ok := p.scenarios[normalize(scenario)]; !ok {
		return Assessment{}, apperrors.NewValidationError("unrecognized scenario", map[string]any{"scenario": scenario})
	}
	if _, ok := p.channels[normalize(channel)]; !ok {
		return Assessment{}, apperrors.NewValidationError("unrecognized channel", map[string]any{"channel": channel})
	}
	priority := p.PriorityFor(riskScore, scenario)
	due, err := p.sla.DueAt(createdAt, priority)
	if err != nil {
		return Assessment{}, apperrors.NewInternalError(err)
	}
	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = DefaultLanguage
	}
	return Assessment{Priority: priority, DueAt: due, Language: lang}, nil
}

// ValidateOrigin checks the identity and course context required to open a ticket.
func ValidateOrigin(origin domain.Origin) error {
	missing := []string{}
	if strings.TrimSpace(origin.UserHash) == "" {
		missing = append(missing, "user_hash")
	}
	if strings.TrimSpace(origin.CourseID) == "" {
		missing = append(missing, "course_id")
	}
	if len(missing) > 0 {
		return apperrors.NewInvalidOrigin("ticket origin incomplete", map[string]any{"missing": missing})
	}
	return nil
}

// Normalize lowercases and trims scenario and channel tags.
func Normalize(tag string) string {
	return normalize(tag)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = normalize(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
