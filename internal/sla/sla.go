// Package sla derives ticket SLA status from deadlines. Nothing here touches
// storage; the status is recomputed on every read.
package sla

import (
	"fmt"
	"time"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
)

// DefaultAtRiskFraction is the share of the total SLA window that, once
// remaining, flags a ticket as at risk.
const DefaultAtRiskFraction = 0.25

// Policy maps priorities to resolution windows.
type Policy struct {
	Durations      map[domain.TicketPriority]time.Duration
	AtRiskFraction float64
}

// DefaultPolicy returns the stock 2h/8h/24h/72h windows.
func DefaultPolicy() Policy {
	return Policy{
		Durations: map[domain.TicketPriority]time.Duration{
			domain.TicketPriorityUrgent: 2 * time.Hour,
			domain.TicketPriorityHigh:   8 * time.Hour,
			domain.TicketPriorityMedium: 24 * time.Hour,
			domain.TicketPriorityLow:    72 * time.Hour,
		},
		AtRiskFraction: DefaultAtRiskFraction,
	}
}

// Validate checks that every priority has a positive window and the
// at-risk fraction lies in (0,1).
func (p Policy) Validate() error {
	for _, pr := range []domain.TicketPriority{
		domain.TicketPriorityUrgent, domain.TicketPriorityHigh, domain.TicketPriorityMedium, domain.TicketPriorityLow,
	} {
		if p.Durations[pr] <= 0 {
			return fmt.Errorf("sla window for %s must be positive", pr)
		}
	}
	if p.AtRiskFraction <= 0 || p.AtRiskFraction >= 1 {
		return fmt.Errorf("at-risk fraction %.2f outside (0,1)", p.AtRiskFraction)
	}
	return nil
}

// DueAt returns the SLA deadline for a ticket created at createdAt.
func (p Policy) DueAt(createdAt time.Time, priority domain.TicketPriority) (time.Time, error) {
	d, ok := p.Durations[priority]
	if !ok || d <= 0 {
		return time.Time{}, fmt.Errorf("no sla window for priority %q", priority)
	}
	return createdAt.Add(d), nil
}

// Status derives the SLA bucket.
//
// Settled tickets are always on time. Otherwise the ticket is overdue once
// now is past due, and at risk while the remaining time is within
// atRiskFraction of the full window (due - createdAt).
func Status(createdAt, due, now time.Time, status domain.TicketStatus, atRiskFraction float64) domain.SLAStatus {
	if status.Settled() {
		return domain.SLAOnTime
	}
	if now.After(due) {
		return domain.SLAOverdue
	}
	total := due.Sub(createdAt)
	if total < 0 {
		total = 0
	}
	lead := time.Duration(float64(total) * atRiskFraction)
	if due.Sub(now) <= lead {
		return domain.SLAAtRisk
	}
	return domain.SLAOnTime
}

// Evaluate is Status applied to a ticket.
func (p Policy) Evaluate(t *domain.Ticket, now time.Time) domain.SLAStatus {
	return Status(t.CreatedAt, t.SLADueAt, now, t.Status, p.AtRiskFraction)
}
