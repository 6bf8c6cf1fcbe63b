package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusEscalated  TicketStatus = "escalated"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed, TicketStatusEscalated:
		return true
	}
	return false
}

// Settled reports whether the ticket no longer counts against its SLA.
func (s TicketStatus) Settled() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Rank orders priorities; higher is more urgent. Unknown priorities rank 0.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityUrgent:
		return 4
	case TicketPriorityHigh:
		return 3
	case TicketPriorityMedium:
		return 2
	case TicketPriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p.Rank() > 0
}

// SLAStatus is derived on read and never stored.
type SLAStatus string

const (
	SLAOnTime  SLAStatus = "on_time"
	SLAAtRisk  SLAStatus = "at_risk"
	SLAOverdue SLAStatus = "overdue"
)

// Valid reports whether s is a known SLA bucket.
func (s SLAStatus) Valid() bool {
	return s == SLAOnTime || s == SLAAtRisk || s == SLAOverdue
}

// Ticket is the aggregate for mentor support requests.
//
// ResolvedAt and ResolutionNotes are set only while Status is resolved or
// closed. SLADueAt and RiskScore are fixed at creation.
type Ticket struct {
	ID              string
	Key             string
	UserHash        string
	CourseID        string
	ModuleID        string
	Title           string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Language        string
	Scenario        string
	Channel         string
	AssignedTo      *string
	CorrelationKey  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
	SLADueAt        time.Time
	ResolutionNotes *string
	CommentCount    int
	RiskScore       int
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.AssignedTo = cloneString(t.AssignedTo)
	c.CorrelationKey = cloneString(t.CorrelationKey)
	c.ResolutionNotes = cloneString(t.ResolutionNotes)
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

// Assignee returns the assigned mentor or the empty string.
func (t *Ticket) Assignee() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
