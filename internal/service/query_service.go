package service

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	"github.com/spec-kit/mentor-ticket-service/internal/sla"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// TicketListFilter describes console listing filters; absent fields do not constrain.
type TicketListFilter struct {
	SLAStatus  *domain.SLAStatus
	Language   *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	// Assignee accepts repository.Unassigned.
	Assignee *string
	CourseID *string
	Limit    int
	Offset   int
}

// TicketView is a ticket snapshot with its SLA bucket derived at read time.
type TicketView struct {
	Ticket    domain.Ticket
	SLAStatus domain.SLAStatus
}

// QueryService serves filtered, triage-ordered ticket listings.
type QueryService struct {
	tickets repository.TicketRepository
	sla     sla.Policy
	clock   clock.Clock
}

// NewQueryService constructs the service.
func NewQueryService(tickets repository.TicketRepository, policy sla.Policy, clk clock.Clock) *QueryService {
	if clk == nil {
		clk = clock.Real()
	}
	return &QueryService{tickets: tickets, sla: policy, clock: clk}
}

// View derives the SLA bucket for t at the current time.
func (q *QueryService) View(t *domain.Ticket) TicketView {
	return TicketView{Ticket: *t, SLAStatus: q.sla.Evaluate(t, q.clock.Now())}
}

// List returns tickets ordered by priority desc, SLA due asc, id asc.
func (q *QueryService) List(ctx context.Context, filter TicketListFilter) ([]TicketView, error) {
	if err := validateListFilter(filter); err != nil {
		return nil, err
	}
	tickets, err := q.tickets.List(ctx, repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Language:   filter.Language,
		Assignee:   filter.Assignee,
		CourseID:   filter.CourseID,
	})
	if err != nil {
		return nil, err
	}

	now := q.clock.Now()
	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		status := q.sla.Evaluate(&tickets[i], now)
		if filter.SLAStatus != nil && status != *filter.SLAStatus {
			continue
		}
		views = append(views, TicketView{Ticket: tickets[i], SLAStatus: status})
	}
	SortForTriage(views)
	return paginate(views, filter.Limit, filter.Offset), nil
}

// SortForTriage orders views by priority desc, SLA due asc, then id asc.
func SortForTriage(views []TicketView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Ticket, views[j].Ticket
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.SLADueAt.Equal(b.SLADueAt) {
			return a.SLADueAt.Before(b.SLADueAt)
		}
		return a.ID < b.ID
	})
}

func paginate(views []TicketView, limit, offset int) []TicketView {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(views) {
		return []TicketView{}
	}
	end := offset + limit
	if end > len(views) {
		end = len(views)
	}
	return views[offset:end]
}

func validateListFilter(f TicketListFilter) error {
	if f.SLAStatus != nil && !f.SLAStatus.Valid() {
		return apperrors.NewValidationError("unknown sla_status", map[string]any{"sla_status": *f.SLAStatus})
	}
	for _, s := range f.Statuses {
		if !s.Valid() {
			return apperrors.NewValidationError("unknown status", map[string]any{"status": s})
		}
	}
	for _, p := range f.Priorities {
		if !p.Valid() {
			return apperrors.NewValidationError("unknown priority", map[string]any{"priority": p})
		}
	}
	if f.Assignee != nil && strings.TrimSpace(*f.Assignee) == "" {
		return apperrors.NewValidationError("assignee filter must not be blank", nil)
	}
	return nil
}
