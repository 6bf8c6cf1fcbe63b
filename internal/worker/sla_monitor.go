package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	"github.com/spec-kit/mentor-ticket-service/internal/sla"
)

var activeStatuses = []domain.TicketStatus{
	domain.TicketStatusOpen,
	domain.TicketStatusInProgress,
	domain.TicketStatusEscalated,
}

// SLAMonitor periodically derives SLA buckets and announces each ticket's
// move into at_risk or overdue once. Nothing is persisted; a restart may
// announce a bucket again.
type SLAMonitor struct {
	tickets    repository.TicketRepository
	policy     sla.Policy
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	interval   time.Duration

	mu   sync.Mutex
	seen map[string]domain.SLAStatus
}

// NewSLAMonitor constructs the monitor.
func NewSLAMonitor(tickets repository.TicketRepository, policy sla.Policy, clk clock.Clock, dispatcher events.Dispatcher, logger *zap.Logger, interval time.Duration) *SLAMonitor {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SLAMonitor{
		tickets:    tickets,
		policy:     policy,
		clock:      clk,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		seen:       make(map[string]domain.SLAStatus),
	}
}

// Run scans every interval until ctx is done.
func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("sla monitor started", zap.Duration("interval", m.interval))
	for {
		if _, err := m.Scan(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("sla scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			m.logger.Info("sla monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Scan evaluates active tickets once and returns the number of events emitted.
func (m *SLAMonitor) Scan(ctx context.Context) (int, error) {
	tickets, err := m.tickets.List(ctx, repository.TicketFilter{Statuses: activeStatuses})
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	live := make(map[string]struct{}, len(tickets))
	emitted := 0
	for i := range tickets {
		t := &tickets[i]
		live[t.ID] = struct{}{}
		status := m.policy.Evaluate(t, now)
		if status == domain.SLAOnTime || m.seen[t.ID] == status {
			continue
		}
		m.seen[t.ID] = status
		m.emit(ctx, t, status, now)
		emitted++
	}
	for id := range m.seen {
		if _, ok := live[id]; !ok {
			delete(m.seen, id)
		}
	}
	return emitted, nil
}

func (m *SLAMonitor) emit(ctx context.Context, t *domain.Ticket, status domain.SLAStatus, now time.Time) {
	eventType := events.EventTicketSLAAtRisk
	if status == domain.SLAOverdue {
		eventType = events.EventTicketSLAOverdue
	}
	m.logger.Info("ticket sla bucket changed",
		zap.String("ticket_id", t.ID),
		zap.String("sla_status", string(status)),
		zap.String("priority", string(t.Priority)))
	if m.dispatcher == nil {
		return
	}
	_ = m.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  t.ID,
		Actor:     domain.SystemAuthor,
		Timestamp: now,
		Payload: events.TicketSLAPayload{
			SLAStatus: status,
			Priority:  t.Priority,
			SLADueAt:  t.SLADueAt,
			Assignee:  t.AssignedTo,
		},
	})
}
