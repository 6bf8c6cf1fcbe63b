package sla

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStatusBuckets(t *testing.T) {
	created := base
	due := created.Add(8 * time.Hour) // at-risk lead is 2h

	cases := []struct {
		name   string
		now    time.Time
		status domain.TicketStatus
		want   domain.SLAStatus
	}{
		{"fresh", created.Add(time.Hour), domain.TicketStatusOpen, domain.SLAOnTime},
		{"inside lead window", due.Add(-time.Hour), domain.TicketStatusInProgress, domain.SLAAtRisk},
		{"exactly at lead boundary", due.Add(-2 * time.Hour), domain.TicketStatusOpen, domain.SLAAtRisk},
		{"exactly due", due, domain.TicketStatusEscalated, domain.SLAAtRisk},
		{"past due", due.Add(time.Second), domain.TicketStatusOpen, domain.SLAOverdue},
		{"resolved late", due.Add(10 * time.Hour), domain.TicketStatusResolved, domain.SLAOnTime},
		{"closed late", due.Add(10 * time.Hour), domain.TicketStatusClosed, domain.SLAOnTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(created, due, tc.now, tc.status, DefaultAtRiskFraction))
		})
	}
}

func TestDueInOneHourIsNotOverdue(t *testing.T) {
	now := base
	due := now.Add(time.Hour)

	got := Status(now.Add(-time.Hour), due, now, domain.TicketStatusOpen, DefaultAtRiskFraction)
	assert.Contains(t, []domain.SLAStatus{domain.SLAAtRisk, domain.SLAOnTime}, got)

	assert.Equal(t, domain.SLAOverdue, Status(now.Add(-time.Hour), due, due.Add(time.Minute), domain.TicketStatusOpen, DefaultAtRiskFraction))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	due, err := p.DueAt(base, domain.TicketPriorityUrgent)
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Hour), due)

	due, err = p.DueAt(base, domain.TicketPriorityLow)
	require.NoError(t, err)
	assert.Equal(t, base.Add(72*time.Hour), due)

	_, err = p.DueAt(base, domain.TicketPriority("bogus"))
	assert.Error(t, err)
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	p.AtRiskFraction = 1.5
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Durations[domain.TicketPriorityHigh] = 0
	assert.Error(t, p.Validate())
}

func TestStatusProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statuses := gen.OneConstOf(
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusEscalated,
		domain.TicketStatusResolved, domain.TicketStatusClosed,
	)

	properties.Property("settled tickets are always on time", prop.ForAll(
		func(windowMin, offsetMin int64, closed bool) bool {
			status := domain.TicketStatusResolved
			if closed {
				status = domain.TicketStatusClosed
			}
			due := base.Add(time.Duration(windowMin) * time.Minute)
			now := base.Add(time.Duration(offsetMin) * time.Minute)
			return Status(base, due, now, status, DefaultAtRiskFraction) == domain.SLAOnTime
		},
		gen.Int64Range(1, 10000),
		gen.Int64Range(-10000, 100000),
		gen.Bool(),
	))

	properties.Property("status is a pure function of its inputs", prop.ForAll(
		func(windowMin, offsetMin int64, status domain.TicketStatus) bool {
			due := base.Add(time.Duration(windowMin) * time.Minute)
			now := base.Add(time.Duration(offsetMin) * time.Minute)
			return Status(base, due, now, status, DefaultAtRiskFraction) == Status(base, due, now, status, DefaultAtRiskFraction)
		},
		gen.Int64Range(1, 10000),
		gen.Int64Range(-10000, 100000),
		statuses,
	))

	properties.Property("unsettled tickets past due are overdue", prop.ForAll(
		func(windowMin, lateMin int64) bool {
			due := base.Add(time.Duration(windowMin) * time.Minute)
			now := due.Add(time.Duration(lateMin) * time.Minute)
			return Status(base, due, now, domain.TicketStatusOpen, DefaultAtRiskFraction) == domain.SLAOverdue
		},
		gen.Int64Range(1, 10000),
		gen.Int64Range(1, 10000),
	))

	properties.TestingRun(t)
}
