package repository

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
)

const storageScopeName = "github.com/spec-kit/mentor-ticket-service/repository"

// InstrumentedTicketRepository wraps a TicketRepository with OTel spans and
// counts every call in ticket.storage.* metrics. Ticket identifiers go on
// spans only; metrics are keyed by operation.
type InstrumentedTicketRepository struct {
	inner  TicketRepository
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapTicketRepository decorates r with tracing and metrics taken from the
// global OTel providers. With no-op providers installed this costs little.
func WrapTicketRepository(r TicketRepository) TicketRepository {
	m := otel.Meter(storageScopeName)
	ops, _ := m.Int64Counter("ticket.storage.operations",
		metric.WithDescription("Total ticket storage operations executed"),
	)
	dur, _ := m.Float64Histogram("ticket.storage.operation.duration",
		metric.WithDescription("Ticket storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("ticket.storage.errors",
		metric.WithDescription("Total ticket storage operation errors"),
	)
	return &InstrumentedTicketRepository{
		inner:  r,
		tracer: otel.Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (s *InstrumentedTicketRepository) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation", name)))
	return ctx, span, time.Now()
}

func (s *InstrumentedTicketRepository) done(ctx context.Context, span trace.Span, start time.Time, err error, name string) {
	attrs := metric.WithAttributes(attribute.String("db.operation", name))
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, attrs)
	}
	span.End()
}

func (s *InstrumentedTicketRepository) Create(ctx context.Context, ticket *domain.Ticket, seed ...domain.Comment) error {
	ctx, span, t := s.op(ctx, "Create",
		attribute.String("ticket.id", strings.Clone(ticket.ID)),
		attribute.String("ticket.priority", string(ticket.Priority)),
	)
	err := s.inner.Create(ctx, ticket, seed...)
	s.done(ctx, span, t, err, "Create")
	return err
}

func (s *InstrumentedTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, span, t := s.op(ctx, "GetByID", attribute.String("ticket.id", strings.Clone(id)))
	v, err := s.inner.GetByID(ctx, id)
	s.done(ctx, span, t, err, "GetByID")
	return v, err
}

func (s *InstrumentedTicketRepository) GetByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	ctx, span, t := s.op(ctx, "GetByKey", attribute.String("ticket.key", strings.Clone(key)))
	v, err := s.inner.GetByKey(ctx, key)
	s.done(ctx, span, t, err, "GetByKey")
	return v, err
}

func (s *InstrumentedTicketRepository) FindByCorrelationKey(ctx context.Context, key string, since time.Time) (*domain.Ticket, error) {
	ctx, span, t := s.op(ctx, "FindByCorrelationKey")
	v, err := s.inner.FindByCorrelationKey(ctx, key, since)
	s.done(ctx, span, t, err, "FindByCorrelationKey")
	return v, err
}

func (s *InstrumentedTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	ctx, span, t := s.op(ctx, "List")
	v, err := s.inner.List(ctx, filter)
	span.SetAttributes(attribute.Int("ticket.count", len(v)))
	s.done(ctx, span, t, err, "List")
	return v, err
}

func (s *InstrumentedTicketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	ctx, span, t := s.op(ctx, "Mutate", attribute.String("ticket.id", strings.Clone(id)))
	v, err := s.inner.Mutate(ctx, id, fn)
	if v != nil {
		span.SetAttributes(attribute.String("ticket.status", string(v.Status)))
	}
	s.done(ctx, span, t, err, "Mutate")
	return v, err
}

func (s *InstrumentedTicketRepository) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	ctx, span, t := s.op(ctx, "ListComments", attribute.String("ticket.id", strings.Clone(ticketID)))
	v, err := s.inner.ListComments(ctx, ticketID)
	s.done(ctx, span, t, err, "ListComments")
	return v, err
}
