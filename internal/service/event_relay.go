package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/events"
)

// EventForwarder ships events outside the process.
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventRelay logs every domain event and forwards it so consoles can refresh.
type EventRelay struct {
	dispatcher events.Dispatcher
	forwarder  EventForwarder
	logger     *zap.Logger
}

// NewEventRelay creates the relay. A nil forwarder only logs.
func NewEventRelay(dispatcher events.Dispatcher, forwarder EventForwarder, logger *zap.Logger) *EventRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRelay{
		dispatcher: dispatcher,
		forwarder:  forwarder,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (r *EventRelay) RegisterHandlers() {
	if r.dispatcher == nil {
		return
	}
	r.dispatcher.SubscribeAll(r.handle)
}

func (r *EventRelay) handle(ctx context.Context, event events.Event) error {
	r.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor", event.Actor),
		zap.Any("payload", event.Payload))
	if r.forwarder == nil {
		return nil
	}
	return r.forwarder.Publish(ctx, event)
}
