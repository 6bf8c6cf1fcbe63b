package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestDispatcherRunsAllHandlersAndReportsFailures(t *testing.T) {
	d := NewInMemoryDispatcher(zaptest.NewLogger(t))
	var typed, wildcard int
	boom := errors.New("boom")

	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		typed++
		return boom
	})
	d.SubscribeAll(func(context.Context, Event) error {
		wildcard++
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, typed)
	assert.Equal(t, 1, wildcard)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketAssigned}))
	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, wildcard)
}
