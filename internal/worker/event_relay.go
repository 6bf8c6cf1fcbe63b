package worker

import (
	"github.com/spec-kit/mentor-ticket-service/internal/service"
)

// StartEventRelay registers the relay on the dispatcher.
func StartEventRelay(relay *service.EventRelay) {
	if relay == nil {
		return
	}
	relay.RegisterHandlers()
}
