package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/lock"
	"github.com/spec-kit/mentor-ticket-service/internal/persistence"
	"github.com/spec-kit/mentor-ticket-service/internal/service"
	"github.com/spec-kit/mentor-ticket-service/internal/triage"
)

// Services groups the application services.
type Services struct {
	Tickets   *service.TicketService
	Bridge    *service.EscalationBridge
	Query     *service.QueryService
	Profiles  *service.ProfileService
	Relay     *service.EventRelay
	Publisher *events.RedisPublisher
}

func wireServices(cfg *config.Config, repos Repos, rd *persistence.Redis, dispatcher events.Dispatcher, clk clock.Clock, log *zap.Logger) (Services, error) {
	var triageOpts []triage.Option
	if len(cfg.Triage.CrisisScenarios) > 0 {
		triageOpts = append(triageOpts, triage.WithCrisisScenarios(cfg.Triage.CrisisScenarios...))
	}
	slaPolicy := cfg.SLAPolicy()

	var s Services
	var locker lock.Locker = lock.NewKeyedMutex()
	var forwarder service.EventForwarder
	if rd != nil {
		// The TTL bounds how long a crashed holder blocks a conversation.
		locker = lock.NewRedisLocker(rd.Client, "mentor-ticket:lock:", 30*time.Second, log)
		pub, err := events.NewRedisPublisher(rd.Client, cfg.Redis.EventsChannel, log)
		if err != nil {
			return s, fmt.Errorf("init event publisher: %w", err)
		}
		s.Publisher = pub
		forwarder = pub
	}

	s.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo: repos.Tickets,
		Triage:     triage.NewPolicy(slaPolicy, triageOpts...),
		Clock:      clk,
		Dispatcher: dispatcher,
		Logger:     log,
	})
	s.Profiles = service.NewProfileService(repos.Profiles)
	s.Query = service.NewQueryService(repos.Tickets, slaPolicy, clk)
	s.Bridge = service.NewEscalationBridge(service.EscalationDependencies{
		Tickets:    s.Tickets,
		TicketRepo: repos.Tickets,
		Profiles:   s.Profiles,
		Locker:     locker,
		Clock:      clk,
		Dispatcher: dispatcher,
		Logger:     log,
		Config: service.EscalationConfig{
			DedupWindow:         cfg.Escalation.DedupWindow,
			MaxDescriptionChars: cfg.Escalation.MaxDescriptionChars,
		},
	})
	s.Relay = service.NewEventRelay(dispatcher, forwarder, log)
	return s, nil
}
