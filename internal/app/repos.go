package app

import (
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/persistence"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
)

// Repos groups the storage ports.
type Repos struct {
	Tickets  repository.TicketRepository
	Profiles repository.StudentProfileRepository
}

func wireRepos(cfg *config.Config, pg *persistence.Postgres, rd *persistence.Redis, log *zap.Logger) Repos {
	var repos Repos
	if pool := pg.PoolHandle(); pool != nil {
		log.Info("using postgres ticket storage")
		repos.Tickets = repository.NewTicketRepository(pool)
		repos.Profiles = repository.NewStudentProfileRepository(pool)
	} else {
		log.Info("using in-memory ticket storage")
		repos.Tickets = repository.NewMemoryTicketRepository()
		repos.Profiles = repository.NewMemoryStudentProfileRepository()
	}
	repos.Tickets = repository.WrapTicketRepository(repos.Tickets)
	if rd != nil {
		repos.Profiles = repository.NewCachedStudentProfileRepository(repos.Profiles, rd.Client, cfg.Redis.ProfileCacheTTL, log)
	}
	return repos
}
