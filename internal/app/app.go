// Package app wires configuration into storage, services and the HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/observability"
	"github.com/spec-kit/mentor-ticket-service/internal/persistence"
	"github.com/spec-kit/mentor-ticket-service/internal/worker"
)

// App holds the wired service graph.
type App struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher
	Repos      Repos
	Services   Services
	Monitor    *worker.SLAMonitor
	HTTP       *fiber.App

	cancel context.CancelFunc
}

// New connects storage and wires every component. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log, Clock: clock.Real()}

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Dispatcher = events.NewInMemoryDispatcher(log)
	a.Repos = wireRepos(cfg, a.Postgres, a.Redis, log)

	services, err := wireServices(cfg, a.Repos, a.Redis, a.Dispatcher, a.Clock, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = services
	worker.StartEventRelay(services.Relay)

	a.Monitor = worker.NewSLAMonitor(a.Repos.Tickets, cfg.SLAPolicy(), a.Clock, a.Dispatcher, log, cfg.SLA.MonitorInterval)

	metrics, err := observability.NewMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}
	a.HTTP = wireHTTP(cfg, a, metrics, log)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	if a.Cfg.Storage.Driver == config.StoragePostgres {
		pg, err := persistence.NewPostgres(ctx, a.Cfg.Postgres, a.Log)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.Postgres = pg
		if a.Cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), a.Cfg.Postgres.MigrationsDir, a.Log); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
	}
	if a.Cfg.Redis.Enabled {
		a.Redis = persistence.NewRedis(ctx, a.Cfg.Redis, a.Log)
	}
	return nil
}

// Start launches background workers.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.Monitor.Run(ctx)
}

// Close stops workers and releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Redis.Close()
	a.Postgres.Close()
}
