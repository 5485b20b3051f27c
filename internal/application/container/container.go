package container

import (
	"context"
	"fmt"

	"pricewatch/internal/application/port"
	"pricewatch/internal/application/service"
	"pricewatch/internal/application/usecase/monitor"
	"pricewatch/internal/domain"
)

type Deps struct {
	Repo      port.Repository
	Feed      port.Feed
	Snapshots port.SnapshotFetcher
	Notifier  port.Notifier
	Recorder  port.PriceRecorder
	History   port.PriceHistory
	Sink      port.Sink

	// Seed fills an empty repository on first start.
	Seed       []domain.Instrument
	SeedActive domain.Instrument
	Options    monitor.Options
}

// Container wires the application layer on top of the infrastructure ports.
type Container struct {
	repo       port.Repository
	engine     *service.AlertEngine
	session    *monitor.Session
	supervisor *monitor.Supervisor
	monitor    *monitor.Service
}

// New restores persisted state and builds the engine, supervisor and event pump.
func New(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("container: repository is required")
	}

	engine := service.NewAlertEngine(deps.Repo, nil)
	if err := engine.Load(ctx); err != nil {
		return nil, err
	}
	session, err := monitor.LoadSession(ctx, deps.Repo, deps.Seed, deps.SeedActive)
	if err != nil {
		return nil, err
	}

	sup := monitor.NewSupervisor(monitor.SupervisorDeps{
		Feed:      deps.Feed,
		Snapshots: deps.Snapshots,
		History:   deps.History,
		Engine:    engine,
		Session:   session,
		Options:   deps.Options,
	})

	return &Container{
		repo:       deps.Repo,
		engine:     engine,
		session:    session,
		supervisor: sup,
		monitor: monitor.NewService(monitor.ServiceDeps{
			Source:   sup,
			Sink:     deps.Sink,
			Notifier: deps.Notifier,
			Recorder: deps.Recorder,
		}),
	}, nil
}

func (c *Container) Repository() port.Repository { return c.repo }

func (c *Container) AlertEngine() *service.AlertEngine { return c.engine }

func (c *Container) Session() *monitor.Session { return c.session }

func (c *Container) Supervisor() *monitor.Supervisor { return c.supervisor }

func (c *Container) Monitor() *monitor.Service { return c.monitor }

// Close stops the supervisor. The repository belongs to the caller.
func (c *Container) Close() error {
	c.supervisor.Shutdown()
	return nil
}
