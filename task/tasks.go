package task

import (
	"context"
	"log/slog"

	"github.com/icodeforyou/meteoam-go/config"
	"github.com/icodeforyou/meteoam-go/location"
	"github.com/robfig/cron/v3"
)

type Tasks struct {
	logger          *slog.Logger
	store           Store
	cron            *cron.Cron
	cnfg            *config.AppConfig
	Coordinator     *Coordinator
	RefreshTask     func()
	MaintenanceTask func()
}

func NewTasks(store Store, fetcher Fetcher, home *location.Home, cnfg *config.AppConfig) *Tasks {
	logger := slog.Default().With("module", "tasks")
	c := cron.New()

	coordinator := NewCoordinator(
		logger.With(slog.String("task", "refresh")),
		fetcher,
		home,
		Settings{
			TrackHome:   cnfg.Weather.TrackHome,
			Latitude:    cnfg.Weather.Latitude,
			Longitude:   cnfg.Weather.Longitude,
			MinInterval: cnfg.Refresh.MinInterval,
			MaxInterval: cnfg.Refresh.MaxInterval,
		},
		WithCron(c))
	coordinator.Subscribe(NewPersistUpdate(logger.With(slog.String("task", "persist")), store))

	return &Tasks{
		logger:          logger,
		store:           store,
		cron:            c,
		cnfg:            cnfg,
		Coordinator:     coordinator,
		RefreshTask:     NewRefreshTask(logger.With(slog.String("task", "manual_refresh")), coordinator),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), store, cnfg),
	}
}

// Run restores the last known snapshot, schedules all jobs and runs the
// first refresh before returning.
func (t *Tasks) Run(ctx context.Context) {
	_, err := t.cron.AddFunc(t.cnfg.Maintenance.RunAt, t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	RestoreSnapshot(ctx, t.logger, t.store, t.Coordinator)
	t.cron.Start()
	t.Coordinator.Start(ctx)
}

func (t *Tasks) Stop() context.Context {
	t.Coordinator.Stop()
	return t.cron.Stop()
}
