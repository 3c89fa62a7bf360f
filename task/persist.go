package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/icodeforyou/meteoam-go/database"
	"github.com/icodeforyou/meteoam-go/types"
)

type Store interface {
	MaintenanceStore
	SaveSnapshot(ctx context.Context, snap types.Snapshot) error
	GetSnapshot(ctx context.Context) (types.Snapshot, error)
	SaveRefresh(ctx context.Context, r database.RefreshRow) error
}

// NewPersistUpdate returns a subscriber that records every refresh attempt
// and stores each new snapshot as the last known good one.
func NewPersistUpdate(logger *slog.Logger, store Store) func(Update) {
	return func(u Update) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		row := database.RefreshRow{
			ID:        u.ID,
			At:        u.At,
			Outcome:   string(u.Outcome),
			Latitude:  u.Coordinates.Latitude,
			Longitude: u.Coordinates.Longitude,
		}
		if u.Err != nil {
			row.Error = u.Err.Error()
		}

		if err := store.SaveRefresh(ctx, row); err != nil {
			logger.Error("saving refresh failed", slog.Any("error", err))
		}

		if u.Outcome != Succeeded {
			return
		}
		if err := store.SaveSnapshot(ctx, u.Snapshot); err != nil {
			logger.Error("saving snapshot failed", slog.Any("error", err))
		}
	}
}

// RestoreSnapshot loads the last known good snapshot into c, if there is one.
func RestoreSnapshot(ctx context.Context, logger *slog.Logger, store Store, c *Coordinator) {
	snap, err := store.GetSnapshot(ctx)
	if errors.Is(err, database.ErrNotFound) {
		logger.Debug("no stored snapshot to restore")
		return
	}
	if err != nil {
		logger.Error("restoring snapshot failed", slog.Any("error", err))
		return
	}
	c.Restore(snap)
	logger.Info("restored snapshot", slog.Time("fetchedAt", snap.FetchedAt), slog.String("coordinates", snap.Coordinates.String()))
}

func NewRefreshTask(logger *slog.Logger, c *Coordinator) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := c.Refresh(ctx)
		switch {
		case errors.Is(err, ErrRefreshInProgress):
			logger.Info("refresh already running, request coalesced")
		case err != nil:
			logger.Error("manual refresh failed", slog.Any("error", err))
		default:
			logger.Info("manual refresh done")
		}
	}
}
