package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/icodeforyou/meteoam-go/types"
)

// SaveSnapshot stores snap as the last known good snapshot, replacing the
// previous one.
func (d *Database) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = d.write.ExecContext(ctx, `
		INSERT INTO snapshot (id, latitude, longitude, fetched_at, data)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			fetched_at = excluded.fetched_at,
			data = excluded.data`,
		snap.Coordinates.Latitude,
		snap.Coordinates.Longitude,
		snap.FetchedAt.UTC().Format(time.RFC3339),
		string(data))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	d.logger.Debug("snapshot saved",
		"coordinates", snap.Coordinates.String(),
		"hourly", len(snap.Hourly),
		"daily", len(snap.Daily))
	return nil
}

// GetSnapshot returns ErrNotFound until a snapshot has been saved.
func (d *Database) GetSnapshot(ctx context.Context) (types.Snapshot, error) {
	var data string
	err := d.read.QueryRowContext(ctx, `SELECT data FROM snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("fetching snapshot: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return types.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}
