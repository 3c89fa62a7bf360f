package database

import (
	"context"
	"fmt"
	"time"
)

type RefreshRow struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Outcome   string    `json:"outcome"`
	Latitude  string    `json:"latitude"`
	Longitude string    `json:"longitude"`
	Error     string    `json:"error,omitempty"`
}

func (d *Database) SaveRefresh(ctx context.Context, r RefreshRow) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO refresh (id, at, outcome, latitude, longitude, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.At.UTC().Format(time.RFC3339),
		r.Outcome,
		r.Latitude,
		r.Longitude,
		r.Error)
	if err != nil {
		return fmt.Errorf("saving refresh: %w", err)
	}
	return nil
}

// GetRefreshes returns the most recent refresh attempts, newest first.
func (d *Database) GetRefreshes(ctx context.Context, limit int) ([]RefreshRow, error) {
	if limit < 1 {
		limit = 24
	}

	rows, err := d.read.QueryContext(ctx, `
		SELECT id, at, outcome, latitude, longitude, error
		FROM refresh
		ORDER BY at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching refreshes: %w", err)
	}
	defer rows.Close()

	var at string
	result := make([]RefreshRow, 0)
	for rows.Next() {
		var r RefreshRow
		if err := rows.Scan(&r.ID, &at, &r.Outcome, &r.Latitude, &r.Longitude, &r.Error); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading refresh rows: %w", err)
	}

	return result, nil
}

func (d *Database) PurgeRefreshes(ctx context.Context, retentionDays int) error {
	d.logger.Debug("purging refresh history")
	before := time.Now().Add(-24 * time.Hour * time.Duration(retentionDays))
	res, err := d.write.ExecContext(ctx, `DELETE FROM refresh WHERE at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("purging refresh: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil {
		d.logger.Debug(fmt.Sprintf("purged %d rows from refresh", rows))
	}
	return nil
}
