package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icodeforyou/meteoam-go/config"
	"github.com/icodeforyou/meteoam-go/database"
	"github.com/icodeforyou/meteoam-go/location"
	"github.com/icodeforyou/meteoam-go/types"
)

type fakeStore struct {
	calls     []string
	snapshot  *types.Snapshot
	refreshes []database.RefreshRow
	failOn    string
}

func (s *fakeStore) record(name string) error {
	s.calls = append(s.calls, name)
	if s.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (s *fakeStore) Backup(ctx context.Context) error { return s.record("backup") }

func (s *fakeStore) PurgeBackups(ctx context.Context, retentionDays int) error {
	return s.record("purge_backups")
}

func (s *fakeStore) PurgeLog(ctx context.Context, maxLogEntries int) error {
	return s.record("purge_log")
}

func (s *fakeStore) PurgeRefreshes(ctx context.Context, retentionDays int) error {
	return s.record("purge_refreshes")
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	s.snapshot = &snap
	return s.record("save_snapshot")
}

func (s *fakeStore) GetSnapshot(ctx context.Context) (types.Snapshot, error) {
	if s.snapshot == nil {
		return types.Snapshot{}, database.ErrNotFound
	}
	return *s.snapshot, nil
}

func (s *fakeStore) SaveRefresh(ctx context.Context, r database.RefreshRow) error {
	s.refreshes = append(s.refreshes, r)
	return s.record("save_refresh")
}

func TestMaintenanceTask(t *testing.T) {
	store := &fakeStore{failOn: "backup"}
	NewMaintenanceTask(discardLogger(), store, &config.AppConfig{})()

	expected := []string{"backup", "purge_backups", "purge_log", "purge_refreshes"}
	if len(store.calls) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, store.calls)
	}
	for i, name := range expected {
		if store.calls[i] != name {
			t.Errorf("expected call %d to be %s, got %s", i, name, store.calls[i])
		}
	}
}

func TestPersistUpdate(t *testing.T) {
	store := &fakeStore{}
	persist := NewPersistUpdate(discardLogger(), store)
	coords := location.Coordinates{Latitude: "41.9", Longitude: "12.5"}

	persist(Update{ID: "1", Coordinates: coords, Outcome: Failed, Err: errors.New("boom"), At: fixedClock()})
	if store.snapshot != nil {
		t.Errorf("a failed refresh should not be saved as snapshot")
	}

	snap := types.Snapshot{Coordinates: coords, FetchedAt: fixedClock()}
	persist(Update{ID: "2", Coordinates: coords, Outcome: Succeeded, Snapshot: snap, At: fixedClock()})
	if store.snapshot == nil || !store.snapshot.FetchedAt.Equal(fixedClock()) {
		t.Errorf("expected the snapshot to be saved")
	}

	if len(store.refreshes) != 2 {
		t.Fatalf("expected 2 refresh rows, got %d", len(store.refreshes))
	}
	if r := store.refreshes[0]; r.Outcome != "failed" || r.Error != "boom" || r.Latitude != "41.9" {
		t.Errorf("unexpected refresh row %+v", r)
	}
}

func TestRestoreSnapshot(t *testing.T) {
	store := &fakeStore{}
	c := newTestCoordinator(&fakeFetcher{}, nil, false)

	RestoreSnapshot(context.Background(), discardLogger(), store, c)
	if _, ok := c.Snapshot(); ok {
		t.Fatalf("nothing stored, nothing should be restored")
	}

	store.snapshot = &types.Snapshot{FetchedAt: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
	RestoreSnapshot(context.Background(), discardLogger(), store, c)
	if snap, ok := c.Snapshot(); !ok || snap.FetchedAt.Day() != 1 {
		t.Errorf("expected the stored snapshot to be restored")
	}
}

func TestRefreshTaskCoalesced(t *testing.T) {
	f := &fakeFetcher{
		payload: []byte(twoPoints),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTestCoordinator(f, nil, false)
	task := NewRefreshTask(discardLogger(), c)

	done := make(chan struct{})
	go func() {
		task()
		close(done)
	}()
	<-f.started

	task() // returns right away
	close(f.release)
	<-done

	if f.callCount() != 1 {
		t.Errorf("expected a single fetch, got %d", f.callCount())
	}
}
