package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/icodeforyou/meteoam-go/location"
	"github.com/icodeforyou/meteoam-go/meteoam"
	"github.com/icodeforyou/meteoam-go/types"
)

const twoPoints = `{
	"extrainfo": {"stats": [
		{"localDate": "2024-01-01", "maxCelsius": 14, "minCelsius": 6, "maxFahrenheit": 57.2, "minFahrenheit": 42.8, "icon": 2}
	]},
	"timeseries": ["2024-01-01T10:00:00", "2024-01-01T11:00:00"],
	"paramlist": ["2t"],
	"datasets": {"0": {"0": {"0": 10, "1": 12}}}
}`

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []location.Coordinates
	payload meteoam.Payload
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, coords location.Coordinates) (meteoam.Payload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, coords)
	payload, err := f.payload, f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return payload, err
}

func (f *fakeFetcher) set(payload string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = meteoam.Payload(payload)
	f.err = err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) lastCall() location.Coordinates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2024, time.January, 1, 10, 30, 0, 0, time.UTC)
}

func newTestCoordinator(f Fetcher, home *location.Home, trackHome bool) *Coordinator {
	return NewCoordinator(discardLogger(), f, home, Settings{
		TrackHome:   trackHome,
		Latitude:    41.9,
		Longitude:   12.5,
		MinInterval: 55 * time.Minute,
		MaxInterval: 65 * time.Minute,
	}, WithClock(fixedClock))
}

func TestRefresh(t *testing.T) {
	f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
	c := newTestCoordinator(f, nil, false)

	var updates []Update
	c.Subscribe(func(u Update) { updates = append(updates, u) })

	if _, ok := c.Snapshot(); ok {
		t.Fatalf("expected no snapshot before the first refresh")
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}

	snap, ok := c.Snapshot()
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if snap.Coordinates != (location.Coordinates{Latitude: "41.9", Longitude: "12.5"}) {
		t.Errorf("unexpected coordinates %+v", snap.Coordinates)
	}
	if snap.Current.Values["2t"] != 10 || len(snap.Hourly) != 1 || len(snap.Daily) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if c.LastError() != nil {
		t.Errorf("expected no error, got %v", c.LastError())
	}

	if len(updates) != 1 || updates[0].Outcome != Succeeded || updates[0].ID == "" {
		t.Fatalf("expected one succeeded update, got %+v", updates)
	}

	status := c.Status()
	if status.State != "idle" || status.LastOutcome != Succeeded || status.LastError != "" {
		t.Errorf("unexpected status %+v", status)
	}
	if !status.LastSuccess.Equal(fixedClock()) {
		t.Errorf("unexpected last success %v", status.LastSuccess)
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
		check   func(error) bool
	}{
		{
			name:  "service unavailable",
			err:   fmt.Errorf("%w: unexpected status 503", meteoam.ErrCannotConnect),
			check: func(err error) bool { return errors.Is(err, meteoam.ErrCannotConnect) },
		},
		{
			name:  "timeout",
			err:   fmt.Errorf("%w: context deadline exceeded", meteoam.ErrTimeout),
			check: func(err error) bool { return errors.Is(err, meteoam.ErrTimeout) },
		},
		{
			name:    "malformed payload",
			payload: `{"timeseries": []}`,
			check: func(err error) bool {
				var perr *meteoam.ParseError
				return errors.As(err, &perr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
			c := newTestCoordinator(f, nil, false)
			if err := c.Refresh(context.Background()); err != nil {
				t.Fatalf("Refresh() unexpected error: %v", err)
			}
			before, _ := c.Snapshot()

			var got Update
			c.Subscribe(func(u Update) { got = u })

			f.set(tt.payload, tt.err)
			err := c.Refresh(context.Background())
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}

			after, ok := c.Snapshot()
			if !ok || after.Hourly[0].LocalDateTime != before.Hourly[0].LocalDateTime || !after.FetchedAt.Equal(before.FetchedAt) {
				t.Errorf("expected the previous snapshot to be kept")
			}
			if !tt.check(c.LastError()) {
				t.Errorf("unexpected last error %v", c.LastError())
			}
			if got.Outcome != Failed || got.Err == nil || got.Snapshot.IsZero() {
				t.Errorf("unexpected update %+v", got)
			}
			if c.Status().LastOutcome != Failed {
				t.Errorf("expected failed outcome")
			}

			// A later success clears the error.
			f.set(twoPoints, nil)
			if err := c.Refresh(context.Background()); err != nil {
				t.Fatalf("Refresh() unexpected error: %v", err)
			}
			if c.LastError() != nil {
				t.Errorf("expected error to be cleared")
			}
		})
	}
}

func TestRefreshCoalesces(t *testing.T) {
	f := &fakeFetcher{
		payload: meteoam.Payload(twoPoints),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	home := location.NewHome("Roma", 41.9, 12.5)
	c := newTestCoordinator(f, home, true)

	done := make(chan error)
	go func() {
		done <- c.Refresh(context.Background())
	}()
	<-f.started

	if c.State() != Fetching {
		t.Errorf("expected state fetching")
	}

	// Timer tick while fetching.
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("expected ErrRefreshInProgress, got %v", err)
	}

	// Location change while fetching.
	home.Set("", 45.46, 9.19)
	if err := c.NotifyLocationMaybeChanged(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("expected ErrRefreshInProgress, got %v", err)
	}

	close(f.release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}

	// The coalesced location change is fetched right after, the tick is not.
	if n := f.callCount(); n != 2 {
		t.Errorf("expected two fetches, got %d", n)
	}
	if got := f.lastCall(); got.String() != "45.46,9.19" {
		t.Errorf("expected a follow-up fetch for the new home, got %s", got)
	}
	if snap, _ := c.Snapshot(); snap.Coordinates.String() != "45.46,9.19" {
		t.Errorf("expected the snapshot of the new home, got %s", snap.Coordinates)
	}
	if c.State() != Idle {
		t.Errorf("expected state idle")
	}
}

func TestSubscribersSeeUpdatesInOrder(t *testing.T) {
	f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
	home := location.NewHome("Roma", 41.9, 12.5)
	c := newTestCoordinator(f, home, true)

	var mu sync.Mutex
	var seen []string
	entered := make(chan struct{})
	release := make(chan struct{})
	c.Subscribe(func(u Update) {
		mu.Lock()
		seen = append(seen, u.Snapshot.Coordinates.String())
		first := len(seen) == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
	})

	first := make(chan error)
	go func() {
		first <- c.Refresh(context.Background())
	}()
	<-entered

	// A second refresh for a new home finishes its fetch while the first
	// update is still being delivered.
	home.Set("Milano", 45.46, 9.19)
	second := make(chan error)
	go func() {
		second <- c.NotifyLocationMaybeChanged(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for _, ch := range []chan error{first, second} {
		if err := <-ch; err != nil && !errors.Is(err, ErrRefreshInProgress) {
			t.Fatalf("unexpected error %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != "41.9,12.5" {
		t.Fatalf("unexpected update order %v", seen)
	}
	snap, _ := c.Snapshot()
	if last := seen[len(seen)-1]; last != "45.46,9.19" || snap.Coordinates.String() != last {
		t.Errorf("expected the last update to carry the current snapshot 45.46,9.19, got %v (in memory %s)", seen, snap.Coordinates)
	}
}

func TestNotifyLocationMaybeChanged(t *testing.T) {
	f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
	home := location.NewHome("Roma", 41.9, 12.5)
	c := newTestCoordinator(f, home, true)

	if err := c.NotifyLocationMaybeChanged(context.Background()); err != nil {
		t.Fatalf("NotifyLocationMaybeChanged() unexpected error: %v", err)
	}
	if f.callCount() != 1 {
		t.Fatalf("expected the first notification to refresh")
	}

	if err := c.NotifyLocationMaybeChanged(context.Background()); err != nil {
		t.Fatalf("NotifyLocationMaybeChanged() unexpected error: %v", err)
	}
	if f.callCount() != 1 {
		t.Errorf("expected no refresh for unchanged coordinates, got %d fetches", f.callCount())
	}

	home.Set("Milano", 45.46, 9.19)
	if err := c.NotifyLocationMaybeChanged(context.Background()); err != nil {
		t.Fatalf("NotifyLocationMaybeChanged() unexpected error: %v", err)
	}
	if f.callCount() != 2 {
		t.Fatalf("expected a refresh after the home location moved")
	}
	if got := f.lastCall(); got != (location.Coordinates{Latitude: "45.46", Longitude: "9.19"}) {
		t.Errorf("unexpected coordinates %+v", got)
	}
}

func TestNotifyIgnoresHomeWhenNotTracking(t *testing.T) {
	f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
	home := location.NewHome("Roma", 45.46, 9.19)
	c := newTestCoordinator(f, home, false)

	c.NotifyLocationMaybeChanged(context.Background())
	home.Set("", 1, 1)
	c.NotifyLocationMaybeChanged(context.Background())

	if f.callCount() != 1 {
		t.Errorf("expected a single fetch, got %d", f.callCount())
	}
	if got := f.lastCall(); got.String() != "41.9,12.5" {
		t.Errorf("expected configured coordinates, got %s", got)
	}
}

func TestRestore(t *testing.T) {
	f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
	c := newTestCoordinator(f, nil, false)

	c.Restore(types.Snapshot{})
	if _, ok := c.Snapshot(); ok {
		t.Fatalf("an empty snapshot should not be restored")
	}

	stored := types.Snapshot{FetchedAt: time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)}
	c.Restore(stored)
	if snap, ok := c.Snapshot(); !ok || !snap.FetchedAt.Equal(stored.FetchedAt) {
		t.Fatalf("expected the stored snapshot, got %+v", snap)
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}
	c.Restore(stored)
	if snap, _ := c.Snapshot(); !snap.FetchedAt.Equal(fixedClock()) {
		t.Errorf("Restore() should not replace a fresh snapshot")
	}
}

func TestJitter(t *testing.T) {
	min, max := 55*time.Minute, 65*time.Minute
	for range 100 {
		d := jitter(min, max)
		if d < min || d > max {
			t.Fatalf("jitter() returned %v, outside [%v, %v]", d, min, max)
		}
		if d%time.Second != 0 {
			t.Fatalf("jitter() returned %v, expected whole seconds", d)
		}
	}
	if d := jitter(time.Hour, time.Hour); d != time.Hour {
		t.Errorf("expected %v, got %v", time.Hour, d)
	}
	if d := jitter(time.Hour, time.Minute); d != time.Hour {
		t.Errorf("expected min when max < min, got %v", d)
	}
}

func TestStartStop(t *testing.T) {
	f := &fakeFetcher{payload: meteoam.Payload(twoPoints)}
	home := location.NewHome("Roma", 41.9, 12.5)
	c := newTestCoordinator(f, home, true)

	updates := make(chan Update, 4)
	unsubscribe := c.Subscribe(func(u Update) { updates <- u })
	defer unsubscribe()

	c.Start(context.Background())
	if f.callCount() != 1 {
		t.Fatalf("expected Start() to refresh right away, got %d fetches", f.callCount())
	}
	<-updates

	if iv := c.Interval(); iv < 55*time.Minute || iv > 65*time.Minute {
		t.Errorf("unexpected interval %v", iv)
	}

	home.Set("Milano", 45.46, 9.19)
	select {
	case u := <-updates:
		if u.Coordinates.String() != "45.46,9.19" {
			t.Errorf("unexpected coordinates %s", u.Coordinates)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a refresh after the home location changed")
	}

	c.Stop()

	home.Set("Torino", 45.07, 7.69)
	select {
	case u := <-updates:
		t.Errorf("unexpected refresh after Stop(): %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}
