package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/icodeforyou/meteoam-go/location"
	"github.com/icodeforyou/meteoam-go/meteoam"
	"github.com/icodeforyou/meteoam-go/types"
	"github.com/robfig/cron/v3"
)

var ErrRefreshInProgress = errors.New("a refresh is already in progress")

type State int32

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
)

type Fetcher interface {
	Fetch(ctx context.Context, coords location.Coordinates) (meteoam.Payload, error)
}

type Settings struct {
	TrackHome   bool
	Latitude    float64
	Longitude   float64
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Update is handed to subscribers after every refresh attempt. Snapshot is
// the one visible after the attempt, so on failure it is the previous one.
type Update struct {
	ID          string
	Coordinates location.Coordinates
	Outcome     Outcome
	Snapshot    types.Snapshot
	Err         error
	At          time.Time
}

type Status struct {
	State       string               `json:"state"`
	Coordinates location.Coordinates `json:"coordinates"`
	TrackHome   bool                 `json:"trackHome"`
	Interval    string               `json:"interval"`
	LastOutcome Outcome              `json:"lastOutcome,omitempty"`
	LastAttempt time.Time            `json:"lastAttempt,omitzero"`
	LastSuccess time.Time            `json:"lastSuccess,omitzero"`
	LastError   string               `json:"lastError,omitempty"`
}

// Coordinator owns the coordinates and the latest snapshot and makes sure
// only one fetch runs at a time, whatever triggered it.
type Coordinator struct {
	logger   *slog.Logger
	fetcher  Fetcher
	home     *location.Home
	resolver *location.Resolver
	settings Settings
	interval time.Duration
	now      func() time.Time

	cron     *cron.Cron
	ownsCron bool
	entryID  cron.EntryID

	inFlight atomic.Bool
	notifyMu sync.Mutex

	mu          sync.RWMutex
	snapshot    types.Snapshot
	hasSnapshot bool
	lastErr     error
	lastOutcome Outcome
	lastAttempt time.Time
	lastSuccess time.Time

	subMu         sync.Mutex
	subscribers   map[int]func(Update)
	nextSubID     int
	unsubscribeFn func()
}

type CoordinatorOption func(*Coordinator)

// WithCron schedules the refresh job on a shared cron instead of a private one.
func WithCron(c *cron.Cron) CoordinatorOption {
	return func(co *Coordinator) {
		co.cron = c
		co.ownsCron = false
	}
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(co *Coordinator) {
		co.now = now
	}
}

func NewCoordinator(logger *slog.Logger, fetcher Fetcher, home *location.Home, settings Settings, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		logger:      logger,
		fetcher:     fetcher,
		home:        home,
		resolver:    location.NewResolver(),
		settings:    settings,
		interval:    jitter(settings.MinInterval, settings.MaxInterval),
		now:         time.Now,
		cron:        cron.New(),
		ownsCron:    true,
		subscribers: make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// jitter picks a whole number of seconds uniformly in [min, max].
func jitter(min, max time.Duration) time.Duration {
	min = min.Truncate(time.Second)
	if max <= min {
		return min
	}
	span := int64((max - min) / time.Second)
	return min + time.Duration(rand.Int64N(span+1))*time.Second
}

func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Start schedules the periodic refresh, runs a first refresh right away and
// starts following the home location if configured to. A failing first
// refresh is logged, the next tick retries.
func (c *Coordinator) Start(ctx context.Context) {
	c.resolve()

	c.entryID = c.cron.Schedule(cron.Every(c.interval), cron.FuncJob(c.refreshTask))
	if c.ownsCron {
		c.cron.Start()
	}

	if c.settings.TrackHome && c.home != nil {
		c.unsubscribeFn = c.home.Subscribe(c.homeChanged)
	}

	c.logger.Info("refresh scheduled", slog.Duration("interval", c.interval), slog.Bool("trackHome", c.settings.TrackHome))

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("first refresh failed", slog.Any("error", err))
	}
}

func (c *Coordinator) Stop() {
	if c.unsubscribeFn != nil {
		c.unsubscribeFn()
		c.unsubscribeFn = nil
	}
	if c.entryID != 0 {
		c.cron.Remove(c.entryID)
		c.entryID = 0
	}
	if c.ownsCron {
		<-c.cron.Stop().Done()
	}
}

func (c *Coordinator) refreshTask() {
	if err := c.Refresh(context.Background()); err != nil && !errors.Is(err, ErrRefreshInProgress) {
		c.logger.Error("scheduled refresh failed", slog.Any("error", err))
	}
}

func (c *Coordinator) homeChanged() {
	go func() {
		if err := c.NotifyLocationMaybeChanged(context.Background()); err != nil && !errors.Is(err, ErrRefreshInProgress) {
			c.logger.Error("refresh after home location change failed", slog.Any("error", err))
		}
	}()
}

func (c *Coordinator) resolve() (location.Coordinates, bool) {
	var homeLat, homeLon float64
	if c.home != nil {
		homeLat, homeLon = c.home.Get()
	}
	return c.resolver.Resolve(c.settings.TrackHome, c.settings.Latitude, c.settings.Longitude, homeLat, homeLon)
}

// NotifyLocationMaybeChanged refreshes only if the resolved coordinates
// differ from the ones in use. A change seen during a running refresh is
// picked up by that refresh once it is done.
func (c *Coordinator) NotifyLocationMaybeChanged(ctx context.Context) error {
	coords, changed := c.resolve()
	if !changed {
		c.logger.Debug("location unchanged, no refresh needed", slog.String("coordinates", coords.String()))
		return nil
	}
	c.logger.Info("location changed", slog.String("coordinates", coords.String()))
	return c.Refresh(ctx)
}

// Refresh fetches and normalizes a new snapshot. If another refresh is
// running it returns ErrRefreshInProgress without waiting. On failure the
// previous snapshot stays in place. When the location moved while fetching,
// it fetches again for the new one and returns that result.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("refresh already in progress, skipping")
		return ErrRefreshInProgress
	}

	update := c.refresh(ctx)

	// Subscribers see updates in the order the snapshots were taken.
	c.notifyMu.Lock()
	c.inFlight.Store(false)
	c.notify(update)
	c.notifyMu.Unlock()

	if coords, _ := c.resolver.Current(); coords != update.Coordinates {
		c.logger.Info("location changed during refresh, refreshing again", slog.String("coordinates", coords.String()))
		if err := c.Refresh(ctx); !errors.Is(err, ErrRefreshInProgress) {
			return err
		}
	}

	if update.Err != nil {
		return fmt.Errorf("update failed: %w", update.Err)
	}
	return nil
}

func (c *Coordinator) refresh(ctx context.Context) Update {
	id := uuid.NewString()
	logger := c.logger.With(slog.String("refresh", id))

	coords, ok := c.resolver.Current()
	if !ok {
		coords, _ = c.resolve()
	}
	logger.Debug("refreshing weather...", slog.String("coordinates", coords.String()))
	start := c.now()

	snap, err := c.fetchSnapshot(ctx, coords)

	c.mu.Lock()
	c.lastAttempt = start
	if err != nil {
		c.lastErr = err
		c.lastOutcome = Failed
	} else {
		c.snapshot = snap
		c.hasSnapshot = true
		c.lastErr = nil
		c.lastOutcome = Succeeded
		c.lastSuccess = start
	}
	update := Update{ID: id, Coordinates: coords, Outcome: c.lastOutcome, Snapshot: c.snapshot, Err: err, At: start}
	c.mu.Unlock()

	if err != nil {
		logger.Error("weather refresh failed", slog.Any("error", err))
	} else {
		logger.Info("weather refresh done",
			slog.Int("hourly", len(snap.Hourly)),
			slog.Int("daily", len(snap.Daily)),
			slog.Duration("took", c.now().Sub(start)))
	}

	return update
}

func (c *Coordinator) fetchSnapshot(ctx context.Context, coords location.Coordinates) (types.Snapshot, error) {
	payload, err := c.fetcher.Fetch(ctx, coords)
	if err != nil {
		return types.Snapshot{}, err
	}
	snap, err := meteoam.Normalize(payload, c.now())
	if err != nil {
		return types.Snapshot{}, err
	}
	snap.Coordinates = coords
	return snap, nil
}

// Restore seeds the snapshot from storage. It is ignored once a refresh
// has succeeded.
func (c *Coordinator) Restore(snap types.Snapshot) {
	if snap.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasSnapshot {
		return
	}
	c.snapshot = snap
	c.hasSnapshot = true
}

func (c *Coordinator) Snapshot() (types.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnapshot
}

func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator) State() State {
	if c.inFlight.Load() {
		return Fetching
	}
	return Idle
}

func (c *Coordinator) Status() Status {
	coords, _ := c.resolver.Current()

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		State:       c.State().String(),
		Coordinates: coords,
		TrackHome:   c.settings.TrackHome,
		Interval:    c.interval.String(),
		LastOutcome: c.lastOutcome,
		LastAttempt: c.lastAttempt,
		LastSuccess: c.lastSuccess,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Subscribe registers fn to receive every refresh outcome. Subscribers run
// synchronously on the refreshing goroutine, one update at a time, and must
// not call Refresh themselves.
func (c *Coordinator) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Coordinator) notify(u Update) {
	c.subMu.Lock()
	fns := make([]func(Update), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}
