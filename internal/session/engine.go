// Package session implements the recording session engine: a state
// machine that turns a live stream of positioning fixes into a
// structured trip record, with pause-aware timing, distance-threshold
// waypoint accumulation, derived statistics, periodic persistence and
// crash recovery.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/positioning"
)

// Status is the runtime state of the session engine. Terminal trip
// states (completed, cancelled) are not runtime states: the engine
// returns to idle once a trip reaches them.
type Status string

// Session states.
const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// transitions is the complete table of allowed commands per state.
// A command whose current state is not listed is rejected as an
// invariant violation; there are no other status checks in the engine.
var transitions = map[string][]Status{
	"start":        {StatusIdle},
	"pause":        {StatusActive},
	"resume":       {StatusPaused},
	"complete":     {StatusActive, StatusPaused},
	"cancel":       {StatusActive, StatusPaused},
	"add_waypoint": {StatusActive, StatusPaused},
	"recover":      {StatusIdle},
}

// TripStore is the persistence gateway consumed by the engine. Each
// operation is atomic per record. *repository.TripRepository satisfies
// it.
type TripStore interface {
	Create(trip *models.Trip) error
	GetByID(id string) (*models.Trip, error)
	Update(trip *models.Trip) error
	SetStatus(id string, status models.TripStatus, endTime *time.Time) error
	Delete(id string) error
	QueryActive() ([]models.Trip, error)
}

// Config tunes the engine's thresholds and timers. Zero values fall
// back to the documented defaults.
type Config struct {
	ThresholdKm      float64       // automatic waypoint displacement, default 0.1 km
	AutoSaveInterval time.Duration // default 30s
	FixTimeout       time.Duration // per positioning attempt, default 5s
	FixRetries       int           // additional attempts after the first; 0 selects the default of 2, negative disables retries
}

// Engine is the session state machine. All commands, fixes and timer
// ticks are serialized through one mutex: no two mutations of the
// runtime state or the in-progress trip ever run concurrently, and
// fixes are applied in arrival order with none dropped.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	clock    Clock
	log      zerolog.Logger
	store    TripStore
	provider positioning.Provider
	resolver *positioning.Resolver

	status      Status
	trip        *models.Trip
	stopwatch   *Stopwatch
	acc         *accumulator
	sub         positioning.Subscription
	saver       *autoSaver
	dirty       bool
	lastFix     *models.Fix
	errs        []RecordedError
	recoverable *models.Trip
}

// NewEngine builds an idle engine and runs the startup recovery pass:
// any trip left active by a prior run is surfaced via Recoverable.
func NewEngine(cfg Config, store TripStore, provider positioning.Provider, clock Clock, log zerolog.Logger) *Engine {
	if cfg.ThresholdKm <= 0 {
		cfg.ThresholdKm = DefaultThresholdKm
	}
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = DefaultAutoSaveInterval
	}
	if cfg.FixTimeout <= 0 {
		cfg.FixTimeout = 5 * time.Second
	}
	if cfg.FixRetries == 0 {
		cfg.FixRetries = 2
	}

	e := &Engine{
		cfg:      cfg,
		clock:    clock,
		log:      log,
		store:    store,
		provider: provider,
		resolver: positioning.NewResolver(provider, cfg.FixTimeout, cfg.FixRetries),
		status:   StatusIdle,
	}
	e.runRecoveryPass()
	return e
}

// Start begins recording a new trip. Valid only from idle. The start
// location comes from the given manual coordinate, or from a fresh
// positioning fix when manual is nil. On positioning failure the
// engine stays idle, records the error, and Start may simply be called
// again.
func (e *Engine) Start(ctx context.Context, manual *models.Coordinate) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("start"); err != nil {
		return e.snapshotLocked(), err
	}
	if e.recoverable != nil {
		err := errors.New("a recoverable trip is pending; recover or discard it first")
		e.record(CodeInvariantViolation, err.Error(), false)
		return e.snapshotLocked(), err
	}

	now := e.clock.Now()
	var fix models.Fix
	if manual != nil {
		fix = models.Fix{Latitude: manual.Latitude, Longitude: manual.Longitude, Timestamp: now}
	} else {
		// Positioning may block; release the lock so fixes for a prior
		// state cannot pile up behind a slow device. Idle has no state
		// to protect.
		e.mu.Unlock()
		got, err := e.resolver.Fix(ctx)
		e.mu.Lock()
		if err != nil {
			e.recordPositioning(err)
			return e.snapshotLocked(), fmt.Errorf("start aborted: %w", err)
		}
		if e.status != StatusIdle {
			return e.snapshotLocked(), &StateError{Command: "start", Status: e.status}
		}
		fix = got
	}

	trip := &models.Trip{
		ID:        uuid.NewString(),
		Date:      now.Format("2006-01-02"),
		StartTime: now,
		Status:    models.TripStatusActive,
		StartLat:  fix.Latitude,
		StartLon:  fix.Longitude,
		CreatedAt: now,
		UpdatedAt: now,
	}

	acc := newAccumulator(e.cfg.ThresholdKm)
	start := acc.explicit(trip.ID, 0,
		models.Coordinate{Latitude: fix.Latitude, Longitude: fix.Longitude},
		accuracyPtr(fix), now, models.WaypointKindStart, nil, nil)
	trip.Waypoints = []models.Waypoint{start}

	if err := e.store.Create(trip); err != nil {
		e.recordStorage("create", err)
		return e.snapshotLocked(), &StorageError{Op: "create", Err: err}
	}

	e.trip = trip
	e.acc = acc
	e.lastFix = &fix
	e.stopwatch = NewStopwatch(e.clock)
	e.status = StatusActive
	e.dirty = false

	e.subscribeLocked()
	e.saver = newAutoSaver(e.cfg.AutoSaveInterval, e.saveTick)
	e.saver.start()

	e.log.Info().Str("trip_id", trip.ID).Msg("recording started")
	return e.snapshotLocked(), nil
}

// Pause freezes the session. Positioning is unsubscribed and the
// elapsed clock stops counting; the trip itself is not mutated.
func (e *Engine) Pause() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("pause"); err != nil {
		return e.snapshotLocked(), err
	}

	e.unsubscribeLocked()
	e.stopwatch.Pause()
	e.status = StatusPaused

	e.log.Info().Str("trip_id", e.trip.ID).Msg("recording paused")
	return e.snapshotLocked(), nil
}

// Resume continues a paused session: the pause interval is folded into
// the cumulative pause duration and positioning is resubscribed.
func (e *Engine) Resume() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("resume"); err != nil {
		return e.snapshotLocked(), err
	}

	e.stopwatch.Resume()
	e.subscribeLocked()
	e.status = StatusActive

	e.log.Info().Str("trip_id", e.trip.ID).Msg("recording resumed")
	return e.snapshotLocked(), nil
}

// Complete finishes the trip: appends the synthetic end waypoint,
// computes the final statistics, persists synchronously and tears the
// session down. On a storage failure the session is left exactly as it
// was so Complete can be retried; it is never silently dropped.
func (e *Engine) Complete(ctx context.Context) (*models.Trip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("complete"); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	endFix := e.endFixLocked(ctx, now)

	// Finalize a copy; the live trip is only replaced once the store
	// accepts it.
	final := e.cloneTripLocked()
	end := e.acc.explicit(final.ID, len(final.Waypoints),
		models.Coordinate{Latitude: endFix.Latitude, Longitude: endFix.Longitude},
		accuracyPtr(endFix), now, models.WaypointKindEnd, nil, nil)
	final.Waypoints = append(final.Waypoints, end)

	elapsed := e.stopwatch.Elapsed()
	stats := ComputeStatistics(final.Waypoints, elapsed)

	final.Status = models.TripStatusCompleted
	final.EndTime = &now
	final.EndLat = &end.Latitude
	final.EndLon = &end.Longitude
	final.TotalDistanceKm = &stats.DistanceKm
	duration := int64(elapsed.Seconds())
	final.DurationSeconds = &duration
	final.UpdatedAt = now

	if err := e.store.Update(final); err != nil {
		e.recordStorage("complete", err)
		return nil, &StorageError{Op: "complete", Err: err}
	}

	e.teardownLocked()
	e.log.Info().
		Str("trip_id", final.ID).
		Float64("distance_km", stats.DistanceKm).
		Int64("duration_s", duration).
		Msg("recording completed")
	return final, nil
}

// Cancel abandons the trip and deletes its stored record. Irreversible.
func (e *Engine) Cancel() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("cancel"); err != nil {
		return e.snapshotLocked(), err
	}

	id := e.trip.ID
	if err := e.store.Delete(id); err != nil {
		e.recordStorage("cancel", err)
		return e.snapshotLocked(), &StorageError{Op: "cancel", Err: err}
	}

	e.teardownLocked()
	e.log.Info().Str("trip_id", id).Msg("recording cancelled")
	return e.snapshotLocked(), nil
}

// AddWaypoint appends an explicit waypoint of the given kind at the
// last known position, timestamped now. Valid while active or paused.
func (e *Engine) AddWaypoint(kind models.WaypointKind, label, note *string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("add_waypoint"); err != nil {
		return e.snapshotLocked(), err
	}
	if !models.ValidWaypointKind(kind) {
		return e.snapshotLocked(), fmt.Errorf("unknown waypoint kind %q", kind)
	}

	coord, accuracy := e.positionLocked()
	w := e.acc.explicit(e.trip.ID, len(e.trip.Waypoints), coord, accuracy, e.clock.Now(), kind, label, note)
	e.trip.Waypoints = append(e.trip.Waypoints, w)
	e.dirty = true

	return e.snapshotLocked(), nil
}

// DismissError removes one entry from the recoverable-error list.
func (e *Engine) DismissError(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.errs) {
		return fmt.Errorf("no error at index %d", index)
	}
	e.errs = append(e.errs[:index], e.errs[index+1:]...)
	return nil
}

// onFix consumes one positioning update from the watch subscription.
func (e *Engine) onFix(fix models.Fix) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A late delivery after pause or teardown mutates nothing.
	if e.status != StatusActive {
		return
	}

	e.lastFix = &fix
	if w := e.acc.fromFix(e.trip.ID, len(e.trip.Waypoints), fix); w != nil {
		e.trip.Waypoints = append(e.trip.Waypoints, *w)
		e.dirty = true
	}
}

// saveTick is the auto-save callback. It persists only when the trip
// has unsaved mutations; a failure is recorded and retried next tick
// without stopping the session.
func (e *Engine) saveTick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trip == nil || !e.dirty {
		return
	}

	e.trip.UpdatedAt = e.clock.Now()
	// The stored duration is the pause-adjusted elapsed at save time;
	// recovery resumes the clock from it. Wall time since start would
	// count pauses.
	elapsed := int64(e.stopwatch.Elapsed().Seconds())
	e.trip.DurationSeconds = &elapsed
	if err := e.store.Update(e.trip); err != nil {
		e.recordStorage("auto-save", err)
		return
	}
	e.dirty = false
}

func (e *Engine) allow(command string) error {
	for _, s := range transitions[command] {
		if e.status == s {
			return nil
		}
	}
	err := &StateError{Command: command, Status: e.status}
	e.record(CodeInvariantViolation, err.Error(), false)
	return err
}

// subscribeLocked starts the positioning watch. A watch failure is a
// recoverable positioning error: recording continues, statistics just
// stop advancing until fixes return.
func (e *Engine) subscribeLocked() {
	sub, err := e.provider.Watch(e.onFix)
	if err != nil {
		e.recordPositioning(err)
		return
	}
	e.sub = sub
}

func (e *Engine) unsubscribeLocked() {
	if e.sub != nil {
		e.sub.Stop()
		e.sub = nil
	}
}

// teardownLocked releases every resource owned by the session and
// returns the engine to idle. Runtime state is discarded.
func (e *Engine) teardownLocked() {
	e.unsubscribeLocked()
	if e.saver != nil {
		e.saver.halt()
		e.saver = nil
	}
	e.trip = nil
	e.stopwatch = nil
	e.acc = nil
	e.lastFix = nil
	e.dirty = false
	e.errs = nil
	e.status = StatusIdle
}

// endFixLocked picks the end-waypoint position: the last known fix,
// else a fresh one-shot request, else the last recorded waypoint.
func (e *Engine) endFixLocked(ctx context.Context, now time.Time) models.Fix {
	if e.lastFix != nil {
		return *e.lastFix
	}
	fix, err := e.resolver.Fix(ctx)
	if err == nil {
		return fix
	}
	e.recordPositioning(err)
	last := e.trip.LastWaypoint()
	return models.Fix{Latitude: last.Latitude, Longitude: last.Longitude, Timestamp: now}
}

func (e *Engine) positionLocked() (models.Coordinate, *float64) {
	if e.lastFix != nil {
		return models.Coordinate{Latitude: e.lastFix.Latitude, Longitude: e.lastFix.Longitude},
			accuracyPtr(*e.lastFix)
	}
	last := e.trip.LastWaypoint()
	return models.Coordinate{Latitude: last.Latitude, Longitude: last.Longitude}, nil
}

func (e *Engine) cloneTripLocked() *models.Trip {
	clone := *e.trip
	clone.Waypoints = make([]models.Waypoint, len(e.trip.Waypoints))
	copy(clone.Waypoints, e.trip.Waypoints)
	return &clone
}

func (e *Engine) record(code ErrorCode, message string, retryable bool) {
	e.errs = append(e.errs, RecordedError{
		Code:       code,
		Message:    message,
		OccurredAt: e.clock.Now(),
		Retryable:  retryable,
	})
	e.log.Warn().Str("code", string(code)).Msg(message)
}

func (e *Engine) recordPositioning(err error) {
	code := CodePositioningUnavailable
	if errors.Is(err, positioning.ErrTimeout) {
		code = CodePositioningTimeout
	}
	e.record(code, err.Error(), true)
}

func (e *Engine) recordStorage(op string, err error) {
	code := CodeStorageUnavailable
	if strings.Contains(err.Error(), "full") || strings.Contains(err.Error(), "quota") {
		code = CodeStorageQuotaExceeded
	}
	e.record(code, fmt.Sprintf("%s: %v", op, err), true)
}

func accuracyPtr(fix models.Fix) *float64 {
	if fix.AccuracyM <= 0 {
		return nil
	}
	acc := fix.AccuracyM
	return &acc
}
