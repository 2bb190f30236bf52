package session

import (
	"fmt"
	"time"

	"github.com/shinoburc/driving-report-go/internal/models"
)

// runRecoveryPass queries storage for trips a prior run left active.
// The most recently updated one is surfaced for the caller to resume or
// close out; older stale records cannot all be resumed under the
// one-active-session rule, so they are closed out as cancelled.
func (e *Engine) runRecoveryPass() {
	trips, err := e.store.QueryActive()
	if err != nil {
		e.recordStorage("recovery", err)
		return
	}
	if len(trips) == 0 {
		return
	}

	e.recoverable = &trips[0]
	e.log.Info().
		Str("trip_id", e.recoverable.ID).
		Int("waypoints", len(e.recoverable.Waypoints)).
		Msg("found interrupted trip")

	for _, stale := range trips[1:] {
		end := stale.UpdatedAt
		if err := e.store.SetStatus(stale.ID, models.TripStatusCancelled, &end); err != nil {
			e.recordStorage("recovery", err)
			continue
		}
		e.log.Warn().Str("trip_id", stale.ID).Msg("cancelled stale interrupted trip")
	}
}

// Recoverable returns a copy of the interrupted trip awaiting a
// decision, or nil.
func (e *Engine) Recoverable() *models.Trip {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recoverable == nil {
		return nil
	}
	clone := *e.recoverable
	clone.Waypoints = make([]models.Waypoint, len(e.recoverable.Waypoints))
	copy(clone.Waypoints, e.recoverable.Waypoints)
	return &clone
}

// Recover re-enters Active on the interrupted trip: statistics are
// recomputed from the stored waypoints, the clock is rebased so the
// persisted elapsed time is preserved, and positioning and auto-save
// restart.
func (e *Engine) Recover() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.allow("recover"); err != nil {
		return e.snapshotLocked(), err
	}
	if e.recoverable == nil {
		return e.snapshotLocked(), fmt.Errorf("no recoverable trip")
	}

	e.trip = e.recoverable
	e.recoverable = nil

	// Neither downtime between the last save and now nor pauses taken
	// before the crash count as recording time: resume from the
	// pause-adjusted elapsed the stored record last reflected. The wall
	// clock is the fallback for records written before durations were
	// saved mid-trip.
	elapsed := e.trip.UpdatedAt.Sub(e.trip.StartTime)
	if e.trip.DurationSeconds != nil {
		elapsed = time.Duration(*e.trip.DurationSeconds) * time.Second
	}
	e.stopwatch = NewStopwatch(e.clock)
	e.stopwatch.Rebase(elapsed)

	e.acc = newAccumulator(e.cfg.ThresholdKm)
	e.acc.rebase(e.trip.LastWaypoint())
	e.lastFix = nil
	e.dirty = false
	e.status = StatusActive

	e.subscribeLocked()
	e.saver = newAutoSaver(e.cfg.AutoSaveInterval, e.saveTick)
	e.saver.start()

	e.log.Info().Str("trip_id", e.trip.ID).Msg("recording recovered")
	return e.snapshotLocked(), nil
}

// DiscardRecoverable closes out the interrupted trip without resuming
// it: complete finalizes it with statistics computed from the stored
// waypoints, otherwise the record is deleted as a cancellation.
func (e *Engine) DiscardRecoverable(complete bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recoverable == nil {
		return fmt.Errorf("no recoverable trip")
	}
	trip := e.recoverable

	if !complete {
		if err := e.store.Delete(trip.ID); err != nil {
			e.recordStorage("discard", err)
			return &StorageError{Op: "discard", Err: err}
		}
		e.recoverable = nil
		e.log.Info().Str("trip_id", trip.ID).Msg("interrupted trip discarded")
		return nil
	}

	// The stored updated_at is the last moment the trip was known to be
	// recording; close it out there, with the pause-adjusted elapsed
	// when the record carries one.
	end := trip.UpdatedAt
	elapsed := end.Sub(trip.StartTime)
	if trip.DurationSeconds != nil {
		elapsed = time.Duration(*trip.DurationSeconds) * time.Second
	}
	stats := ComputeStatistics(trip.Waypoints, elapsed)

	// Finalize a copy; the retained recoverable must stay untouched so
	// a failed close-out can still be recovered or retried.
	final := *trip
	final.Waypoints = make([]models.Waypoint, len(trip.Waypoints))
	copy(final.Waypoints, trip.Waypoints)

	final.Status = models.TripStatusCompleted
	final.EndTime = &end
	if last := final.LastWaypoint(); last != nil {
		final.EndLat = &last.Latitude
		final.EndLon = &last.Longitude
	}
	final.TotalDistanceKm = &stats.DistanceKm
	duration := int64(elapsed.Seconds())
	final.DurationSeconds = &duration
	final.UpdatedAt = e.clock.Now()

	if err := e.store.Update(&final); err != nil {
		e.recordStorage("discard", err)
		return &StorageError{Op: "discard", Err: err}
	}
	e.recoverable = nil
	e.log.Info().Str("trip_id", trip.ID).Msg("interrupted trip completed")
	return nil
}
