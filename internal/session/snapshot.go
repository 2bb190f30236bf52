package session

import (
	"time"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/spatial"
)

// Snapshot is the read-only view of the session runtime state handed
// to presentation and export collaborators. It is a value copy;
// holding one never blocks or mutates the engine.
type Snapshot struct {
	Status         Status                    `json:"status"`
	TripID         string                    `json:"trip_id,omitempty"`
	Date           string                    `json:"date,omitempty"`
	StartTime      *time.Time                `json:"start_time,omitempty"`
	ElapsedSeconds int64                     `json:"elapsed_seconds"`
	Statistics     models.StatisticsSnapshot `json:"statistics"`
	Waypoints      []models.Waypoint         `json:"waypoints,omitempty"`
	LastFix        *models.Fix               `json:"last_fix,omitempty"`
	HeadingDeg     *float64                  `json:"heading_deg,omitempty"`
	Errors         []RecordedError           `json:"errors,omitempty"`
}

// Snapshot returns the current runtime state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Status returns just the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{Status: e.status}

	if len(e.errs) > 0 {
		snap.Errors = make([]RecordedError, len(e.errs))
		copy(snap.Errors, e.errs)
	}

	if e.trip == nil {
		return snap
	}

	snap.TripID = e.trip.ID
	snap.Date = e.trip.Date
	start := e.trip.StartTime
	snap.StartTime = &start

	elapsed := e.stopwatch.Elapsed()
	snap.ElapsedSeconds = int64(elapsed.Seconds())
	snap.Statistics = ComputeStatistics(e.trip.Waypoints, elapsed)

	snap.Waypoints = make([]models.Waypoint, len(e.trip.Waypoints))
	copy(snap.Waypoints, e.trip.Waypoints)

	if e.lastFix != nil {
		fix := *e.lastFix
		snap.LastFix = &fix
	}

	// Current heading, derived from the last two waypoints when they
	// are distinct points.
	if n := len(e.trip.Waypoints); n >= 2 {
		a, b := e.trip.Waypoints[n-2], e.trip.Waypoints[n-1]
		if a.Latitude != b.Latitude || a.Longitude != b.Longitude {
			h := spatial.Bearing(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
			snap.HeadingDeg = &h
		}
	}

	return snap
}
