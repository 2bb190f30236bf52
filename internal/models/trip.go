package models

import "time"

// TripStatus is the lifecycle state of a persisted trip.
type TripStatus string

// Trip status values. Completed and Cancelled are terminal: a trip in
// either state is never mutated again.
const (
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

// Trip represents one recorded driving session.
type Trip struct {
	ID string `json:"id" db:"id"`

	// Trip identification
	Date string `json:"date" db:"date"` // YYYY-MM-DD, local date of the start

	// Temporal info
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	Status TripStatus `json:"status" db:"status"`

	// Start/end locations. End fields stay nil until the trip finishes.
	StartLat float64  `json:"start_lat" db:"start_lat"`
	StartLon float64  `json:"start_lon" db:"start_lon"`
	EndLat   *float64 `json:"end_lat,omitempty" db:"end_lat"`
	EndLon   *float64 `json:"end_lon,omitempty" db:"end_lon"`

	// Waypoints ordered by capture time (seq breaks timestamp ties).
	Waypoints []Waypoint `json:"waypoints"`

	// Totals, set when the trip completes.
	TotalDistanceKm *float64 `json:"total_distance_km,omitempty" db:"total_distance_km"`
	DurationSeconds *int64   `json:"duration_seconds,omitempty" db:"duration_seconds"`

	// Metadata
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the trip has reached a final status.
func (t *Trip) Terminal() bool {
	return t.Status == TripStatusCompleted || t.Status == TripStatusCancelled
}

// LastWaypoint returns the most recently appended waypoint, or nil for
// an empty trip.
func (t *Trip) LastWaypoint() *Waypoint {
	if len(t.Waypoints) == 0 {
		return nil
	}
	return &t.Waypoints[len(t.Waypoints)-1]
}

// TripsResponse represents a paginated response of trips.
type TripsResponse struct {
	Data       []Trip `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
}

// TripFilter represents filter parameters for querying trips.
type TripFilter struct {
	From          string  `form:"from"` // YYYY-MM-DD inclusive
	To            string  `form:"to"`   // YYYY-MM-DD inclusive
	Status        string  `form:"status"`
	MinDistanceKm float64 `form:"minDistance"`
	Page          int     `form:"page"`
	PageSize      int     `form:"pageSize"`
}
