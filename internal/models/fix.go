package models

import "time"

// Fix is a single positioning reading. Fixes are never persisted on
// their own; the session engine distills them into waypoints.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AccuracyM float64   `json:"accuracy_m"`
	Timestamp time.Time `json:"timestamp"`
}

// Coordinate is a bare lat/lon pair, used for manual start locations
// and for the finalized start/end fields of a trip.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
