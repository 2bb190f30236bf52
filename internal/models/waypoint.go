package models

import "time"

// WaypointKind is the semantic tag attached to a waypoint.
type WaypointKind string

// Waypoint kinds. Start and end are synthetic, appended by the session
// engine itself; the rest come from explicit user requests or from
// automatic distance-threshold accumulation ("other").
const (
	WaypointKindStart   WaypointKind = "start"
	WaypointKindEnd     WaypointKind = "end"
	WaypointKindFuel    WaypointKind = "fuel"
	WaypointKindRest    WaypointKind = "rest"
	WaypointKindParking WaypointKind = "parking"
	WaypointKindOther   WaypointKind = "other"
)

// ValidWaypointKind reports whether k is one of the known kinds.
func ValidWaypointKind(k WaypointKind) bool {
	switch k {
	case WaypointKindStart, WaypointKindEnd, WaypointKindFuel,
		WaypointKindRest, WaypointKindParking, WaypointKindOther:
		return true
	}
	return false
}

// Waypoint is a recorded, tagged point-in-time location within a trip.
// Waypoints are immutable once written, except for Label and Note.
type Waypoint struct {
	ID     string `json:"id" db:"id"`
	TripID string `json:"trip_id" db:"trip_id"`
	Seq    int    `json:"seq" db:"seq"` // insertion order within the trip

	Latitude  float64  `json:"latitude" db:"latitude"`
	Longitude float64  `json:"longitude" db:"longitude"`
	AccuracyM *float64 `json:"accuracy_m,omitempty" db:"accuracy_m"`
	AltitudeM *float64 `json:"altitude_m,omitempty" db:"altitude_m"`

	Timestamp time.Time    `json:"timestamp" db:"timestamp"`
	Kind      WaypointKind `json:"kind" db:"kind"`

	Label *string `json:"label,omitempty" db:"label"`
	Note  *string `json:"note,omitempty" db:"note"`
}
