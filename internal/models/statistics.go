package models

// StatisticsSnapshot holds the derived statistics of a trip at one
// point in time. It is recomputed from the waypoint sequence and the
// elapsed recording time; it is never mutated independently.
type StatisticsSnapshot struct {
	DistanceKm     float64 `json:"distance_km"`     // pairwise sum, rounded to 1 decimal
	AvgSpeedKmh    float64 `json:"avg_speed_kmh"`   // distance over moving time
	MaxSpeedKmh    float64 `json:"max_speed_kmh"`   // fastest consecutive pair
	MovingSeconds  int64   `json:"moving_seconds"`  // time between pairs with positional delta
	StoppedSeconds int64   `json:"stopped_seconds"` // elapsed minus moving, floored at zero
}
