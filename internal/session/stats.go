package session

import (
	"math"
	"time"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/spatial"
)

// ComputeStatistics derives a statistics snapshot from the full
// waypoint sequence and the elapsed recording time. It is a pure
// function: same inputs, same snapshot, no side effects.
//
// Any non-zero positional delta counts as motion, so positioning jitter
// while parked is counted as moving time. Deliberate: changing it would
// silently alter every historical report.
func ComputeStatistics(waypoints []models.Waypoint, elapsed time.Duration) models.StatisticsSnapshot {
	var stats models.StatisticsSnapshot
	if len(waypoints) < 2 {
		return stats
	}

	var distanceKm float64
	var moving time.Duration
	var maxSpeed float64

	for i := 1; i < len(waypoints); i++ {
		prev, cur := waypoints[i-1], waypoints[i]
		legKm := spatial.HaversineKm(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
		legTime := cur.Timestamp.Sub(prev.Timestamp)

		distanceKm += legKm
		if legKm > 0 {
			moving += legTime
		}
		// A zero time delta still contributes distance, but the pair is
		// excluded from max speed to avoid division by zero.
		if legTime > 0 {
			if speed := legKm / legTime.Hours(); speed > maxSpeed {
				maxSpeed = speed
			}
		}
	}

	stats.DistanceKm = roundKm(distanceKm)
	stats.MovingSeconds = int64(moving.Seconds())
	stats.MaxSpeedKmh = maxSpeed

	stopped := elapsed - moving
	if stopped < 0 {
		stopped = 0
	}
	stats.StoppedSeconds = int64(stopped.Seconds())

	if moving > 0 {
		stats.AvgSpeedKmh = stats.DistanceKm / moving.Hours()
	}
	return stats
}

// roundKm rounds a distance to one decimal place.
func roundKm(km float64) float64 {
	return math.Round(km*10) / 10
}
