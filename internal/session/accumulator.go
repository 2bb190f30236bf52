package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/spatial"
)

// DefaultThresholdKm is the minimum displacement from the anchor
// waypoint before an automatic waypoint is recorded.
const DefaultThresholdKm = 0.1

// accumulator turns positioning fixes into waypoints. It keeps an
// anchor, the last recorded waypoint position, and appends a new
// waypoint only when displacement from the anchor reaches the
// threshold. Explicit requests bypass the threshold entirely.
type accumulator struct {
	thresholdKm float64
	anchor      *models.Coordinate
}

func newAccumulator(thresholdKm float64) *accumulator {
	if thresholdKm <= 0 {
		thresholdKm = DefaultThresholdKm
	}
	return &accumulator{thresholdKm: thresholdKm}
}

// fromFix returns a new automatic waypoint when the fix has moved at
// least the threshold distance from the anchor, nil otherwise. Two
// fixes inside one threshold window thus yield at most one waypoint.
// The anchor advances to every waypoint it returns.
func (a *accumulator) fromFix(tripID string, seq int, fix models.Fix) *models.Waypoint {
	if a.anchor != nil {
		d := spatial.HaversineKm(a.anchor.Latitude, a.anchor.Longitude, fix.Latitude, fix.Longitude)
		if d < a.thresholdKm {
			return nil
		}
	}

	w := waypointFromFix(tripID, seq, fix, models.WaypointKindOther, nil, nil)
	a.anchor = &models.Coordinate{Latitude: fix.Latitude, Longitude: fix.Longitude}
	return &w
}

// explicit builds a user-requested waypoint at the given coordinate,
// timestamped at invocation. Only start and end kinds reset the anchor;
// a fuel stop halfway through a threshold window must not swallow the
// next automatic waypoint.
func (a *accumulator) explicit(tripID string, seq int, coord models.Coordinate, accuracy *float64, at time.Time, kind models.WaypointKind, label, note *string) models.Waypoint {
	w := models.Waypoint{
		ID:        uuid.NewString(),
		TripID:    tripID,
		Seq:       seq,
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
		AccuracyM: accuracy,
		Timestamp: at,
		Kind:      kind,
		Label:     label,
		Note:      note,
	}
	if kind == models.WaypointKindStart || kind == models.WaypointKindEnd {
		a.anchor = &models.Coordinate{Latitude: coord.Latitude, Longitude: coord.Longitude}
	}
	return w
}

// rebase points the anchor at the given waypoint, used when resuming a
// recovered session from its stored waypoint list.
func (a *accumulator) rebase(w *models.Waypoint) {
	if w == nil {
		a.anchor = nil
		return
	}
	a.anchor = &models.Coordinate{Latitude: w.Latitude, Longitude: w.Longitude}
}

func waypointFromFix(tripID string, seq int, fix models.Fix, kind models.WaypointKind, label, note *string) models.Waypoint {
	var accuracy *float64
	if fix.AccuracyM > 0 {
		acc := fix.AccuracyM
		accuracy = &acc
	}
	return models.Waypoint{
		ID:        uuid.NewString(),
		TripID:    tripID,
		Seq:       seq,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		AccuracyM: accuracy,
		Timestamp: fix.Timestamp,
		Kind:      kind,
		Label:     label,
		Note:      note,
	}
}
