package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shinoburc/driving-report-go/internal/database"
	"github.com/shinoburc/driving-report-go/internal/models"
)

// TripRepository handles database operations for trips and their
// waypoints. Every exported method is atomic per trip: the trip row and
// its waypoint rows are written inside one transaction.
type TripRepository struct {
	db *sql.DB
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Create inserts a new trip together with its waypoints.
func (r *TripRepository) Create(trip *models.Trip) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO trips
			(id, date, start_time, end_time, status, start_lat, start_lon,
			 end_lat, end_lon, total_distance_km, duration_seconds, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trip.ID, trip.Date, trip.StartTime.UnixMilli(), unixMilliPtr(trip.EndTime),
			string(trip.Status), trip.StartLat, trip.StartLon,
			trip.EndLat, trip.EndLon, trip.TotalDistanceKm, trip.DurationSeconds,
			trip.CreatedAt.UnixMilli(), trip.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert trip: %w", err)
		}
		return insertWaypoints(tx, trip.ID, trip.Waypoints)
	})
}

// GetByID retrieves a single trip with its waypoints. Returns
// (nil, nil) when no trip exists with the given id.
func (r *TripRepository) GetByID(id string) (*models.Trip, error) {
	row := r.db.QueryRow(tripSelect+` WHERE id = ?`, id)

	trip, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	if err := r.loadWaypoints(trip); err != nil {
		return nil, err
	}
	return trip, nil
}

// Update replaces the stored trip and waypoint rows with the given
// record. Waypoints are rewritten wholesale inside the transaction so
// a reader never observes a partially saved trip.
func (r *TripRepository) Update(trip *models.Trip) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE trips SET
			date = ?, start_time = ?, end_time = ?, status = ?,
			start_lat = ?, start_lon = ?, end_lat = ?, end_lon = ?,
			total_distance_km = ?, duration_seconds = ?, updated_at = ?
			WHERE id = ?`,
			trip.Date, trip.StartTime.UnixMilli(), unixMilliPtr(trip.EndTime),
			string(trip.Status), trip.StartLat, trip.StartLon, trip.EndLat, trip.EndLon,
			trip.TotalDistanceKm, trip.DurationSeconds, trip.UpdatedAt.UnixMilli(),
			trip.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update trip: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("trip %s not found", trip.ID)
		}

		if _, err := tx.Exec("DELETE FROM waypoints WHERE trip_id = ?", trip.ID); err != nil {
			return fmt.Errorf("failed to clear waypoints: %w", err)
		}
		return insertWaypoints(tx, trip.ID, trip.Waypoints)
	})
}

// SetStatus updates only the status and optional end time of a trip.
// Used by the recovery pass to close out stale active records.
func (r *TripRepository) SetStatus(id string, status models.TripStatus, endTime *time.Time) error {
	_, err := r.db.Exec(
		"UPDATE trips SET status = ?, end_time = ?, updated_at = ? WHERE id = ?",
		string(status), unixMilliPtr(endTime), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set trip status: %w", err)
	}
	return nil
}

// Delete removes a trip and its waypoints.
func (r *TripRepository) Delete(id string) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM waypoints WHERE trip_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete waypoints: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM trips WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete trip: %w", err)
		}
		return nil
	})
}

// QueryActive returns all trips still marked active, most recently
// updated first. A non-empty result after process start means a prior
// run ended without completing or cancelling its session.
func (r *TripRepository) QueryActive() ([]models.Trip, error) {
	rows, err := r.db.Query(tripSelect + ` WHERE status = 'active' ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active trips: %w", err)
	}
	defer rows.Close()

	trips, err := scanTrips(rows)
	if err != nil {
		return nil, err
	}

	for i := range trips {
		if err := r.loadWaypoints(&trips[i]); err != nil {
			return nil, err
		}
	}
	return trips, nil
}

// List retrieves trips with filtering and pagination.
func (r *TripRepository) List(filter models.TripFilter) ([]models.Trip, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.From != "" {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.To)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.MinDistanceKm > 0 {
		conditions = append(conditions, "total_distance_km >= ?")
		args = append(args, filter.MinDistanceKm)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM trips"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}
	if filter.PageSize > 1000 {
		filter.PageSize = 1000
	}
	offset := (filter.Page - 1) * filter.PageSize

	query := tripSelect + where + " ORDER BY start_time DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	trips, err := scanTrips(rows)
	if err != nil {
		return nil, 0, err
	}

	for i := range trips {
		if err := r.loadWaypoints(&trips[i]); err != nil {
			return nil, 0, err
		}
	}
	return trips, total, nil
}

const tripSelect = `SELECT id, date, start_time, end_time, status,
	start_lat, start_lon, end_lat, end_lon,
	total_distance_km, duration_seconds, created_at, updated_at
	FROM trips`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	var startMs, createdMs, updatedMs int64
	var endMs, durationSec sql.NullInt64
	var endLat, endLon, distance sql.NullFloat64
	var status string

	err := row.Scan(
		&t.ID, &t.Date, &startMs, &endMs, &status,
		&t.StartLat, &t.StartLon, &endLat, &endLon,
		&distance, &durationSec, &createdMs, &updatedMs,
	)
	if err != nil {
		return nil, err
	}

	t.Status = models.TripStatus(status)
	t.StartTime = time.UnixMilli(startMs)
	t.CreatedAt = time.UnixMilli(createdMs)
	t.UpdatedAt = time.UnixMilli(updatedMs)
	if endMs.Valid {
		et := time.UnixMilli(endMs.Int64)
		t.EndTime = &et
	}
	if endLat.Valid {
		t.EndLat = &endLat.Float64
	}
	if endLon.Valid {
		t.EndLon = &endLon.Float64
	}
	if distance.Valid {
		t.TotalDistanceKm = &distance.Float64
	}
	if durationSec.Valid {
		t.DurationSeconds = &durationSec.Int64
	}
	return &t, nil
}

func scanTrips(rows *sql.Rows) ([]models.Trip, error) {
	var trips []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

func (r *TripRepository) loadWaypoints(trip *models.Trip) error {
	rows, err := r.db.Query(`SELECT id, trip_id, seq, latitude, longitude,
		accuracy_m, altitude_m, timestamp, kind, label, note
		FROM waypoints WHERE trip_id = ? ORDER BY seq`, trip.ID)
	if err != nil {
		return fmt.Errorf("failed to query waypoints: %w", err)
	}
	defer rows.Close()

	var waypoints []models.Waypoint
	for rows.Next() {
		var w models.Waypoint
		var ts int64
		var accuracy, altitude sql.NullFloat64
		var label, note sql.NullString
		var kind string

		err := rows.Scan(&w.ID, &w.TripID, &w.Seq, &w.Latitude, &w.Longitude,
			&accuracy, &altitude, &ts, &kind, &label, &note)
		if err != nil {
			return fmt.Errorf("failed to scan waypoint: %w", err)
		}

		w.Timestamp = time.UnixMilli(ts)
		w.Kind = models.WaypointKind(kind)
		if accuracy.Valid {
			w.AccuracyM = &accuracy.Float64
		}
		if altitude.Valid {
			w.AltitudeM = &altitude.Float64
		}
		if label.Valid {
			w.Label = &label.String
		}
		if note.Valid {
			w.Note = &note.String
		}
		waypoints = append(waypoints, w)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read waypoints: %w", err)
	}

	trip.Waypoints = waypoints
	return nil
}

func insertWaypoints(tx *sql.Tx, tripID string, waypoints []models.Waypoint) error {
	for _, w := range waypoints {
		_, err := tx.Exec(`INSERT INTO waypoints
			(id, trip_id, seq, latitude, longitude, accuracy_m, altitude_m,
			 timestamp, kind, label, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, tripID, w.Seq, w.Latitude, w.Longitude,
			w.AccuracyM, w.AltitudeM, w.Timestamp.UnixMilli(),
			string(w.Kind), w.Label, w.Note,
		)
		if err != nil {
			return fmt.Errorf("failed to insert waypoint %d: %w", w.Seq, err)
		}
	}
	return nil
}

func unixMilliPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
