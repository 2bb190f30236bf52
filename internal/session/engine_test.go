package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/positioning"
)

// fakeStore is an in-memory TripStore that counts calls and can be
// made to fail.
type fakeStore struct {
	mu          sync.Mutex
	trips       map[string]*models.Trip
	createCalls int
	updateCalls int
	deleteCalls int
	failUpdate  error
	failCreate  error
	failDelete  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{trips: make(map[string]*models.Trip)}
}

func cloneTrip(t *models.Trip) *models.Trip {
	clone := *t
	clone.Waypoints = make([]models.Waypoint, len(t.Waypoints))
	copy(clone.Waypoints, t.Waypoints)
	return &clone
}

func (s *fakeStore) Create(trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.failCreate != nil {
		return s.failCreate
	}
	s.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (s *fakeStore) GetByID(id string) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, nil
	}
	return cloneTrip(t), nil
}

func (s *fakeStore) Update(trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (s *fakeStore) SetStatus(id string, status models.TripStatus, endTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trips[id]; ok {
		t.Status = status
		t.EndTime = endTime
	}
	return nil
}

func (s *fakeStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if s.failDelete != nil {
		return s.failDelete
	}
	delete(s.trips, id)
	return nil
}

func (s *fakeStore) QueryActive() ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []models.Trip
	for _, t := range s.trips {
		if t.Status == models.TripStatusActive {
			active = append(active, *cloneTrip(t))
		}
	}
	return active, nil
}

func (s *fakeStore) updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCalls
}

// tokyo station, the canonical test start point
var tokyo = models.Coordinate{Latitude: 35.6812, Longitude: 139.7671}

func newTestEngine(t *testing.T, store TripStore, provider positioning.Provider, clock Clock) *Engine {
	t.Helper()
	return NewEngine(Config{
		FixTimeout: 20 * time.Millisecond,
		FixRetries: 1,
		// Long interval: tests invoke saveTick directly.
		AutoSaveInterval: time.Hour,
	}, store, provider, clock, zerolog.Nop())
}

func startedEngine(t *testing.T) (*Engine, *fakeStore, *positioning.Scripted, *ManualClock) {
	t.Helper()
	store := newFakeStore()
	provider := positioning.NewScripted()
	clock := &ManualClock{Current: time.Unix(1700000000, 0)}
	e := newTestEngine(t, store, provider, clock)
	if _, err := e.Start(context.Background(), &tokyo); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e, store, provider, clock
}

func fixNear(base models.Coordinate, dLat float64, at time.Time) models.Fix {
	return models.Fix{Latitude: base.Latitude + dLat, Longitude: base.Longitude, AccuracyM: 5, Timestamp: at}
}

func TestStartCreatesActiveTripWithStartWaypoint(t *testing.T) {
	e, store, provider, _ := startedEngine(t)

	snap := e.Snapshot()
	if snap.Status != StatusActive {
		t.Fatalf("status = %v, want active", snap.Status)
	}
	if len(snap.Waypoints) != 1 || snap.Waypoints[0].Kind != models.WaypointKindStart {
		t.Fatalf("waypoints = %+v, want single start waypoint", snap.Waypoints)
	}
	if provider.SubscriberCount() != 1 {
		t.Errorf("subscribers = %d, want 1", provider.SubscriberCount())
	}

	stored, _ := store.GetByID(snap.TripID)
	if stored == nil || stored.Status != models.TripStatusActive {
		t.Fatalf("stored trip = %+v, want active record", stored)
	}
}

// Scenario A: no new waypoint until a fix at least 0.1 km away arrives.
func TestWaypointThreshold(t *testing.T) {
	e, _, provider, clock := startedEngine(t)

	// ~55 m north: below threshold.
	clock.Advance(30 * time.Second)
	provider.Emit(fixNear(tokyo, 0.0005, clock.Now()))
	if got := len(e.Snapshot().Waypoints); got != 1 {
		t.Fatalf("waypoints after sub-threshold fix = %d, want 1", got)
	}

	// ~167 m north of the start anchor at t=60s: crosses 0.1 km.
	clock.Advance(30 * time.Second)
	provider.Emit(fixNear(tokyo, 0.0015, clock.Now()))
	snap := e.Snapshot()
	if got := len(snap.Waypoints); got != 2 {
		t.Fatalf("waypoints after threshold fix = %d, want 2", got)
	}
	if snap.Waypoints[1].Kind != models.WaypointKindOther {
		t.Errorf("automatic waypoint kind = %v, want other", snap.Waypoints[1].Kind)
	}
}

// Sub-threshold fix sequences never grow the waypoint list, however
// many arrive.
func TestWaypointCountStaysAtOneBelowThreshold(t *testing.T) {
	e, _, provider, clock := startedEngine(t)

	offsets := []float64{0.0002, -0.0004, 0.0006, 0.0001, -0.0007}
	for _, d := range offsets {
		clock.Advance(10 * time.Second)
		provider.Emit(fixNear(tokyo, d, clock.Now()))
	}

	if got := len(e.Snapshot().Waypoints); got != 1 {
		t.Fatalf("waypoints = %d, want 1 (start only)", got)
	}
}

// Accepted points at or above threshold grow waypoint count and
// distance monotonically.
func TestWaypointAndDistanceMonotonic(t *testing.T) {
	e, _, provider, clock := startedEngine(t)

	prevCount := 1
	prevDistance := 0.0
	for i := 1; i <= 5; i++ {
		clock.Advance(time.Minute)
		provider.Emit(fixNear(tokyo, 0.0015*float64(i), clock.Now()))

		snap := e.Snapshot()
		if len(snap.Waypoints) < prevCount {
			t.Fatalf("waypoint count decreased: %d -> %d", prevCount, len(snap.Waypoints))
		}
		if snap.Statistics.DistanceKm < prevDistance {
			t.Fatalf("distance decreased: %v -> %v", prevDistance, snap.Statistics.DistanceKm)
		}
		prevCount = len(snap.Waypoints)
		prevDistance = snap.Statistics.DistanceKm
	}
	if prevCount != 6 {
		t.Errorf("waypoints = %d, want 6", prevCount)
	}
}

func TestPausedSessionIgnoresFixes(t *testing.T) {
	e, _, provider, clock := startedEngine(t)

	if _, err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if provider.SubscriberCount() != 0 {
		t.Errorf("subscribers after pause = %d, want 0", provider.SubscriberCount())
	}

	// A straggler delivery after unsubscribing must not mutate.
	clock.Advance(time.Minute)
	e.onFix(fixNear(tokyo, 0.01, clock.Now()))
	if got := len(e.Snapshot().Waypoints); got != 1 {
		t.Fatalf("waypoints while paused = %d, want 1", got)
	}

	if _, err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if provider.SubscriberCount() != 1 {
		t.Errorf("subscribers after resume = %d, want 1", provider.SubscriberCount())
	}
}

// Scenario B: pause at t=30s, resume at t=90s, complete at t=150s.
func TestElapsedTimeAcrossPause(t *testing.T) {
	e, _, _, clock := startedEngine(t)

	label := "shell"
	if _, err := e.AddWaypoint(models.WaypointKindFuel, &label, nil); err != nil {
		t.Fatalf("add waypoint: %v", err)
	}

	clock.Advance(30 * time.Second)
	if _, err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(60 * time.Second)
	if _, err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clock.Advance(60 * time.Second)

	trip, err := e.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if trip.DurationSeconds == nil || *trip.DurationSeconds != 90 {
		t.Fatalf("duration = %v, want 90s", trip.DurationSeconds)
	}
}

// Scenario C: a save tick with nothing dirty must not touch storage.
func TestAutoSaveSkipsWhenClean(t *testing.T) {
	e, store, provider, clock := startedEngine(t)

	e.saveTick()
	if got := store.updates(); got != 0 {
		t.Fatalf("updates with clean trip = %d, want 0", got)
	}

	clock.Advance(time.Minute)
	provider.Emit(fixNear(tokyo, 0.002, clock.Now()))
	e.saveTick()
	if got := store.updates(); got != 1 {
		t.Fatalf("updates after dirty waypoint = %d, want 1", got)
	}

	// Saved and clean again: next tick is a no-op.
	e.saveTick()
	if got := store.updates(); got != 1 {
		t.Fatalf("updates after clean tick = %d, want 1", got)
	}
}

func TestAutoSaveFailureRetriesNextTick(t *testing.T) {
	e, store, provider, clock := startedEngine(t)

	clock.Advance(time.Minute)
	provider.Emit(fixNear(tokyo, 0.002, clock.Now()))

	store.mu.Lock()
	store.failUpdate = errors.New("disk unavailable")
	store.mu.Unlock()

	e.saveTick()
	snap := e.Snapshot()
	if snap.Status != StatusActive {
		t.Fatalf("status after failed save = %v, want active", snap.Status)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Code != CodeStorageUnavailable {
		t.Fatalf("errors = %+v, want one storage error", snap.Errors)
	}

	store.mu.Lock()
	store.failUpdate = nil
	store.mu.Unlock()

	before := store.updates()
	e.saveTick()
	if store.updates() != before+1 {
		t.Fatal("retry tick did not persist")
	}
}

// Scenario D: positioning unavailable and no manual location.
func TestStartWithPositioningUnavailable(t *testing.T) {
	store := newFakeStore()
	provider := positioning.NewScripted()
	provider.SetAvailable(false)
	clock := &ManualClock{Current: time.Unix(1700000000, 0)}
	e := newTestEngine(t, store, provider, clock)

	_, err := e.Start(context.Background(), nil)
	if err == nil {
		t.Fatal("start succeeded without positioning")
	}

	snap := e.Snapshot()
	if snap.Status != StatusIdle {
		t.Fatalf("status = %v, want idle", snap.Status)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Code != CodePositioningUnavailable {
		t.Fatalf("errors = %+v, want one positioning_unavailable", snap.Errors)
	}
	if !snap.Errors[0].Retryable {
		t.Error("positioning error must be retryable")
	}

	// Retry is just calling Start again.
	provider.SetAvailable(true)
	provider.QueueFix(models.Fix{Latitude: tokyo.Latitude, Longitude: tokyo.Longitude, AccuracyM: 8, Timestamp: clock.Now()})
	if _, err := e.Start(context.Background(), nil); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	if e.Status() != StatusActive {
		t.Fatalf("status after retry = %v, want active", e.Status())
	}
}

func TestStartTimesOutWhenProviderNeverAnswers(t *testing.T) {
	store := newFakeStore()
	provider := positioning.NewScripted() // available, empty queue: blocks
	clock := &ManualClock{Current: time.Unix(1700000000, 0)}
	e := newTestEngine(t, store, provider, clock)

	_, err := e.Start(context.Background(), nil)
	if !errors.Is(err, positioning.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}

	snap := e.Snapshot()
	if snap.Status != StatusIdle {
		t.Fatalf("status = %v, want idle", snap.Status)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Code != CodePositioningTimeout {
		t.Fatalf("errors = %+v, want one positioning_timeout", snap.Errors)
	}
}

func TestInvalidTransitionsAreRejectedWithoutMutation(t *testing.T) {
	store := newFakeStore()
	provider := positioning.NewScripted()
	clock := &ManualClock{Current: time.Unix(1700000000, 0)}
	e := newTestEngine(t, store, provider, clock)

	tests := []struct {
		name string
		call func() error
	}{
		{"pause while idle", func() error { _, err := e.Pause(); return err }},
		{"resume while idle", func() error { _, err := e.Resume(); return err }},
		{"complete while idle", func() error { _, err := e.Complete(context.Background()); return err }},
		{"cancel while idle", func() error { _, err := e.Cancel(); return err }},
		{"waypoint while idle", func() error { _, err := e.AddWaypoint(models.WaypointKindRest, nil, nil); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !IsInvariantViolation(err) {
				t.Fatalf("err = %v, want invariant violation", err)
			}
			if e.Status() != StatusIdle {
				t.Fatalf("status mutated to %v", e.Status())
			}
		})
	}

	if got := store.createCalls + store.updateCalls + store.deleteCalls; got != 0 {
		t.Errorf("storage touched %d times by rejected commands", got)
	}
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	e, store, _, _ := startedEngine(t)

	_, err := e.Start(context.Background(), &tokyo)
	if !IsInvariantViolation(err) {
		t.Fatalf("err = %v, want invariant violation", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1 (second start queued nothing)", store.createCalls)
	}
}

func TestResumeWhilePausedThenPauseAgain(t *testing.T) {
	e, _, _, clock := startedEngine(t)

	if _, err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	// Pausing a paused session is rejected, not double counted.
	if _, err := e.Pause(); !IsInvariantViolation(err) {
		t.Fatalf("second pause err = %v, want invariant violation", err)
	}

	clock.Advance(30 * time.Second)
	if _, err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := e.Snapshot().ElapsedSeconds; got != 0 {
		t.Fatalf("elapsed = %ds, want 0 (all time was paused)", got)
	}
}

func TestCompleteFinalizesTrip(t *testing.T) {
	e, store, provider, clock := startedEngine(t)

	clock.Advance(time.Minute)
	provider.Emit(fixNear(tokyo, 0.002, clock.Now()))
	clock.Advance(time.Minute)

	trip, err := e.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if trip.Status != models.TripStatusCompleted {
		t.Fatalf("status = %v, want completed", trip.Status)
	}
	if trip.EndTime == nil || trip.TotalDistanceKm == nil || trip.DurationSeconds == nil {
		t.Fatal("finalized trip missing end time or totals")
	}
	last := trip.Waypoints[len(trip.Waypoints)-1]
	if last.Kind != models.WaypointKindEnd {
		t.Fatalf("last waypoint kind = %v, want end", last.Kind)
	}
	for i := 1; i < len(trip.Waypoints); i++ {
		if trip.Waypoints[i].Timestamp.Before(trip.Waypoints[i-1].Timestamp) {
			t.Fatal("waypoint timestamps are not non-decreasing")
		}
	}

	if e.Status() != StatusIdle {
		t.Fatalf("engine status = %v, want idle after complete", e.Status())
	}
	if provider.SubscriberCount() != 0 {
		t.Error("watch subscription leaked past complete")
	}

	stored, _ := store.GetByID(trip.ID)
	if stored == nil || stored.Status != models.TripStatusCompleted {
		t.Fatalf("stored trip = %+v, want completed", stored)
	}
}

func TestCompleteStorageFailureKeepsSession(t *testing.T) {
	e, store, _, clock := startedEngine(t)
	clock.Advance(time.Minute)

	store.mu.Lock()
	store.failUpdate = errors.New("database is locked")
	store.mu.Unlock()

	_, err := e.Complete(context.Background())
	if !IsStorageError(err) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if e.Status() != StatusActive {
		t.Fatalf("status = %v, want active (session never silently dropped)", e.Status())
	}

	// Explicit retry after storage recovers.
	store.mu.Lock()
	store.failUpdate = nil
	store.mu.Unlock()

	trip, err := e.Complete(context.Background())
	if err != nil {
		t.Fatalf("retry complete: %v", err)
	}
	if trip.Status != models.TripStatusCompleted {
		t.Fatalf("status = %v, want completed", trip.Status)
	}
}

func TestCancelDeletesRecord(t *testing.T) {
	e, store, provider, _ := startedEngine(t)
	id := e.Snapshot().TripID

	if _, err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if e.Status() != StatusIdle {
		t.Fatalf("status = %v, want idle", e.Status())
	}
	if provider.SubscriberCount() != 0 {
		t.Error("watch subscription leaked past cancel")
	}

	stored, _ := store.GetByID(id)
	if stored != nil {
		t.Fatalf("record survived cancel: %+v", stored)
	}
}

// Scenario E: a save tick landing after cancel finds a clean session
// and writes nothing; the store holds either pre-save or post-save
// content, never a partial record.
func TestCancelSupersedesLateSaveTick(t *testing.T) {
	e, store, provider, clock := startedEngine(t)
	id := e.Snapshot().TripID

	clock.Advance(time.Minute)
	provider.Emit(fixNear(tokyo, 0.002, clock.Now()))

	if _, err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	e.saveTick() // the tick that was racing the cancel

	if got := store.updates(); got != 0 {
		t.Fatalf("late tick persisted %d times after cancel", got)
	}
	if stored, _ := store.GetByID(id); stored != nil {
		t.Fatalf("cancelled record resurrected: %+v", stored)
	}
}

func TestAddWaypointKinds(t *testing.T) {
	e, _, _, clock := startedEngine(t)

	label := "family mart"
	note := "coffee"
	if _, err := e.AddWaypoint(models.WaypointKindRest, &label, &note); err != nil {
		t.Fatalf("add waypoint: %v", err)
	}
	if _, err := e.AddWaypoint(models.WaypointKind("teleport"), nil, nil); err == nil {
		t.Fatal("unknown kind accepted")
	}

	// Explicit waypoints are allowed while paused.
	clock.Advance(10 * time.Second)
	if _, err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := e.AddWaypoint(models.WaypointKindParking, nil, nil); err != nil {
		t.Fatalf("add waypoint while paused: %v", err)
	}

	snap := e.Snapshot()
	if got := len(snap.Waypoints); got != 3 {
		t.Fatalf("waypoints = %d, want 3", got)
	}
	if snap.Waypoints[1].Label == nil || *snap.Waypoints[1].Label != label {
		t.Errorf("label not preserved: %+v", snap.Waypoints[1])
	}
}

func TestDismissError(t *testing.T) {
	store := newFakeStore()
	provider := positioning.NewScripted()
	provider.SetAvailable(false)
	clock := &ManualClock{Current: time.Unix(1700000000, 0)}
	e := newTestEngine(t, store, provider, clock)

	e.Start(context.Background(), nil) // records positioning_unavailable

	if err := e.DismissError(1); err == nil {
		t.Fatal("out-of-range dismiss accepted")
	}
	if err := e.DismissError(0); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if got := len(e.Snapshot().Errors); got != 0 {
		t.Fatalf("errors after dismiss = %d, want 0", got)
	}
}

func TestConcurrentFixesAreSerialized(t *testing.T) {
	e, _, _, clock := startedEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.onFix(fixNear(tokyo, 0.002*float64(i%10), clock.Now()))
		}(i)
	}
	wg.Wait()

	// Every mutation went through the lock: the waypoint list is
	// consistent and sequenced without gaps.
	snap := e.Snapshot()
	for i, w := range snap.Waypoints {
		if w.Seq != i {
			t.Fatalf("waypoint %d has seq %d", i, w.Seq)
		}
	}
}
