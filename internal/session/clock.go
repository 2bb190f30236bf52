package session

import "time"

// Clock provides time information for the session engine.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock provides actual system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock provides controllable time for testing.
type ManualClock struct {
	Current time.Time
}

// Now returns the manual time.
func (c *ManualClock) Now() time.Time {
	return c.Current
}

// Advance moves the manual time forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}

// Stopwatch is the pause-aware elapsed-time clock of a session. The
// authoritative elapsed value is always recomputed from wall-clock
// timestamps, so delayed reads self-correct:
//
//	elapsed = now - startedAt - cumulative pause
type Stopwatch struct {
	clock Clock

	startedAt    time.Time
	pauseStarted *time.Time
	pausedTotal  time.Duration
}

// NewStopwatch creates a stopwatch that starts counting now.
func NewStopwatch(clock Clock) *Stopwatch {
	return &Stopwatch{clock: clock, startedAt: clock.Now()}
}

// Pause freezes the running tally. Pausing an already paused stopwatch
// is a no-op, so a duplicate pause never inflates the cumulative pause
// duration.
func (s *Stopwatch) Pause() {
	if s.pauseStarted != nil {
		return
	}
	now := s.clock.Now()
	s.pauseStarted = &now
}

// Resume adds the elapsed pause interval to the cumulative pause
// duration. Resuming a running stopwatch is a no-op.
func (s *Stopwatch) Resume() {
	if s.pauseStarted == nil {
		return
	}
	s.pausedTotal += s.clock.Now().Sub(*s.pauseStarted)
	s.pauseStarted = nil
}

// Paused reports whether the stopwatch is currently frozen.
func (s *Stopwatch) Paused() bool {
	return s.pauseStarted != nil
}

// PausedTotal returns the cumulative pause duration, excluding any
// pause still in progress.
func (s *Stopwatch) PausedTotal() time.Duration {
	return s.pausedTotal
}

// Elapsed returns the recording time: wall-clock time since start minus
// all pause time, including a pause still in progress.
func (s *Stopwatch) Elapsed() time.Duration {
	end := s.clock.Now()
	paused := s.pausedTotal
	if s.pauseStarted != nil {
		paused += end.Sub(*s.pauseStarted)
	}
	return end.Sub(s.startedAt) - paused
}

// Rebase resets the stopwatch so that Elapsed() reads the given value
// right now, discarding pause history. Used when recovering a session
// whose process died: downtime must not count as recording time.
func (s *Stopwatch) Rebase(elapsed time.Duration) {
	s.startedAt = s.clock.Now().Add(-elapsed)
	s.pauseStarted = nil
	s.pausedTotal = 0
}
