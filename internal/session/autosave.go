package session

import "time"

// DefaultAutoSaveInterval is the period between auto-save ticks.
const DefaultAutoSaveInterval = 30 * time.Second

// autoSaver owns the periodic persistence timer of one session. It is
// created when the session enters Active and destroyed on every
// terminal transition; nothing outlives the session that started it.
type autoSaver struct {
	interval time.Duration
	tick     func()
	stop     chan struct{}
}

func newAutoSaver(interval time.Duration, tick func()) *autoSaver {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	return &autoSaver{interval: interval, tick: tick, stop: make(chan struct{})}
}

func (a *autoSaver) start() {
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				a.tick()
			}
		}
	}()
}

// halt signals the timer goroutine without waiting for it. The tick
// callback serializes on the engine mutex, so a tick already in flight
// lands after the command that called halt and sees a clean session.
func (a *autoSaver) halt() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
}
