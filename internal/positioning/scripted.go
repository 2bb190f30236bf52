package positioning

import (
	"context"
	"sync"

	"github.com/shinoburc/driving-report-go/internal/models"
)

// Scripted is a provider fed by hand. Tests (and the session engine's
// own tests in particular) push fixes into it and observe how the
// engine reacts; it also backs manual replay of captured drives.
type Scripted struct {
	mu          sync.Mutex
	available   bool
	oneShot     []models.Fix // queue consumed by CurrentFix
	subscribers map[int]func(models.Fix)
	nextSubID   int
}

// NewScripted creates an available scripted provider with no queued
// fixes.
func NewScripted() *Scripted {
	return &Scripted{available: true, subscribers: make(map[int]func(models.Fix))}
}

// SetAvailable toggles availability reporting.
func (s *Scripted) SetAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = v
}

// QueueFix appends a fix to the one-shot queue consumed by CurrentFix.
func (s *Scripted) QueueFix(fix models.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneShot = append(s.oneShot, fix)
}

// Emit delivers a fix to every active watch subscriber, synchronously.
func (s *Scripted) Emit(fix models.Fix) {
	s.mu.Lock()
	subs := make([]func(models.Fix), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(fix)
	}
}

// SubscriberCount returns the number of active watch subscriptions.
func (s *Scripted) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// CurrentFix pops the next queued fix. With an empty queue the request
// blocks until the context expires, modelling a device that never
// answers.
func (s *Scripted) CurrentFix(ctx context.Context) (models.Fix, error) {
	s.mu.Lock()
	if !s.available {
		s.mu.Unlock()
		return models.Fix{}, ErrUnavailable
	}
	if len(s.oneShot) > 0 {
		fix := s.oneShot[0]
		s.oneShot = s.oneShot[1:]
		s.mu.Unlock()
		return fix, nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return models.Fix{}, ctx.Err()
}

// Watch registers a subscriber for emitted fixes.
func (s *Scripted) Watch(onFix func(models.Fix)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return nil, ErrUnavailable
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = onFix
	return &scriptedSub{provider: s, id: id}, nil
}

// Available reports the scripted availability flag.
func (s *Scripted) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

type scriptedSub struct {
	provider *Scripted
	id       int
	once     sync.Once
}

func (s *scriptedSub) Stop() {
	s.once.Do(func() {
		s.provider.mu.Lock()
		delete(s.provider.subscribers, s.id)
		s.provider.mu.Unlock()
	})
}
