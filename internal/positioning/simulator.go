package positioning

import (
	"context"
	"sync"
	"time"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/spatial"
)

// SimulatorConfig describes a constant-velocity playback route.
type SimulatorConfig struct {
	StartLat   float64
	StartLon   float64
	SpeedKmh   float64
	BearingDeg float64
	Interval   time.Duration
	AccuracyM  float64
}

// Simulator generates fixes along a straight constant-velocity track.
// It stands in for device hardware when the server runs on a machine
// without a location provider.
type Simulator struct {
	cfg SimulatorConfig

	mu       sync.Mutex
	lat, lon float64
}

// NewSimulator creates a simulator at the configured start coordinate.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.AccuracyM <= 0 {
		cfg.AccuracyM = 5
	}
	return &Simulator{cfg: cfg, lat: cfg.StartLat, lon: cfg.StartLon}
}

// CurrentFix returns the simulator's present position.
func (s *Simulator) CurrentFix(ctx context.Context) (models.Fix, error) {
	if err := ctx.Err(); err != nil {
		return models.Fix{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Fix{
		Latitude:  s.lat,
		Longitude: s.lon,
		AccuracyM: s.cfg.AccuracyM,
		Timestamp: time.Now(),
	}, nil
}

// Watch advances the position every interval and delivers a fix.
func (s *Simulator) Watch(onFix func(models.Fix)) (Subscription, error) {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onFix(s.advance())
			}
		}
	}()

	return &simulatorSub{stop: stop}, nil
}

// Available always reports true; the simulator needs no hardware.
func (s *Simulator) Available() bool { return true }

func (s *Simulator) advance() models.Fix {
	s.mu.Lock()
	defer s.mu.Unlock()

	stepMeters := s.cfg.SpeedKmh / 3.6 * s.cfg.Interval.Seconds()
	s.lat, s.lon = spatial.DestinationPoint(s.lat, s.lon, s.cfg.BearingDeg, stepMeters)

	return models.Fix{
		Latitude:  s.lat,
		Longitude: s.lon,
		AccuracyM: s.cfg.AccuracyM,
		Timestamp: time.Now(),
	}
}

type simulatorSub struct {
	stop chan struct{}
	once sync.Once
}

// Stop signals the playback goroutine. It does not wait: the consumer
// may be holding the lock its own fix callback needs.
func (s *simulatorSub) Stop() {
	s.once.Do(func() { close(s.stop) })
}
