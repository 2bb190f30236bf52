package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/shinoburc/driving-report-go/internal/api"
	"github.com/shinoburc/driving-report-go/internal/config"
	"github.com/shinoburc/driving-report-go/internal/database"
	"github.com/shinoburc/driving-report-go/internal/positioning"
	"github.com/shinoburc/driving-report-go/internal/repository"
	"github.com/shinoburc/driving-report-go/internal/service"
	"github.com/shinoburc/driving-report-go/internal/session"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	repo := repository.NewTripRepository(db)

	provider := positioning.NewSimulator(positioning.SimulatorConfig{
		StartLat:   cfg.SimStartLat,
		StartLon:   cfg.SimStartLon,
		SpeedKmh:   cfg.SimSpeedKmh,
		BearingDeg: cfg.SimBearingDeg,
	})

	engine := session.NewEngine(session.Config{
		ThresholdKm:      cfg.WaypointThresholdKm,
		AutoSaveInterval: cfg.AutoSaveInterval(),
		FixTimeout:       cfg.FixTimeout(),
		FixRetries:       cfg.FixRetries,
	}, repo, provider, session.SystemClock{}, log)

	if trip := engine.Recoverable(); trip != nil {
		log.Info().Str("trip_id", trip.ID).Msg("interrupted trip awaits recovery")
	}

	trips := service.NewTripService(repo)
	router := api.SetupRouter(cfg, engine, trips, log)

	log.Info().Str("addr", cfg.ServerAddr).Msg("server starting")
	if err := router.Run(cfg.ServerAddr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
