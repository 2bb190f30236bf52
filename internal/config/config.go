package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration, sourced from environment
// variables with sensible offline defaults.
type Config struct {
	ServerAddr string `mapstructure:"SERVER_ADDR"`
	DBPath     string `mapstructure:"DB_PATH"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	AuthEnabled bool   `mapstructure:"AUTH_ENABLED"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	// Recording engine tuning
	WaypointThresholdKm float64 `mapstructure:"WAYPOINT_THRESHOLD_KM"`
	AutoSaveIntervalSec int     `mapstructure:"AUTOSAVE_INTERVAL_SEC"`
	FixTimeoutSec       int     `mapstructure:"FIX_TIMEOUT_SEC"`
	FixRetries          int     `mapstructure:"FIX_RETRIES"`

	// Positioning source: "simulator" is the only built-in provider.
	PositioningMode string  `mapstructure:"POSITIONING_MODE"`
	SimStartLat     float64 `mapstructure:"SIM_START_LAT"`
	SimStartLon     float64 `mapstructure:"SIM_START_LON"`
	SimSpeedKmh     float64 `mapstructure:"SIM_SPEED_KMH"`
	SimBearingDeg   float64 `mapstructure:"SIM_BEARING_DEG"`
}

// Load reads configuration from the environment.
func Load() *Config {
	viper.AutomaticEnv()
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("DB_PATH", "./data/trips.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("AUTH_ENABLED", false)
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")
	viper.SetDefault("WAYPOINT_THRESHOLD_KM", 0.1)
	viper.SetDefault("AUTOSAVE_INTERVAL_SEC", 30)
	viper.SetDefault("FIX_TIMEOUT_SEC", 5)
	viper.SetDefault("FIX_RETRIES", 2)
	viper.SetDefault("POSITIONING_MODE", "simulator")
	viper.SetDefault("SIM_START_LAT", 35.6812)
	viper.SetDefault("SIM_START_LON", 139.7671)
	viper.SetDefault("SIM_SPEED_KMH", 40.0)
	viper.SetDefault("SIM_BEARING_DEG", 90.0)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return &cfg
}

// AutoSaveInterval returns the auto-save period as a duration.
func (c *Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.AutoSaveIntervalSec) * time.Second
}

// FixTimeout returns the per-attempt positioning window as a duration.
func (c *Config) FixTimeout() time.Duration {
	return time.Duration(c.FixTimeoutSec) * time.Second
}
