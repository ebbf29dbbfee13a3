// Package config defines the global configuration structure for the skybar
// daemon. Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any invalid value causes the daemon to exit immediately on startup
// (fail fast).
package config

import (
	"time"

	"skybar/internal/types"
)

// Config is the top-level configuration struct for the skybar daemon.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"skybard"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Location  LocationConfig
	Detection DetectionConfig
	Slot      SlotConfig
	Alert     AlertConfig
	Forecast  ForecastConfig
	Power     PowerConfig
	History   HistoryConfig
	Status    StatusConfig
	Engine    EngineConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// LocationConfig holds the forecast location. The zero coordinate pair is
// treated as "no location configured"; the slot and alert gates then force
// the system-metrics content and suppress alerts.
type LocationConfig struct {
	Latitude  float64 `envconfig:"LOCATION_LATITUDE" default:"0" validate:"gte=-90,lte=90"`
	Longitude float64 `envconfig:"LOCATION_LONGITUDE" default:"0" validate:"gte=-180,lte=180"`
	Name      string  `envconfig:"LOCATION_NAME"`
}

// Configured reports whether a location has been set.
func (c LocationConfig) Configured() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

// Ref converts the config into the domain location reference.
func (c LocationConfig) Ref() types.LocationRef {
	return types.LocationRef{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Name:      c.Name,
	}
}

// DetectionConfig tunes the forecast event detector. The stop threshold must
// stay strictly below the start threshold; the gap is the hysteresis that
// keeps precipitation start/stop detection from oscillating.
type DetectionConfig struct {
	Enabled              bool    `envconfig:"DETECT_ENABLED" default:"true"`
	PrecipStartThreshold float64 `envconfig:"DETECT_PRECIP_START" default:"0.4" validate:"gt=0,lte=1"`
	PrecipStopThreshold  float64 `envconfig:"DETECT_PRECIP_STOP" default:"0.25" validate:"gt=0,ltfield=PrecipStartThreshold"`
	TempDeltaThresholdC  float64 `envconfig:"DETECT_TEMP_DELTA_C" default:"8" validate:"gt=0"`
	TempDeltaWindowHours int     `envconfig:"DETECT_TEMP_WINDOW_HOURS" default:"6" validate:"gte=1,lte=12"`
}

// Settings converts the config into the detector's runtime settings.
func (c DetectionConfig) Settings() types.DetectionSettings {
	return types.DetectionSettings{
		Enabled:              c.Enabled,
		PrecipStartThreshold: c.PrecipStartThreshold,
		PrecipStopThreshold:  c.PrecipStopThreshold,
		TempDeltaThresholdC:  c.TempDeltaThresholdC,
		TempDeltaWindowHours: c.TempDeltaWindowHours,
	}
}

// SlotConfig tunes the display slot orchestrator.
type SlotConfig struct {
	Enabled          bool          `envconfig:"WEATHER_ENABLED" default:"true"`
	ShowWeather      bool          `envconfig:"SLOT_SHOW_WEATHER" default:"true"`
	SmartSwitching   bool          `envconfig:"SLOT_SMART_SWITCHING" default:"true"`
	RotationEnabled  bool          `envconfig:"SLOT_ROTATION_ENABLED" default:"true"`
	RotationInterval time.Duration `envconfig:"SLOT_ROTATION_INTERVAL" default:"15m" validate:"gte=1m"`
	MinDwell         time.Duration `envconfig:"SLOT_MIN_DWELL" default:"10s" validate:"gte=1s"`
	EventBoost       time.Duration `envconfig:"SLOT_EVENT_BOOST" default:"45s" validate:"gte=1s"`
	Cooldown         time.Duration `envconfig:"SLOT_COOLDOWN" default:"5m" validate:"gte=0"`
}

// Settings converts the config into the orchestrator's runtime settings.
func (c SlotConfig) Settings() types.SlotSettings {
	return types.SlotSettings{
		Enabled:          c.Enabled,
		ShowWeather:      c.ShowWeather,
		SmartSwitching:   c.SmartSwitching,
		RotationEnabled:  c.RotationEnabled,
		RotationInterval: c.RotationInterval,
		MinDwell:         c.MinDwell,
		EventBoost:       c.EventBoost,
		Cooldown:         c.Cooldown,
	}
}

// AlertConfig tunes the alert scheduler.
type AlertConfig struct {
	Enabled      bool          `envconfig:"ALERTS_ENABLED" default:"true"`
	PrecipAlerts bool          `envconfig:"ALERTS_PRECIP" default:"true"`
	StormAlerts  bool          `envconfig:"ALERTS_STORM" default:"true"`
	TempAlerts   bool          `envconfig:"ALERTS_TEMP" default:"true"`
	LeadTime     time.Duration `envconfig:"ALERTS_LEAD_TIME" default:"30m" validate:"gte=1m"`
	Cooldown     time.Duration `envconfig:"ALERTS_COOLDOWN" default:"5m" validate:"gte=0"`
}

// Settings converts the config into the alert scheduler's runtime settings.
func (c AlertConfig) Settings() types.AlertSettings {
	return types.AlertSettings{
		Enabled:      c.Enabled,
		PrecipAlerts: c.PrecipAlerts,
		StormAlerts:  c.StormAlerts,
		TempAlerts:   c.TempAlerts,
		LeadTime:     c.LeadTime,
		Cooldown:     c.Cooldown,
	}
}

// ForecastConfig holds the upstream forecast API and local cache settings.
type ForecastConfig struct {
	BaseURL         string        `envconfig:"FORECAST_BASE_URL" default:"https://api.open-meteo.com" validate:"required,url"`
	RequestTimeout  time.Duration `envconfig:"FORECAST_REQUEST_TIMEOUT" default:"10s" validate:"gte=1s"`
	MaxRetries      int           `envconfig:"FORECAST_MAX_RETRIES" default:"3" validate:"gte=0,lte=10"`
	RefreshInterval time.Duration `envconfig:"FORECAST_REFRESH_INTERVAL" default:"15m" validate:"gte=1m"`
	// CacheDir for the compressed last-payload snapshot. Empty resolves to
	// the user cache directory at startup.
	CacheDir string `envconfig:"FORECAST_CACHE_DIR"`
}

// PowerConfig holds the battery state source settings.
type PowerConfig struct {
	SysfsPath    string        `envconfig:"POWER_SYSFS_PATH" default:"/sys/class/power_supply"`
	PollInterval time.Duration `envconfig:"POWER_POLL_INTERVAL" default:"30s" validate:"gte=1s"`
}

// HistoryConfig holds the diagnostics database settings.
type HistoryConfig struct {
	// Path to the sqlite file. Empty resolves to the user state directory
	// at startup.
	Path string `envconfig:"HISTORY_DB_PATH"`
	// MaxRows caps each history table; the oldest rows are pruned past it.
	MaxRows int `envconfig:"HISTORY_MAX_ROWS" default:"500" validate:"gte=10"`
}

// StatusConfig holds the loopback status server settings.
type StatusConfig struct {
	Enabled bool   `envconfig:"STATUS_ENABLED" default:"true"`
	Addr    string `envconfig:"STATUS_ADDR" default:"127.0.0.1:8790" validate:"hostname_port"`
}

// EngineConfig tunes the recompute engine.
type EngineConfig struct {
	// Debounce is the quiet period that coalesces bursts of input changes
	// into a single recompute wave.
	Debounce time.Duration `envconfig:"RECOMPUTE_DEBOUNCE" default:"100ms" validate:"gte=10ms"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
