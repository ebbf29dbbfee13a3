package types

import "time"

// DetectionSettings tunes the forecast event detector.
//
// Callers must guarantee PrecipStopThreshold < PrecipStartThreshold (the
// hysteresis that keeps start/stop detection from oscillating). The detector
// assumes it; config loading enforces it.
type DetectionSettings struct {
	Enabled              bool
	PrecipStartThreshold float64
	PrecipStopThreshold  float64
	TempDeltaThresholdC  float64
	TempDeltaWindowHours int
}

// SlotSettings is the orchestrator's point-in-time tunable snapshot.
type SlotSettings struct {
	// Enabled is the weather feature master switch.
	Enabled bool
	// ShowWeather requests the weather content for the shared slot at all.
	ShowWeather bool
	// SmartSwitching allows detector events to boost weather into the slot.
	SmartSwitching bool

	RotationEnabled  bool
	RotationInterval time.Duration

	// MinDwell is the minimum time content stays shown once switched to.
	MinDwell time.Duration
	// EventBoost is how long an event peek holds the slot.
	EventBoost time.Duration
	// Cooldown spaces out consecutive event boosts.
	Cooldown time.Duration
}

// AlertSettings tunes the one-shot alert scheduler.
type AlertSettings struct {
	Enabled bool

	// Per-category toggles.
	PrecipAlerts bool
	StormAlerts  bool
	TempAlerts   bool

	// LeadTime is how far before an event's start the alert fires.
	LeadTime time.Duration
	// Cooldown is the minimum spacing between any two alert firings.
	Cooldown time.Duration
}
