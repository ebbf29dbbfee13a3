package types

// SlotContent is what occupies the single shared display slot.
type SlotContent string

const (
	SlotSystemMetrics SlotContent = "system_metrics"
	SlotWeather       SlotContent = "weather"
)

// AlertTier classifies how insistently an alert is presented.
type AlertTier string

const (
	TierBaseline AlertTier = "baseline"
	TierElevated AlertTier = "elevated"
	TierSevere   AlertTier = "severe"
)
