package types

import (
	"fmt"
	"time"
)

// EventKind identifies the kind of forecast anomaly a WeatherEvent surfaces.
type EventKind string

const (
	EventPrecipStart    EventKind = "precip_start"
	EventPrecipStop     EventKind = "precip_stop"
	EventConditionShift EventKind = "condition_shift"
	EventTempRise       EventKind = "temp_rise"
	EventTempDrop       EventKind = "temp_drop"
)

// TempSwing reports whether the kind is one of the temperature swing kinds.
func (k EventKind) TempSwing() bool {
	return k == EventTempRise || k == EventTempDrop
}

// WeatherEvent is one forecast anomaly worth surfacing. Events are value
// objects: created whole by the detector, never mutated, superseded wholesale
// on the next detection pass.
type WeatherEvent struct {
	// ID is stable across refreshes: two detections of the same kind starting
	// in the same minute produce the same ID, so re-detection can recognize
	// "the same" event.
	ID       string    `json:"id"`
	Kind     EventKind `json:"kind"`
	Start    time.Time `json:"start"`
	Severity float64   `json:"severity"` // [0,1]
	Title    string    `json:"title"`

	// DeltaC is set for temperature swing events.
	DeltaC float64 `json:"delta_c,omitempty"`
	// FromBucket/ToBucket are set for condition shift events.
	FromBucket ConditionBucket `json:"from_bucket,omitempty"`
	ToBucket   ConditionBucket `json:"to_bucket,omitempty"`
}

// EventID derives the stable event identifier from the kind and the start
// time floored to the minute.
func EventID(kind EventKind, start time.Time) string {
	return fmt.Sprintf("%s-%s", kind, start.UTC().Truncate(time.Minute).Format("200601021504"))
}
