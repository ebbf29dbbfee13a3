package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// PowerState is a point-in-time battery reading.
type PowerState struct {
	ChargePercent int
	ExternalPower bool
}

// PowerSource exposes current battery telemetry.
type PowerSource interface {
	State(ctx context.Context) (PowerState, error)
}

// AlertPresenter is the presentation collaborator for fired alerts.
// Present is fire-and-forget: the decision core consumes no result.
type AlertPresenter interface {
	Present(ctx context.Context, tier AlertTier, duration time.Duration, pulses int)
}

// SurfaceGate reports whether the physical display affordance the slot lives
// in exists and is enabled. Unavailable is treated like feature-disabled.
type SurfaceGate interface {
	Available() bool
}

// ForecastSource retrieves forecast data for a location.
type ForecastSource interface {
	Fetch(ctx context.Context, loc LocationRef) (*ForecastPayload, error)
}
