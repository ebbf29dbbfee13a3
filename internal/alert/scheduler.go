// Package alert turns the currently detected weather event into at most one
// notification, fired at the event's start minus the configured lead time.
//
// Reschedule is idempotent and cheap: upstream calls it on every change, and
// it always leaves at most one wake-up armed. Dedup (an event ID never fires
// twice) and a global cooldown between firings enforce the anti-spam
// guarantees; every firing re-validates the full gate against the inputs at
// fire time, since the detected event may have changed while waiting.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skybar/internal/types"
)

// Presentation profiles per tier.
const (
	baselineDuration = 1200 * time.Millisecond
	baselinePulses   = 2
	elevatedDuration = 2 * time.Second
	elevatedPulses   = 3
	severeDuration   = 2500 * time.Millisecond
	severePulses     = 4
)

// elevatedSeverityFloor is the precip-start severity at which the alert is
// promoted from baseline to elevated.
const elevatedSeverityFloor = 0.6

// Waker is the scheduler's single wake-up timer.
type Waker interface {
	Arm(d time.Duration, fn func())
	Cancel()
	Pending() bool
}

// Recorder receives fired alerts for diagnostics. Must not block.
type Recorder interface {
	RecordAlert(ev *types.WeatherEvent, tier types.AlertTier, at time.Time)
}

// Inputs is the point-in-time snapshot a reschedule consumes.
type Inputs struct {
	WeatherEnabled   bool
	Settings         types.AlertSettings
	Event            *types.WeatherEvent
	HasLocation      bool
	SurfaceAvailable bool
}

// InputFunc supplies the current input snapshot.
type InputFunc func() Inputs

// Config holds the scheduler's collaborators.
type Config struct {
	Clock     types.Clock
	Waker     Waker
	Inputs    InputFunc
	Presenter types.AlertPresenter
	Recorder  Recorder // optional
	Logger    *slog.Logger
}

// Snapshot is the scheduler's externally visible state.
type Snapshot struct {
	LastTriggeredEventID string    `json:"last_triggered_event_id,omitempty"`
	LastTriggeredAt      time.Time `json:"last_triggered_at"`
	Fired                int       `json:"fired"`
	WakeupPending        bool      `json:"wakeup_pending"`
}

// Scheduler schedules one deduplicated, cooldown-protected alert for the
// current event. Reschedule must be called from the service loop; Snapshot
// is safe from any goroutine.
type Scheduler struct {
	clock     types.Clock
	waker     Waker
	inputs    InputFunc
	presenter types.AlertPresenter
	recorder  Recorder
	logger    *slog.Logger

	mu                   sync.Mutex
	lastTriggeredEventID string
	lastTriggeredAt      time.Time
	fired                int
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:     cfg.Clock,
		waker:     cfg.Waker,
		inputs:    cfg.Inputs,
		presenter: cfg.Presenter,
		recorder:  cfg.Recorder,
		logger:    logger,
	}
}

// Snapshot returns a copy of the scheduler's visible state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		LastTriggeredEventID: s.lastTriggeredEventID,
		LastTriggeredAt:      s.lastTriggeredAt,
		Fired:                s.fired,
		WakeupPending:        s.waker.Pending(),
	}
}

// Reschedule re-evaluates the pending alert against a fresh input snapshot.
// May be called arbitrarily often; at most one wake-up survives it.
func (s *Scheduler) Reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waker.Cancel()
	now := s.clock.Now()
	in := s.inputs()

	ev := s.eligibleLocked(in, now)
	if ev == nil {
		return
	}

	fireAt := ev.Start.Add(-in.Settings.LeadTime)
	if !fireAt.After(now) {
		// Already inside the lead time; fire now (fireLocked re-validates).
		s.fireLocked(ev.ID, now)
		return
	}

	expectID := ev.ID
	s.waker.Arm(fireAt.Sub(now), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fireLocked(expectID, s.clock.Now())
	})
}

// eligibleLocked applies the full gate: feature and rule toggles, surface
// and location availability, per-event dedup, and the global cooldown.
// Returns the event to alert for, or nil.
func (s *Scheduler) eligibleLocked(in Inputs, now time.Time) *types.WeatherEvent {
	if !in.WeatherEnabled || !in.Settings.Enabled || !in.HasLocation || !in.SurfaceAvailable {
		return nil
	}
	ev := in.Event
	if ev == nil || !categoryEnabled(in.Settings, ev) {
		return nil
	}
	if ev.ID == s.lastTriggeredEventID {
		return nil
	}
	if !s.lastTriggeredAt.IsZero() && now.Sub(s.lastTriggeredAt) < in.Settings.Cooldown {
		return nil
	}
	return ev
}

// fireLocked re-validates against the current inputs and, if the expected
// event is still the one to alert for, presents the notification.
func (s *Scheduler) fireLocked(expectID string, now time.Time) {
	in := s.inputs()
	ev := s.eligibleLocked(in, now)
	if ev == nil || ev.ID != expectID {
		// Upstream moved on while we were waiting; nothing to do.
		return
	}

	s.lastTriggeredEventID = ev.ID
	s.lastTriggeredAt = now
	s.fired++

	tier := classifyTier(ev)
	duration, pulses := tierProfile(tier)
	s.presenter.Present(context.Background(), tier, duration, pulses)
	if s.recorder != nil {
		s.recorder.RecordAlert(ev, tier, now)
	}
	s.logger.Info("alert fired",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"tier", tier,
		"severity", ev.Severity,
	)
}

// categoryEnabled maps an event kind to its rule toggle. Precipitation stops
// are deliberately excluded: "clearing up" is surfaced in place, never
// pushed.
func categoryEnabled(s types.AlertSettings, ev *types.WeatherEvent) bool {
	switch ev.Kind {
	case types.EventPrecipStart:
		return s.PrecipAlerts
	case types.EventConditionShift:
		if ev.ToBucket == types.BucketThunder {
			return s.StormAlerts
		}
		return s.PrecipAlerts
	case types.EventTempRise, types.EventTempDrop:
		return s.TempAlerts
	default: // EventPrecipStop
		return false
	}
}

// classifyTier maps an event to its presentation tier.
func classifyTier(ev *types.WeatherEvent) types.AlertTier {
	switch {
	case ev.Kind == types.EventConditionShift && ev.ToBucket == types.BucketThunder:
		return types.TierSevere
	case ev.Kind == types.EventPrecipStart && ev.Severity >= elevatedSeverityFloor:
		return types.TierElevated
	default:
		return types.TierBaseline
	}
}

func tierProfile(tier types.AlertTier) (time.Duration, int) {
	switch tier {
	case types.TierSevere:
		return severeDuration, severePulses
	case types.TierElevated:
		return elevatedDuration, elevatedPulses
	default:
		return baselineDuration, baselinePulses
	}
}
