// Package slot arbitrates the single shared display slot between system
// metrics and weather content.
//
// The orchestrator is a deadline-based state machine: four forward-only
// deadlines (lock, weather, cooldown, rotation) plus a readiness flag. Every
// recompute consumes a fresh input snapshot, advances the deadlines, resolves
// the content to show, and arms at most one wake-up for the earliest future
// deadline. The ordering of the checks matters -- battery criticality
// overrides everything, the dwell guard overrides the desired content.
package slot

import (
	"log/slog"
	"sync"
	"time"

	"skybar/internal/types"
)

const (
	// EventLeadWindow is how far before an event's start the orchestrator
	// begins boosting weather into the slot.
	EventLeadWindow = 90 * time.Minute

	// refreshMinGap throttles opportunistic forecast refresh requests made
	// when a peek begins.
	refreshMinGap = 10 * time.Minute

	// minPeekLock is the floor on the dwell lock, even when the configured
	// minimum dwell is shorter.
	minPeekLock = 2 * time.Second

	// batteryCriticalPercent is the charge at or below which, without
	// external power, system metrics are forced into the slot.
	batteryCriticalPercent = 10
)

// Waker is the orchestrator's single wake-up timer. Arm replaces any pending
// wake-up; Cancel is synchronously effective.
type Waker interface {
	Arm(d time.Duration, fn func())
	Cancel()
	Pending() bool
}

// SwitchRecorder receives content switches for diagnostics. Implementations
// must not block the recompute path.
type SwitchRecorder interface {
	RecordSwitch(from, to types.SlotContent, reason string, at time.Time)
}

// RefreshRequester triggers an out-of-band forecast refresh. Fire-and-forget.
type RefreshRequester interface {
	RequestRefresh(reason string)
}

// Inputs is the point-in-time snapshot a recompute consumes.
type Inputs struct {
	Settings         types.SlotSettings
	Event            *types.WeatherEvent
	Power            types.PowerState
	HasLocation      bool
	SurfaceAvailable bool
}

// InputFunc supplies the current input snapshot. Called once per recompute,
// on the loop goroutine.
type InputFunc func() Inputs

// Config holds the orchestrator's collaborators.
type Config struct {
	Clock     types.Clock
	Waker     Waker
	Inputs    InputFunc
	Recorder  SwitchRecorder   // optional
	Refresher RefreshRequester // optional
	Logger    *slog.Logger
}

// Snapshot is the orchestrator's externally visible state, for the status
// surface.
type Snapshot struct {
	Shown          types.SlotContent `json:"shown"`
	Ready          bool              `json:"ready"`
	LastPeekReason string            `json:"last_peek_reason,omitempty"`
	LockedUntil    time.Time         `json:"locked_until"`
	WeatherUntil   time.Time         `json:"weather_until"`
	CooldownUntil  time.Time         `json:"cooldown_until"`
	NextRotationAt time.Time         `json:"next_rotation_at"`
	Switches       int               `json:"switches"`
	Peeks          map[string]int    `json:"peeks"`
	LastSwitchAt   time.Time         `json:"last_switch_at"`
}

// Orchestrator owns the decision of which content occupies the shared slot.
// Recompute must be called from the service loop; Snapshot and Shown are
// safe from any goroutine.
type Orchestrator struct {
	clock     types.Clock
	waker     Waker
	inputs    InputFunc
	recorder  SwitchRecorder
	refresher RefreshRequester
	logger    *slog.Logger

	// Deadline state. Forward-only while the feature is ready; reset to now
	// when it is not.
	lockedUntil    time.Time
	weatherUntil   time.Time
	cooldownUntil  time.Time
	nextRotationAt time.Time

	ready bool
	shown types.SlotContent

	// Rotation bookkeeping.
	rotationOn       bool
	rotationInterval time.Duration

	lastRefreshReq time.Time
	lastPeekReason string

	// Diagnostics.
	switches     int
	peeks        map[string]int
	lastSwitchAt time.Time

	// mu guards all state above: writes happen only on the service loop,
	// but Snapshot may be called from the status server.
	mu sync.Mutex
}

// New creates an Orchestrator. Initial content is system metrics.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		clock:     cfg.Clock,
		waker:     cfg.Waker,
		inputs:    cfg.Inputs,
		recorder:  cfg.Recorder,
		refresher: cfg.Refresher,
		logger:    logger,
		shown:     types.SlotSystemMetrics,
		peeks:     make(map[string]int),
	}
}

// Shown returns the content currently occupying the slot.
func (o *Orchestrator) Shown() types.SlotContent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shown
}

// Snapshot returns a copy of the orchestrator's visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	peeks := make(map[string]int, len(o.peeks))
	for k, v := range o.peeks {
		peeks[k] = v
	}
	return Snapshot{
		Shown:          o.shown,
		Ready:          o.ready,
		LastPeekReason: o.lastPeekReason,
		LockedUntil:    o.lockedUntil,
		WeatherUntil:   o.weatherUntil,
		CooldownUntil:  o.cooldownUntil,
		NextRotationAt: o.nextRotationAt,
		Switches:       o.switches,
		Peeks:          peeks,
		LastSwitchAt:   o.lastSwitchAt,
	}
}

// Recompute re-evaluates the slot decision against a fresh input snapshot.
// Idempotent and deterministic for a given (now, inputs) pair. Timer fire
// callbacks re-enter here.
func (o *Orchestrator) Recompute() {
	now := o.clock.Now()
	in := o.inputs()

	o.mu.Lock()
	defer o.mu.Unlock()

	// Cancel-then-arm: after this point at most the wake-up armed at the end
	// of this recompute is pending.
	o.waker.Cancel()

	// 1. Feature off, slot not requested, or nothing to show.
	if !in.Settings.Enabled || !in.Settings.ShowWeather || !in.HasLocation || !in.SurfaceAvailable {
		o.resetDeadlines(now)
		o.ready = false
		o.apply(types.SlotSystemMetrics, "weather_unavailable", now)
		return
	}

	// 2. Battery-critical overrides everything. Dropping readiness means the
	// next recompute after recovery re-peeks as if weather just turned on.
	if in.Power.ChargePercent <= batteryCriticalPercent && !in.Power.ExternalPower {
		o.resetDeadlines(now)
		o.ready = false
		o.apply(types.SlotSystemMetrics, "battery_critical", now)
		return
	}

	// 3. Weather just became available: peek it.
	if !o.ready {
		o.ready = true
		o.beginPeek(now, in.Settings, in.Settings.MinDwell, "weather_enabled")
	}

	// 4. Rotation.
	o.stepRotation(now, in.Settings)

	// 5. Event-driven boost.
	if in.Settings.SmartSwitching && in.Event != nil {
		leadStart := in.Event.Start.Add(-EventLeadWindow)
		if !now.Before(leadStart) && !now.Before(o.cooldownUntil) {
			o.beginPeek(now, in.Settings, in.Settings.EventBoost, "event_"+string(in.Event.Kind))
			o.cooldownUntil = now.Add(in.Settings.Cooldown)
		}
	}

	// 6. Resolve desired content.
	desired := types.SlotSystemMetrics
	if now.Before(o.weatherUntil) {
		desired = types.SlotWeather
	}

	// 7. Dwell guard: weather stays up until the lock elapses.
	if o.shown == types.SlotWeather && desired == types.SlotSystemMetrics && now.Before(o.lockedUntil) {
		desired = types.SlotWeather
	}

	// 8. Apply.
	reason := o.lastPeekReason
	if desired == types.SlotSystemMetrics {
		reason = "weather_expired"
	}
	o.apply(desired, reason, now)

	// 9. One wake-up at the earliest future deadline.
	o.armNext(now, in)
}

// stepRotation advances the opt-in periodic peek schedule.
func (o *Orchestrator) stepRotation(now time.Time, s types.SlotSettings) {
	if !s.RotationEnabled || s.RotationInterval <= 0 {
		o.rotationOn = false
		o.nextRotationAt = time.Time{}
		return
	}

	if !o.rotationOn {
		// Just turned on: peek immediately, subject to cooldown.
		o.rotationOn = true
		o.rotationInterval = s.RotationInterval
		if !now.Before(o.cooldownUntil) {
			o.beginPeek(now, s, s.MinDwell, "rotation")
		}
		o.nextRotationAt = now.Add(s.RotationInterval)
		return
	}

	if s.RotationInterval != o.rotationInterval {
		o.rotationInterval = s.RotationInterval
		o.nextRotationAt = now.Add(s.RotationInterval)
	}

	if !now.Before(o.nextRotationAt) && !now.Before(o.cooldownUntil) {
		o.beginPeek(now, s, s.MinDwell, "rotation")
		o.nextRotationAt = now.Add(s.RotationInterval)
	}
	// A rotation due during cooldown stays due; the cooldown deadline wakes
	// us up and the peek happens then.
}

// beginPeek switches the slot toward weather for at least the minimum dwell.
// Deadline updates are monotonic: extend, never shrink.
func (o *Orchestrator) beginPeek(now time.Time, s types.SlotSettings, requested time.Duration, reason string) {
	lock := now.Add(maxDuration(minPeekLock, s.MinDwell))
	if lock.After(o.lockedUntil) {
		o.lockedUntil = lock
	}
	until := now.Add(maxDuration(s.MinDwell, requested))
	if until.After(o.weatherUntil) {
		o.weatherUntil = until
	}
	o.lastPeekReason = reason
	o.peeks[reason]++

	// Peeking is a good moment for fresh data, but not more than once per
	// ten minutes.
	if o.refresher != nil && (o.lastRefreshReq.IsZero() || now.Sub(o.lastRefreshReq) >= refreshMinGap) {
		o.lastRefreshReq = now
		o.refresher.RequestRefresh(reason)
	}
}

// apply sets the shown content, recording the switch if it changed.
func (o *Orchestrator) apply(content types.SlotContent, reason string, now time.Time) {
	if content == o.shown {
		return
	}
	from := o.shown
	o.shown = content
	o.switches++
	o.lastSwitchAt = now
	if o.recorder != nil {
		o.recorder.RecordSwitch(from, content, reason, now)
	}
	o.logger.Info("slot switched",
		"from", from,
		"to", content,
		"reason", reason,
	)
}

// armNext arms the single wake-up for the earliest still-future deadline.
// With no future deadline, nothing is armed.
func (o *Orchestrator) armNext(now time.Time, in Inputs) {
	deadlines := []time.Time{
		o.lockedUntil,
		o.weatherUntil,
		o.cooldownUntil,
		o.nextRotationAt,
	}
	if in.Settings.SmartSwitching && in.Event != nil {
		deadlines = append(deadlines, in.Event.Start.Add(-EventLeadWindow))
	}

	var next time.Time
	for _, d := range deadlines {
		if d.After(now) && (next.IsZero() || d.Before(next)) {
			next = d
		}
	}
	if next.IsZero() {
		return
	}
	o.waker.Arm(next.Sub(now), o.Recompute)
}

// resetDeadlines collapses all transient deadlines to now. Used when the
// feature becomes unavailable so no stale deadline survives re-enabling.
func (o *Orchestrator) resetDeadlines(now time.Time) {
	o.lockedUntil = now
	o.weatherUntil = now
	o.cooldownUntil = now
	o.nextRotationAt = time.Time{}
	o.rotationOn = false
	o.lastPeekReason = ""
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
