// Package engine owns the daemon's shared decision state (latest forecast
// payload, power reading, detected event) and drives the recompute cycle:
// input changes mark the engine dirty, the debouncer coalesces a burst into
// one wave, and a wave redetects the event, re-arbitrates the display slot,
// and reschedules the alert, all on the single service loop goroutine.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"skybar/internal/alert"
	"skybar/internal/detect"
	"skybar/internal/sched"
	"skybar/internal/slot"
	"skybar/internal/types"
)

// Config holds the engine's collaborators and settings.
type Config struct {
	Clock       types.Clock
	Loop        *sched.Loop
	Debounce    time.Duration
	Detection   types.DetectionSettings
	Slot        types.SlotSettings
	Alert       types.AlertSettings
	HasLocation bool
	// Surface is optional; nil means the display surface is always available.
	Surface   types.SurfaceGate
	Presenter types.AlertPresenter
	// SwitchRecorder and AlertRecorder are optional diagnostics sinks.
	SwitchRecorder slot.SwitchRecorder
	AlertRecorder  alert.Recorder
	// Refresher is optional; when set, slot peeks request fresh forecasts.
	Refresher slot.RefreshRequester
	Logger    *slog.Logger
}

// Engine wires the detector, the slot orchestrator, and the alert scheduler
// to the shared input state.
type Engine struct {
	clock       types.Clock
	loop        *sched.Loop
	logger      *slog.Logger
	detection   types.DetectionSettings
	slotCfg     types.SlotSettings
	alertCfg    types.AlertSettings
	hasLocation bool
	surface     types.SurfaceGate

	debouncer    *sched.Debouncer
	orchestrator *slot.Orchestrator
	alerts       *alert.Scheduler

	// mu guards the input state below. Written on the loop goroutine and by
	// input callbacks; read by recompute waves and status snapshots.
	mu      sync.Mutex
	payload *types.ForecastPayload
	power   types.PowerState
	event   *types.WeatherEvent
}

// New creates an Engine and its orchestrator and alert scheduler, each with
// its own single wake-up timer on the shared loop.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		clock:       cfg.Clock,
		loop:        cfg.Loop,
		logger:      logger,
		detection:   cfg.Detection,
		slotCfg:     cfg.Slot,
		alertCfg:    cfg.Alert,
		hasLocation: cfg.HasLocation,
		surface:     cfg.Surface,
		// Power is unknown until the first poll; assume wall power so the
		// battery gate does not flap the slot at startup.
		power: types.PowerState{ChargePercent: 100, ExternalPower: true},
	}

	e.orchestrator = slot.New(slot.Config{
		Clock:     cfg.Clock,
		Waker:     sched.NewTimerSlot(cfg.Loop),
		Inputs:    e.slotInputs,
		Recorder:  cfg.SwitchRecorder,
		Refresher: cfg.Refresher,
		Logger:    logger,
	})
	e.alerts = alert.New(alert.Config{
		Clock:     cfg.Clock,
		Waker:     sched.NewTimerSlot(cfg.Loop),
		Inputs:    e.alertInputs,
		Presenter: cfg.Presenter,
		Recorder:  cfg.AlertRecorder,
		Logger:    logger,
	})
	e.debouncer = sched.NewDebouncer(cfg.Loop, cfg.Debounce, logger, e.recompute)

	return e
}

// OnForecast replaces the current payload and schedules a recompute wave.
// Safe from any goroutine.
func (e *Engine) OnForecast(payload *types.ForecastPayload) {
	e.mu.Lock()
	e.payload = payload
	e.mu.Unlock()
	e.debouncer.MarkDirty("forecast")
}

// OnPower replaces the current power reading and schedules a recompute wave.
// Safe from any goroutine.
func (e *Engine) OnPower(state types.PowerState) {
	e.mu.Lock()
	e.power = state
	e.mu.Unlock()
	e.debouncer.MarkDirty("power")
}

// Kick schedules a recompute wave without an input change. Used at startup
// and after settings-driven restarts.
func (e *Engine) Kick(reason string) {
	e.debouncer.MarkDirty(reason)
}

// recompute is one wave: redetect the event, then let both consumers
// re-evaluate. Runs on the loop goroutine.
func (e *Engine) recompute() {
	now := e.clock.Now()

	e.mu.Lock()
	prev := e.event
	next := detect.NextEvent(e.payload, prev, now, e.detection)
	e.event = next
	e.mu.Unlock()

	if eventChanged(prev, next) {
		if next == nil {
			e.logger.Info("weather event cleared", "previous_id", prev.ID)
		} else {
			e.logger.Info("weather event detected",
				"id", next.ID,
				"kind", next.Kind,
				"start", next.Start,
				"severity", next.Severity,
			)
		}
	}

	e.orchestrator.Recompute()
	e.alerts.Reschedule()
}

func eventChanged(prev, next *types.WeatherEvent) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return prev.ID != next.ID
	}
}

func (e *Engine) surfaceAvailable() bool {
	if e.surface == nil {
		return true
	}
	return e.surface.Available()
}

func (e *Engine) slotInputs() slot.Inputs {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slot.Inputs{
		Settings:         e.slotCfg,
		Event:            e.event,
		Power:            e.power,
		HasLocation:      e.hasLocation,
		SurfaceAvailable: e.surfaceAvailable(),
	}
}

func (e *Engine) alertInputs() alert.Inputs {
	e.mu.Lock()
	defer e.mu.Unlock()
	return alert.Inputs{
		WeatherEnabled:   e.slotCfg.Enabled,
		Settings:         e.alertCfg,
		Event:            e.event,
		HasLocation:      e.hasLocation,
		SurfaceAvailable: e.surfaceAvailable(),
	}
}

// CurrentEvent returns the most recently detected event, or nil.
// Safe from any goroutine.
func (e *Engine) CurrentEvent() *types.WeatherEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.event
}

// SlotSnapshot exposes the orchestrator's visible state.
func (e *Engine) SlotSnapshot() slot.Snapshot {
	return e.orchestrator.Snapshot()
}

// AlertSnapshot exposes the alert scheduler's visible state.
func (e *Engine) AlertSnapshot() alert.Snapshot {
	return e.alerts.Snapshot()
}
