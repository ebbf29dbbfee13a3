package slot

import (
	"testing"
	"time"

	"skybar/internal/types"
)

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

func (c *mockClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeWaker records arms and fires callbacks on demand.
type fakeWaker struct {
	armed   bool
	delay   time.Duration
	fn      func()
	arms    int
	cancels int
}

func (w *fakeWaker) Arm(d time.Duration, fn func()) {
	w.armed = true
	w.delay = d
	w.fn = fn
	w.arms++
}

func (w *fakeWaker) Cancel() {
	w.armed = false
	w.fn = nil
	w.cancels++
}

func (w *fakeWaker) Pending() bool { return w.armed }

func (w *fakeWaker) fire(t *testing.T) {
	t.Helper()
	if w.fn == nil {
		t.Fatal("fire called with no pending wake-up")
	}
	fn := w.fn
	w.armed = false
	w.fn = nil
	fn()
}

type fakeRecorder struct {
	switches []string
}

func (r *fakeRecorder) RecordSwitch(from, to types.SlotContent, reason string, at time.Time) {
	r.switches = append(r.switches, string(from)+">"+string(to)+":"+reason)
}

type fakeRefresher struct {
	requests []string
}

func (r *fakeRefresher) RequestRefresh(reason string) {
	r.requests = append(r.requests, reason)
}

func defaultSettings() types.SlotSettings {
	return types.SlotSettings{
		Enabled:          true,
		ShowWeather:      true,
		SmartSwitching:   false,
		RotationEnabled:  false,
		RotationInterval: 15 * time.Minute,
		MinDwell:         10 * time.Second,
		EventBoost:       45 * time.Second,
		Cooldown:         5 * time.Minute,
	}
}

type harness struct {
	clock     *mockClock
	waker     *fakeWaker
	recorder  *fakeRecorder
	refresher *fakeRefresher
	in        Inputs
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     &mockClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)},
		waker:     &fakeWaker{},
		recorder:  &fakeRecorder{},
		refresher: &fakeRefresher{},
		in: Inputs{
			Settings:         defaultSettings(),
			Power:            types.PowerState{ChargePercent: 80, ExternalPower: false},
			HasLocation:      true,
			SurfaceAvailable: true,
		},
	}
	h.orch = New(Config{
		Clock:     h.clock,
		Waker:     h.waker,
		Inputs:    func() Inputs { return h.in },
		Recorder:  h.recorder,
		Refresher: h.refresher,
	})
	return h
}

func TestRecompute_PeekOnReady(t *testing.T) {
	h := newHarness(t)

	h.orch.Recompute()

	if got := h.orch.Shown(); got != types.SlotWeather {
		t.Fatalf("expected weather peek on becoming ready, got %s", got)
	}
	snap := h.orch.Snapshot()
	if !snap.Ready {
		t.Error("expected ready after first recompute")
	}
	if snap.Peeks["weather_enabled"] != 1 {
		t.Errorf("expected one weather_enabled peek, got %v", snap.Peeks)
	}
	if !h.waker.Pending() {
		t.Fatal("expected a wake-up armed for the dwell deadline")
	}
	if h.waker.delay != 10*time.Second {
		t.Errorf("expected wake-up in 10s (min dwell), got %v", h.waker.delay)
	}
}

func TestRecompute_WeatherExpiresAfterDwell(t *testing.T) {
	h := newHarness(t)
	h.orch.Recompute()

	h.clock.advance(10 * time.Second)
	h.waker.fire(t)

	if got := h.orch.Shown(); got != types.SlotSystemMetrics {
		t.Fatalf("expected system metrics after dwell elapsed, got %s", got)
	}
	if h.waker.Pending() {
		t.Errorf("expected no wake-up with no future deadlines, armed for %v", h.waker.delay)
	}
}

func TestRecompute_MinDwellHolds(t *testing.T) {
	h := newHarness(t)
	h.orch.Recompute()

	// Input churn shortly after the switch must not evict weather before the
	// minimum dwell.
	h.clock.advance(2 * time.Second)
	h.orch.Recompute()
	if got := h.orch.Shown(); got != types.SlotWeather {
		t.Fatalf("expected weather held during dwell, got %s", got)
	}

	h.clock.advance(3 * time.Second)
	h.orch.Recompute()
	if got := h.orch.Shown(); got != types.SlotWeather {
		t.Fatalf("expected weather held during dwell, got %s", got)
	}
}

func TestRecompute_DisabledForcesMetrics(t *testing.T) {
	h := newHarness(t)
	h.orch.Recompute()

	h.in.Settings.Enabled = false
	h.orch.Recompute()

	if got := h.orch.Shown(); got != types.SlotSystemMetrics {
		t.Fatalf("expected system metrics when disabled, got %s", got)
	}
	if h.waker.Pending() {
		t.Error("expected no wake-up while disabled")
	}
	if snap := h.orch.Snapshot(); snap.Ready {
		t.Error("expected not-ready while disabled")
	}
}

func TestRecompute_NoLocationForcesMetrics(t *testing.T) {
	h := newHarness(t)
	h.in.HasLocation = false

	h.orch.Recompute()

	if got := h.orch.Shown(); got != types.SlotSystemMetrics {
		t.Fatalf("expected system metrics without a location, got %s", got)
	}
	if h.waker.Pending() {
		t.Error("expected no wake-up without a location")
	}
}

func TestRecompute_BatteryCriticalOverridesPeek(t *testing.T) {
	h := newHarness(t)
	h.orch.Recompute()
	if h.orch.Shown() != types.SlotWeather {
		t.Fatal("expected weather peek before battery drops")
	}

	// Battery goes critical mid-peek, well inside weatherUntil.
	h.clock.advance(time.Second)
	h.in.Power = types.PowerState{ChargePercent: 8, ExternalPower: false}
	h.orch.Recompute()

	if got := h.orch.Shown(); got != types.SlotSystemMetrics {
		t.Fatalf("expected forced system metrics on critical battery, got %s", got)
	}

	// External power returns: the next recompute treats weather as freshly
	// available and re-peeks.
	h.clock.advance(time.Second)
	h.in.Power = types.PowerState{ChargePercent: 8, ExternalPower: true}
	h.orch.Recompute()
	if got := h.orch.Shown(); got != types.SlotWeather {
		t.Fatalf("expected fresh peek after recovery, got %s", got)
	}
}

func TestRecompute_RotationCadence(t *testing.T) {
	h := newHarness(t)
	h.in.Settings.RotationEnabled = true
	h.in.Settings.RotationInterval = 15 * time.Minute

	h.orch.Recompute()
	if h.orch.Shown() != types.SlotWeather {
		t.Fatal("expected immediate peek when rotation turns on")
	}

	// Dwell expires, back to metrics; next wake-up is the rotation.
	h.clock.advance(10 * time.Second)
	h.waker.fire(t)
	if h.orch.Shown() != types.SlotSystemMetrics {
		t.Fatal("expected metrics between rotations")
	}
	if !h.waker.Pending() {
		t.Fatal("expected a wake-up armed for the next rotation")
	}

	// Two full rotation cycles.
	for cycle := 0; cycle < 2; cycle++ {
		h.clock.now = h.orch.Snapshot().NextRotationAt
		h.waker.fire(t)
		if h.orch.Shown() != types.SlotWeather {
			t.Fatalf("cycle %d: expected rotation peek", cycle)
		}
		h.clock.advance(10 * time.Second)
		h.waker.fire(t)
		if h.orch.Shown() != types.SlotSystemMetrics {
			t.Fatalf("cycle %d: expected metrics after dwell", cycle)
		}
	}

	if got := h.orch.Snapshot().Peeks["rotation"]; got != 3 {
		t.Errorf("expected 3 rotation peeks, got %d", got)
	}
}

func TestRecompute_RotationOffClearsSchedule(t *testing.T) {
	h := newHarness(t)
	h.in.Settings.RotationEnabled = true
	h.orch.Recompute()
	if h.orch.Snapshot().NextRotationAt.IsZero() {
		t.Fatal("expected a rotation scheduled")
	}

	h.in.Settings.RotationEnabled = false
	h.clock.advance(10 * time.Second)
	h.orch.Recompute()
	if !h.orch.Snapshot().NextRotationAt.IsZero() {
		t.Error("expected rotation schedule cleared when disabled")
	}
}

func TestRecompute_EventBoostAndCooldown(t *testing.T) {
	h := newHarness(t)
	h.in.Settings.SmartSwitching = true
	h.in.Event = &types.WeatherEvent{
		ID:       "precip_start-202608291300",
		Kind:     types.EventPrecipStart,
		Start:    h.clock.now.Add(time.Hour), // inside the 90min lead window
		Severity: 0.8,
	}

	h.orch.Recompute()

	if h.orch.Shown() != types.SlotWeather {
		t.Fatal("expected weather boosted for the upcoming event")
	}
	snap := h.orch.Snapshot()
	if snap.Peeks["event_precip_start"] != 1 {
		t.Errorf("expected one event peek, got %v", snap.Peeks)
	}
	if want := h.clock.now.Add(5 * time.Minute); !snap.CooldownUntil.Equal(want) {
		t.Errorf("expected cooldown until %v, got %v", want, snap.CooldownUntil)
	}
	// Boost holds the slot for the event boost duration.
	if want := h.clock.now.Add(45 * time.Second); !snap.WeatherUntil.Equal(want) {
		t.Errorf("expected weather until %v, got %v", want, snap.WeatherUntil)
	}

	// After the boost expires the cooldown blocks an immediate re-boost.
	h.clock.advance(45 * time.Second)
	h.waker.fire(t)
	if h.orch.Shown() != types.SlotSystemMetrics {
		t.Fatal("expected metrics after boost, cooldown pending")
	}
	if h.orch.Snapshot().Peeks["event_precip_start"] != 1 {
		t.Error("expected no re-boost during cooldown")
	}

	// Once the cooldown elapses the still-pending event boosts again.
	h.clock.now = h.orch.Snapshot().CooldownUntil
	h.waker.fire(t)
	if h.orch.Shown() != types.SlotWeather {
		t.Fatal("expected re-boost after cooldown")
	}
	if h.orch.Snapshot().Peeks["event_precip_start"] != 2 {
		t.Error("expected a second event peek after cooldown")
	}
}

func TestRecompute_EventOutsideLeadWindowArmsWakeup(t *testing.T) {
	h := newHarness(t)
	h.in.Settings.SmartSwitching = true
	h.in.Event = &types.WeatherEvent{
		ID:    "precip_start-202608291600",
		Kind:  types.EventPrecipStart,
		Start: h.clock.now.Add(4 * time.Hour),
	}

	h.orch.Recompute()

	// Initial ready-peek aside, no event boost yet.
	if got := h.orch.Snapshot().Peeks["event_precip_start"]; got != 0 {
		t.Errorf("expected no boost outside the lead window, got %d", got)
	}

	// Let the ready peek expire; the remaining wake-up must target the lead
	// window start (4h - 90min = 2.5h out).
	h.clock.advance(10 * time.Second)
	h.waker.fire(t)
	if !h.waker.Pending() {
		t.Fatal("expected a wake-up armed for the lead window")
	}
	if want := 4*time.Hour - EventLeadWindow - 10*time.Second; h.waker.delay != want {
		t.Errorf("expected wake-up in %v, got %v", want, h.waker.delay)
	}
}

func TestRecompute_SingleWakeupInvariant(t *testing.T) {
	h := newHarness(t)
	h.in.Settings.RotationEnabled = true
	h.in.Settings.SmartSwitching = true
	h.in.Event = &types.WeatherEvent{
		ID:    "temp_drop-202608291400",
		Kind:  types.EventTempDrop,
		Start: h.clock.now.Add(2 * time.Hour),
	}

	// Rapid-fire recomputes; every recompute cancels before re-arming, so
	// pending wake-ups never accumulate.
	for i := 0; i < 25; i++ {
		h.orch.Recompute()
		h.clock.advance(time.Second)
	}
	if h.waker.cancels < h.waker.arms {
		t.Errorf("arm without preceding cancel: %d arms, %d cancels", h.waker.arms, h.waker.cancels)
	}
	if !h.waker.Pending() {
		t.Error("expected exactly one pending wake-up")
	}
}

func TestBeginPeek_RefreshThrottled(t *testing.T) {
	h := newHarness(t)
	h.in.Settings.RotationEnabled = true
	h.in.Settings.RotationInterval = time.Minute

	h.orch.Recompute()
	if len(h.refresher.requests) != 1 {
		t.Fatalf("expected one refresh request on first peek, got %d", len(h.refresher.requests))
	}

	// Rotations one minute apart stay under the ten-minute refresh gap.
	for i := 0; i < 5; i++ {
		h.clock.advance(time.Minute)
		h.orch.Recompute()
	}
	if len(h.refresher.requests) != 1 {
		t.Errorf("expected refresh throttled to one request, got %d", len(h.refresher.requests))
	}

	// Past the gap, the next peek refreshes again.
	h.clock.advance(10 * time.Minute)
	h.orch.Recompute()
	if len(h.refresher.requests) != 2 {
		t.Errorf("expected a second refresh after the gap, got %d", len(h.refresher.requests))
	}
}

func TestRecompute_RecordsSwitches(t *testing.T) {
	h := newHarness(t)
	h.orch.Recompute()
	h.clock.advance(10 * time.Second)
	h.waker.fire(t)

	want := []string{
		"system_metrics>weather:weather_enabled",
		"weather>system_metrics:weather_expired",
	}
	if len(h.recorder.switches) != len(want) {
		t.Fatalf("expected %d switches, got %v", len(want), h.recorder.switches)
	}
	for i, w := range want {
		if h.recorder.switches[i] != w {
			t.Errorf("switch %d: expected %q, got %q", i, w, h.recorder.switches[i])
		}
	}
}
