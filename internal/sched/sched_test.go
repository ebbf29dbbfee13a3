package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	loop := NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func TestLoop_SerializesTasks(t *testing.T) {
	loop := startLoop(t)

	// A counter mutated without synchronization; the race detector flags
	// any violation of the single-goroutine guarantee.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		loop.Submit(func() {
			counter++
			wg.Done()
		})
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("expected 50 tasks executed, got %d", counter)
	}
}

func TestTimerSlot_FiresOnce(t *testing.T) {
	loop := startLoop(t)
	slot := NewTimerSlot(loop)

	fired := make(chan struct{})
	slot.Arm(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if slot.Pending() {
		t.Error("slot still pending after firing")
	}
}

func TestTimerSlot_CancelPreventsFire(t *testing.T) {
	loop := startLoop(t)
	slot := NewTimerSlot(loop)

	var fired atomic.Bool
	slot.Arm(10*time.Millisecond, func() { fired.Store(true) })
	slot.Cancel()

	if slot.Pending() {
		t.Error("slot pending after cancel")
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer executed its callback")
	}
}

func TestTimerSlot_RearmReplacesPending(t *testing.T) {
	loop := startLoop(t)
	slot := NewTimerSlot(loop)

	var first, second atomic.Bool
	fired := make(chan struct{})
	slot.Arm(10*time.Millisecond, func() { first.Store(true) })
	slot.Arm(20*time.Millisecond, func() {
		second.Store(true)
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("re-armed timer did not fire")
	}
	if first.Load() {
		t.Error("replaced wake-up executed its callback")
	}
	if !second.Load() {
		t.Error("expected the replacing wake-up to fire")
	}
}

func TestTimerSlot_SingleTimerUnderRapidRearm(t *testing.T) {
	loop := startLoop(t)
	slot := NewTimerSlot(loop)

	var fires atomic.Int64
	for i := 0; i < 200; i++ {
		slot.Arm(50*time.Millisecond, func() { fires.Add(1) })
	}
	// Only the final arm may fire; all predecessors were replaced.
	time.Sleep(200 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("expected exactly 1 fire after rapid re-arm, got %d", got)
	}
	if slot.Pending() {
		t.Error("slot still pending after final fire")
	}
}

func TestTimerSlot_NegativeDurationFires(t *testing.T) {
	loop := startLoop(t)
	slot := NewTimerSlot(loop)

	fired := make(chan struct{})
	slot.Arm(-time.Second, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-deadline wake-up did not fire")
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	loop := startLoop(t)

	var waves atomic.Int64
	deb := NewDebouncer(loop, 20*time.Millisecond, nil, func() { waves.Add(1) })

	for i := 0; i < 10; i++ {
		deb.MarkDirty("settings")
	}
	time.Sleep(100 * time.Millisecond)
	if got := waves.Load(); got != 1 {
		t.Errorf("expected one recompute wave for a burst, got %d", got)
	}

	// A second burst after quiet yields a second wave.
	deb.MarkDirty("battery")
	time.Sleep(100 * time.Millisecond)
	if got := waves.Load(); got != 2 {
		t.Errorf("expected a second wave, got %d", got)
	}
}

func TestDebouncer_FlushRunsPendingImmediately(t *testing.T) {
	loop := startLoop(t)

	waves := make(chan struct{}, 1)
	deb := NewDebouncer(loop, time.Hour, nil, func() { waves <- struct{}{} })

	deb.MarkDirty("startup")
	deb.Flush()

	select {
	case <-waves:
	case <-time.After(time.Second):
		t.Fatal("flush did not run the pending recompute")
	}
}

func TestDebouncer_FlushWithoutDirtyIsNoop(t *testing.T) {
	loop := startLoop(t)

	var waves atomic.Int64
	deb := NewDebouncer(loop, 10*time.Millisecond, nil, func() { waves.Add(1) })

	deb.Flush()
	time.Sleep(30 * time.Millisecond)
	if got := waves.Load(); got != 0 {
		t.Errorf("expected no wave without MarkDirty, got %d", got)
	}
}
