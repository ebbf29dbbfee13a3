package power

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skybar/internal/types"
)

// writeSupply creates a fake power-supply entry under root.
func writeSupply(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for attr, value := range attrs {
		if err := os.WriteFile(filepath.Join(dir, attr), []byte(value+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestState_BatteryAndMains(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "57"})
	writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})

	state, err := NewSysfsSource(root).State(context.Background())
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if state.ChargePercent != 57 {
		t.Errorf("ChargePercent = %d, want 57", state.ChargePercent)
	}
	if !state.ExternalPower {
		t.Error("expected external power with AC online")
	}
}

func TestState_OnBatteryPower(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "9"})
	writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "0"})

	state, err := NewSysfsSource(root).State(context.Background())
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if state.ChargePercent != 9 || state.ExternalPower {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestState_NoSuppliesMeansWallPower(t *testing.T) {
	state, err := NewSysfsSource(t.TempDir()).State(context.Background())
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if state.ChargePercent != 100 || !state.ExternalPower {
		t.Errorf("expected full charge on wall power, got %+v", state)
	}
}

func TestState_IgnoresMalformedCapacity(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "banana"})

	state, err := NewSysfsSource(root).State(context.Background())
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if state.ChargePercent != 100 {
		t.Errorf("expected the malformed reading to be skipped, got %+v", state)
	}
}

func TestState_MissingRoot(t *testing.T) {
	_, err := NewSysfsSource(filepath.Join(t.TempDir(), "nope")).State(context.Background())
	if err == nil {
		t.Error("expected an error for a missing supply tree")
	}
}

func TestPoller_NotifiesOnChangeOnly(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "50"})
	writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})

	changes := make(chan types.PowerState, 8)
	poller := NewPoller(PollerConfig{
		Source:   NewSysfsSource(root),
		Interval: 20 * time.Millisecond,
		OnChange: func(s types.PowerState) { changes <- s },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = poller.Run(ctx)
	}()

	// First sample always notifies.
	select {
	case s := <-changes:
		if s.ChargePercent != 50 {
			t.Errorf("unexpected initial state: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the initial sample")
	}

	// Unchanged readings stay quiet.
	time.Sleep(100 * time.Millisecond)
	select {
	case s := <-changes:
		t.Fatalf("unexpected notification for an unchanged state: %+v", s)
	default:
	}

	// A capacity change notifies again.
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "49"})
	select {
	case s := <-changes:
		if s.ChargePercent != 49 {
			t.Errorf("unexpected state after change: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the change notification")
	}

	cancel()
	<-done
}
