// Package power reads battery and AC state from the Linux power-supply
// sysfs tree.
package power

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"skybar/internal/types"
)

// SysfsSource implements types.PowerSource by scanning a power-supply class
// directory (normally /sys/class/power_supply). A machine without a battery
// reports full charge on external power, which keeps the battery gate open.
type SysfsSource struct {
	root string
}

var _ types.PowerSource = (*SysfsSource)(nil)

// NewSysfsSource creates a source rooted at the given power-supply directory.
func NewSysfsSource(root string) *SysfsSource {
	return &SysfsSource{root: root}
}

// State scans the supply tree and returns the current battery reading.
func (s *SysfsSource) State(ctx context.Context) (types.PowerState, error) {
	if err := ctx.Err(); err != nil {
		return types.PowerState{}, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return types.PowerState{}, fmt.Errorf("scan power supplies: %w", err)
	}

	state := types.PowerState{ChargePercent: 100}
	var sawBattery, sawMains bool

	for _, entry := range entries {
		dir := filepath.Join(s.root, entry.Name())
		supplyType, err := readAttr(dir, "type")
		if err != nil {
			continue
		}
		switch supplyType {
		case "Battery":
			capStr, err := readAttr(dir, "capacity")
			if err != nil {
				continue
			}
			capacity, err := strconv.Atoi(capStr)
			if err != nil || capacity < 0 || capacity > 100 {
				continue
			}
			state.ChargePercent = capacity
			sawBattery = true
		case "Mains", "USB":
			online, err := readAttr(dir, "online")
			if err != nil {
				continue
			}
			sawMains = true
			if online == "1" {
				state.ExternalPower = true
			}
		}
	}

	// No battery and no adapter entry (desktops, VMs) means wall power.
	if !sawMains && !sawBattery {
		state.ExternalPower = true
	}

	return state, nil
}

func readAttr(dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
