package power

import (
	"context"
	"log/slog"
	"time"

	"skybar/internal/types"
)

// Poller samples a PowerSource on a fixed interval and invokes OnChange
// whenever the reading differs from the previous one. The first successful
// sample always counts as a change.
type Poller struct {
	source   types.PowerSource
	interval time.Duration
	onChange func(types.PowerState)
	logger   *slog.Logger
}

// PollerConfig holds the Poller's collaborators.
type PollerConfig struct {
	Source   types.PowerSource
	Interval time.Duration
	OnChange func(types.PowerState)
	Logger   *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   cfg.Source,
		interval: cfg.Interval,
		onChange: cfg.OnChange,
		logger:   logger,
	}
}

// Run samples immediately, then on every tick until ctx is cancelled.
// Always returns nil.
func (p *Poller) Run(ctx context.Context) error {
	var last types.PowerState
	var haveLast bool

	sample := func() {
		state, err := p.source.State(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("power state read failed", "error", err)
			return
		}
		if haveLast && state == last {
			return
		}
		last = state
		haveLast = true
		p.logger.Debug("power state changed",
			"charge_percent", state.ChargePercent,
			"external_power", state.ExternalPower,
		)
		p.onChange(state)
	}

	sample()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample()
		}
	}
}
