package history

import (
	"context"
	"log/slog"
	"time"

	"skybar/internal/types"
)

// writeTimeout bounds each background history write.
const writeTimeout = 5 * time.Second

// Recorder adapts the Store to the non-blocking recorder interfaces of the
// slot orchestrator and the alert scheduler. Writes happen on background
// goroutines; failures are logged and dropped, never surfaced to the
// decision path.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder over the store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// RecordSwitch persists one slot content switch.
func (r *Recorder) RecordSwitch(from, to types.SlotContent, reason string, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err := r.store.InsertSwitch(ctx, SwitchRecord{
			From:       from,
			To:         to,
			Reason:     reason,
			SwitchedAt: at,
		})
		if err != nil {
			r.logger.Warn("failed to record slot switch", "error", err)
		}
	}()
}

// RecordAlert persists one fired alert.
func (r *Recorder) RecordAlert(ev *types.WeatherEvent, tier types.AlertTier, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err := r.store.InsertAlert(ctx, AlertRecord{
			EventID:    ev.ID,
			EventKind:  ev.Kind,
			EventStart: ev.Start,
			Severity:   ev.Severity,
			Tier:       tier,
			FiredAt:    at,
		})
		if err != nil {
			r.logger.Warn("failed to record alert", "error", err)
		}
	}()
}
