package sched

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultQuiet is the debounce quiet period applied when none is configured.
// Long enough to coalesce a burst of settings writes, short enough to feel
// immediate.
const DefaultQuiet = 100 * time.Millisecond

// Debouncer coalesces bursts of change notifications into a single recompute
// submitted to the loop once the notifications go quiet. However many inputs
// changed, the downstream sees one recompute per quiet period.
type Debouncer struct {
	loop   *Loop
	quiet  time.Duration
	fn     func()
	logger *slog.Logger

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	reasons []string
}

// NewDebouncer creates a Debouncer that submits fn to loop after quiet of
// silence following the last MarkDirty. A non-positive quiet uses
// DefaultQuiet. The logger may be nil.
func NewDebouncer(loop *Loop, quiet time.Duration, logger *slog.Logger, fn func()) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		loop:   loop,
		quiet:  quiet,
		fn:     fn,
		logger: logger,
	}
}

// MarkDirty records that an upstream input changed and (re)starts the quiet
// period. The reason is only used for logging.
func (d *Debouncer) MarkDirty(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reasons = append(d.reasons, reason)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.quiet, func() {
		d.flush(gen)
	})
}

// Flush runs the recompute immediately if one is pending, bypassing the
// remaining quiet period. Used at startup to prime the services.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	d.flush(gen)
}

func (d *Debouncer) flush(gen uint64) {
	d.mu.Lock()
	if d.gen != gen || len(d.reasons) == 0 {
		// Re-marked after this timer fired, or nothing pending; stale.
		d.mu.Unlock()
		return
	}
	reasons := d.reasons
	d.reasons = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	trace := uuid.NewString()
	d.loop.Submit(func() {
		d.logger.Debug("recompute wave",
			"trace_id", trace,
			"reasons", reasons,
		)
		d.fn()
	})
}
