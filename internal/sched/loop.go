// Package sched provides the concurrency primitives the decision services
// are built on: a serial execution loop, a one-shot cancellable wake-up
// timer, and a debounced recompute trigger.
//
// All recompute entry points -- external change notifications and timer fire
// callbacks -- run on a single Loop, so the deadline/event state of a service
// is only ever touched from one goroutine at a time.
package sched

import (
	"context"
	"log/slog"
)

// Loop is a serial executor: submitted functions run one at a time, in
// submission order, on the loop goroutine.
type Loop struct {
	tasks  chan func()
	logger *slog.Logger
}

// NewLoop creates a Loop. The logger may be nil.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:  make(chan func(), 64),
		logger: logger,
	}
}

// Run executes submitted tasks until ctx is cancelled. Shutdown is not an
// error.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopped")
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Submit enqueues fn for execution on the loop goroutine. It blocks only if
// the task buffer is full.
func (l *Loop) Submit(fn func()) {
	l.tasks <- fn
}
