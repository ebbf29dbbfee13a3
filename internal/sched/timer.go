package sched

import (
	"sync"
	"time"
)

// TimerSlot is a single one-shot wake-up owned by a service. At most one
// wake-up is pending at any instant: Arm cancels any previous wake-up before
// creating the next, and Cancel is synchronously effective -- a timer whose
// runtime callback has already fired is discarded by the generation check,
// so a cancelled wake-up never executes its function.
type TimerSlot struct {
	loop *Loop

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	pending  bool
	deadline time.Time
}

// NewTimerSlot creates a TimerSlot whose callbacks run on loop.
func NewTimerSlot(loop *Loop) *TimerSlot {
	return &TimerSlot{loop: loop}
}

// Arm schedules fn to run on the loop after d, replacing any pending
// wake-up. A non-positive d fires as soon as the loop gets to it.
func (s *TimerSlot) Arm(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.gen++
	gen := s.gen
	s.pending = true
	if d < 0 {
		d = 0
	}
	s.deadline = time.Now().Add(d)

	s.timer = time.AfterFunc(d, func() {
		s.loop.Submit(func() {
			s.mu.Lock()
			if s.gen != gen || !s.pending {
				// Cancelled or re-armed after this timer fired; stale.
				s.mu.Unlock()
				return
			}
			s.pending = false
			s.mu.Unlock()
			fn()
		})
	})
}

// Cancel discards any pending wake-up. Safe to call when none is pending.
func (s *TimerSlot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *TimerSlot) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
}

// Pending reports whether a wake-up is currently armed.
func (s *TimerSlot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Deadline returns the wall-clock deadline of the pending wake-up and
// whether one exists.
func (s *TimerSlot) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.pending
}
