package testutils

import (
	"sync"
	"time"
)

// ManualScheduler records scheduled callbacks and runs them only when told to.
// Its AfterFunc method satisfies session.Scheduler.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// AfterFunc registers fn and returns a stop function.
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{delay: d, fn: fn}
	s.pending = append(s.pending, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// Pending returns the number of timers neither fired nor stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// LastDelay returns the delay of the most recently scheduled timer.
func (s *ManualScheduler) LastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0
	}
	return s.pending[len(s.pending)-1].delay
}

// FireAll runs every pending callback, including stopped ones when force is set.
// It returns how many callbacks ran.
func (s *ManualScheduler) FireAll(force bool) int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.pending {
		if t.fired || (t.stopped && !force) {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Fire runs every live pending callback.
func (s *ManualScheduler) Fire() int {
	return s.FireAll(false)
}
