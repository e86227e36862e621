// Package clock abstracts the current time so bucket boundaries and cache
// expiry can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real uses the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Stub is a manually advanced clock. It is safe for concurrent use.
type Stub struct {
	mu  sync.Mutex
	now time.Time
}

// NewStub returns a Stub set to t.
func NewStub(t time.Time) *Stub {
	return &Stub{now: t}
}

func (s *Stub) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward by d.
func (s *Stub) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// Set moves the clock to t.
func (s *Stub) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
}
