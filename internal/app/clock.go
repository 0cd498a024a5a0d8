package app

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// MockClock is a settable clock for tests.
type MockClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewMockClock(t time.Time) *MockClock { return &MockClock{t: t} }

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
