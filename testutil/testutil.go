// Package testutil holds deterministic collaborators shared by package tests.
package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// StubClock is a settable attendance.Clock.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(now time.Time) *StubClock {
	return &StubClock{now: now}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequentialIDs is an attendance.IDGenerator yielding prefix-1, prefix-2...
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

func (g *SequentialIDs) New() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

// At builds a time in loc without the boilerplate.
func At(loc *time.Location, year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}
