package testutil

import (
	"strconv"
	"sync"
	"time"
)

// ReferenceTime is the instant a FixedClock starts at.
var ReferenceTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manually driven clock for snapshot timestamps.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a StubClock at ReferenceTime.
func FixedClock() *StubClock {
	return &StubClock{now: ReferenceTime}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Metadata stores keep whole
// seconds, so orderings need steps of at least a second.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator issues the snapshot IDs id-1, id-2 and so on.
type StubIDGenerator struct {
	mu     sync.Mutex
	issued []string
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "id-" + strconv.Itoa(len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns the IDs handed out so far, oldest first.
func (g *StubIDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
