package reconcile

import (
	"sync"
	"time"

	"airbridge/internal/clock"
)

// Gate is the post-dispatch cooldown window. While active, poll results
// still merge into the shadow but are not pushed to the control
// surface, so a cached pre-write value cannot snap the surface back.
type Gate struct {
	mu       sync.Mutex
	clock    clock.Clock
	deadline time.Time
}

// NewGate creates an inactive gate.
func NewGate(c clock.Clock) *Gate {
	return &Gate{clock: c}
}

// Arm opens the gate for d from now. When two dispatches overlap, the
// later deadline wins; the window resets rather than stacking.
func (g *Gate) Arm(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	deadline := g.clock.Now().Add(d)
	if deadline.After(g.deadline) {
		g.deadline = deadline
	}
}

// Active reports whether the current time is strictly before the
// deadline.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clock.Now().Before(g.deadline)
}
