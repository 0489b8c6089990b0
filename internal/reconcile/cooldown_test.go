package reconcile

import (
	"testing"
	"time"

	"airbridge/internal/clock"
)

func TestGate_InactiveByDefault(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	g := NewGate(mock)

	if g.Active() {
		t.Fatalf("New gate must be inactive")
	}
}

func TestGate_BoundaryIsStrict(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	g := NewGate(mock)

	g.Arm(CooldownWindow)

	if !g.Active() {
		t.Fatalf("Gate must be active immediately after arming")
	}

	mock.Advance(CooldownWindow - time.Millisecond)
	if !g.Active() {
		t.Fatalf("Gate must be active strictly before the deadline")
	}

	mock.Advance(time.Millisecond)
	if g.Active() {
		t.Fatalf("Gate must be inactive at the deadline")
	}
}

func TestGate_LaterArmWins(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	g := NewGate(mock)

	g.Arm(CooldownWindow)
	mock.Advance(time.Second)
	g.Arm(CooldownWindow)

	// The window reset: the first deadline has no effect anymore.
	mock.Advance(CooldownWindow - time.Millisecond)
	if !g.Active() {
		t.Fatalf("Gate must honor the later deadline")
	}

	mock.Advance(time.Millisecond)
	if g.Active() {
		t.Fatalf("Gate active past the later deadline")
	}
}

func TestGate_ShorterRearmDoesNotShrinkWindow(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	g := NewGate(mock)

	g.Arm(CooldownWindow)
	g.Arm(time.Millisecond)

	mock.Advance(10 * time.Millisecond)
	if !g.Active() {
		t.Fatalf("A shorter re-arm must not cut the existing window short")
	}
}
