package reconcile

import (
	"sync"

	"go.uber.org/zap"
)

// TransitionHandler is notified when the group crosses the online or
// offline boundary.
type TransitionHandler func(online bool)

// Monitor tracks consecutive poll failures for one device group. The
// poll is a single batched call covering all devices, so one failure
// counts against the whole group.
type Monitor struct {
	mu        sync.Mutex
	threshold int
	failures  int
	online    bool
	handlers  []TransitionHandler
	logger    *zap.Logger
}

// NewMonitor creates a monitor that declares the group offline after
// threshold consecutive failures. The group starts online.
func NewMonitor(threshold int, logger *zap.Logger) *Monitor {
	return &Monitor{
		threshold: threshold,
		online:    true,
		logger:    logger,
	}
}

// OnTransition registers a handler for online/offline transitions.
// Handlers run synchronously on the poll path, before the next state
// push, so the control surface never sees one more stale read.
func (m *Monitor) OnTransition(h TransitionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// RecordSuccess resets the failure counter. Any single success while
// offline brings the group back online.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	m.failures = 0
	transitioned := !m.online
	m.online = true
	handlers := m.handlersLocked()
	m.mu.Unlock()

	if transitioned {
		m.logger.Info("Device group back online")
		for _, h := range handlers {
			h(true)
		}
	}
}

// RecordFailure increments the counter and, when it first reaches the
// threshold, declares the group offline.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	m.failures++
	transitioned := m.online && m.failures >= m.threshold
	if transitioned {
		m.online = false
	}
	failures := m.failures
	handlers := m.handlersLocked()
	m.mu.Unlock()

	if transitioned {
		m.logger.Warn("Device group offline",
			zap.Int("consecutive_failures", failures))
		for _, h := range handlers {
			h(false)
		}
	}
}

// Online reports whether the group is currently considered reachable.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Failures returns the current consecutive failure count.
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func (m *Monitor) handlersLocked() []TransitionHandler {
	out := make([]TransitionHandler, len(m.handlers))
	copy(out, m.handlers)
	return out
}
