// Package shadow holds the locally mirrored capability state of one
// appliance. The shadow is the single source of truth for every
// exposed property read: getters are pure functions of the shadow plus
// the reconciler's suppression flags.
package shadow

import (
	"sync"

	"airbridge/internal/device"
)

// Shadow is a mapping from capability key to last-known value. It is
// created on first discovery, mutated by both intents and poll
// results, and never destroyed while the device is registered.
type Shadow struct {
	mu     sync.RWMutex
	values map[device.Capability]int

	// lastSpeed remembers the most recent nonzero fan speed level seen
	// from either an intent or a poll, so the speed can be restored when
	// the fan is turned back on.
	lastSpeed int
}

// New returns an empty shadow. Reads of unset keys return the
// capability's default, never an error.
func New() *Shadow {
	return &Shadow{
		values: make(map[device.Capability]int),
	}
}

// Get returns the last-known value for key, or the capability default
// if the key has never been set.
func (s *Shadow) Get(key device.Capability) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[key]; ok {
		return v
	}
	return device.Default(key)
}

// Set overwrites a single key.
func (s *Shadow) Set(key device.Capability, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
}

// Merge overwrites the keys present in patch and leaves all others
// untouched.
func (s *Shadow) Merge(patch device.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range patch {
		s.setLocked(key, value)
	}
}

func (s *Shadow) setLocked(key device.Capability, value int) {
	s.values[key] = value
	if key == device.KeySpeed && value > 0 {
		s.lastSpeed = value
	}
}

// LastSpeed returns the remembered nonzero fan speed level, or 1 if no
// nonzero speed has ever been observed.
func (s *Shadow) LastSpeed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSpeed > 0 {
		return s.lastSpeed
	}
	return 1
}

// Snapshot returns a copy of all known keys, for the debug API.
func (s *Shadow) Snapshot() device.Patch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(device.Patch, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
