package cloud

import (
	"context"
	"sync"
	"time"

	"airbridge/internal/device"
)

// Command records a SendCommand call for testing.
type Command struct {
	DeviceID string
	Patch    device.Patch
	Time     time.Time
}

// Mock implements API for testing. Poll serves scripted device states
// or a scripted error; SendCommand records each patch and can be made
// to fail.
type Mock struct {
	mu       sync.Mutex
	states   map[string]DeviceState
	pollErr  error
	sendErr  error
	commands []Command
}

// NewMock creates a new mock cloud API with no devices.
func NewMock() *Mock {
	return &Mock{
		states: make(map[string]DeviceState),
	}
}

// Login always succeeds.
func (m *Mock) Login(ctx context.Context) error {
	return nil
}

// Poll returns the scripted states, or the scripted error if one is set.
func (m *Mock) Poll(ctx context.Context) (map[string]DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pollErr != nil {
		return nil, m.pollErr
	}

	out := make(map[string]DeviceState, len(m.states))
	for id, st := range m.states {
		st.Capabilities = st.Capabilities.Clone()
		out[id] = st
	}
	return out, nil
}

// SendCommand records the patch. The scripted values are also updated
// so the next poll reflects the write, unless a send error is set.
func (m *Mock) SendCommand(ctx context.Context, deviceID string, patch device.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, Command{
		DeviceID: deviceID,
		Patch:    patch.Clone(),
		Time:     time.Now(),
	})

	if m.sendErr != nil {
		return m.sendErr
	}

	if st, ok := m.states[deviceID]; ok {
		for k, v := range patch {
			st.Capabilities[k] = v
		}
		m.states[deviceID] = st
	}
	return nil
}

// SetDevice installs or replaces a scripted device state.
func (m *Mock) SetDevice(st DeviceState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.Capabilities == nil {
		st.Capabilities = make(device.Patch)
	}
	m.states[st.DeviceID] = st
}

// SetCapability overwrites one scripted capability value.
func (m *Mock) SetCapability(deviceID string, key device.Capability, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[deviceID]; ok {
		st.Capabilities[key] = value
		m.states[deviceID] = st
	}
}

// SetPollError makes subsequent polls fail with err; pass nil to
// restore success.
func (m *Mock) SetPollError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErr = err
}

// SetSendError makes subsequent commands fail with err; the command is
// still recorded.
func (m *Mock) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Commands returns all recorded commands.
func (m *Mock) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// ClearCommands discards recorded commands.
func (m *Mock) ClearCommands() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = nil
}
