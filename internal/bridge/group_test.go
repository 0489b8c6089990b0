package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"airbridge/internal/clock"
	"airbridge/internal/cloud"
	"airbridge/internal/device"
	"airbridge/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	pushes []push
}

type push struct {
	deviceID string
	derived  reconcile.Derived
}

func (p *recordingPublisher) Publish(deviceID string, d reconcile.Derived) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{deviceID: deviceID, derived: d})
}

func (p *recordingPublisher) last() (push, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushes) == 0 {
		return push{}, false
	}
	return p.pushes[len(p.pushes)-1], true
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func newTestGroup(t *testing.T, interval time.Duration) (*Group, *cloud.Mock, *clock.MockClock, *recordingPublisher) {
	t.Helper()
	mock := cloud.NewMock()
	mc := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	g := NewGroup(mock, pub, interval, mc, zap.NewNop())
	t.Cleanup(g.Stop)
	return g, mock, mc, pub
}

func fanState(id string, caps device.Patch) cloud.DeviceState {
	return cloud.DeviceState{
		DeviceID:     id,
		Name:         "Bedroom Fan",
		Model:        "F1",
		Online:       true,
		Capabilities: caps,
	}
}

func TestGroup_StartDiscoversDevices(t *testing.T) {
	g, mock, _, pub := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())

	assert.Equal(t, []string{"fan-1"}, g.DeviceIDs())

	rec, ok := g.Reconciler("fan-1")
	require.True(t, ok)
	assert.True(t, rec.Derived().FanOn)
	assert.Equal(t, 50, rec.Derived().FanSpeedPercent)

	// The first poll runs at startup, so the surface is populated
	// without waiting a full interval.
	last, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, "fan-1", last.deviceID)
	assert.True(t, last.derived.FanOn)
}

func TestGroup_PeriodicPollRefreshesState(t *testing.T) {
	g, mock, mc, _ := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())
	rec, _ := g.Reconciler("fan-1")

	mock.SetCapability("fan-1", device.KeySpeed, 3)
	mc.Advance(DefaultPollInterval)
	assert.Equal(t, 75, rec.Derived().FanSpeedPercent)

	// The loop keeps rescheduling itself.
	mock.SetCapability("fan-1", device.KeySpeed, 4)
	mc.Advance(DefaultPollInterval)
	assert.Equal(t, 100, rec.Derived().FanSpeedPercent)
}

func TestGroup_IntervalClampedToFloor(t *testing.T) {
	g, mock, mc, _ := newTestGroup(t, time.Second)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())
	rec, _ := g.Reconciler("fan-1")

	mock.SetCapability("fan-1", device.KeySpeed, 4)
	mc.Advance(MinPollInterval - time.Second)
	assert.Equal(t, 50, rec.Derived().FanSpeedPercent,
		"a sub-floor interval must not poll early")

	mc.Advance(time.Second)
	assert.Equal(t, 100, rec.Derived().FanSpeedPercent)
}

func TestGroup_OfflineAfterConsecutiveFailures(t *testing.T) {
	g, mock, mc, pub := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())
	require.True(t, g.Online())

	mock.SetPollError(errors.New("cloud unreachable"))
	mc.Advance(DefaultPollInterval)
	mc.Advance(DefaultPollInterval)
	assert.True(t, g.Online(), "two failures stay under the threshold")

	mc.Advance(DefaultPollInterval)
	assert.False(t, g.Online())

	// The fault indicator reaches the surface before any further state
	// push.
	last, ok := pub.last()
	require.True(t, ok)
	assert.True(t, last.derived.Fault)
}

func TestGroup_CommandsSuppressedWhileOffline(t *testing.T) {
	g, mock, mc, _ := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())
	rec, _ := g.Reconciler("fan-1")

	mock.SetPollError(errors.New("cloud unreachable"))
	for i := 0; i < reconcile.OfflineThreshold; i++ {
		mc.Advance(DefaultPollInterval)
	}
	require.False(t, g.Online())

	rec.ApplyIntent(device.Patch{device.KeyLight: 1})
	mc.Advance(reconcile.DebounceWindow)

	assert.Empty(t, mock.Commands(), "no command transmitted while offline")

	// The local shadow still reflects the intent optimistically.
	assert.True(t, rec.Derived().LightOn)
}

func TestGroup_SingleSuccessRestoresOnlineAndClearsFault(t *testing.T) {
	g, mock, mc, pub := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())

	mock.SetPollError(errors.New("cloud unreachable"))
	for i := 0; i < reconcile.OfflineThreshold; i++ {
		mc.Advance(DefaultPollInterval)
	}
	require.False(t, g.Online())

	mock.SetPollError(nil)
	mc.Advance(DefaultPollInterval)

	assert.True(t, g.Online())
	last, ok := pub.last()
	require.True(t, ok)
	assert.False(t, last.derived.Fault)
}

func TestGroup_CommandsFlowWhileOnline(t *testing.T) {
	g, mock, mc, _ := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 0, device.KeySpeed: 0}))

	require.NoError(t, g.Start())
	rec, _ := g.Reconciler("fan-1")

	rec.ApplyIntent(device.Patch{device.KeyPower: 1, device.KeySpeed: 2})
	mc.Advance(reconcile.DebounceWindow)

	cmds := mock.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "fan-1", cmds[0].DeviceID)
	assert.Equal(t, 1, cmds[0].Patch[device.KeyPower])
	assert.Equal(t, 2, cmds[0].Patch[device.KeySpeed])
}

func TestGroup_SetPublisherCoversExistingAndFutureDevices(t *testing.T) {
	g, mock, mc, _ := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())

	pub := &recordingPublisher{}
	g.SetPublisher(pub)

	mock.SetCapability("fan-1", device.KeySpeed, 3)
	mc.Advance(DefaultPollInterval)
	last, ok := pub.last()
	require.True(t, ok, "existing device must push to the swapped publisher")
	assert.Equal(t, "fan-1", last.deviceID)

	// A device discovered after the swap uses the new publisher too.
	mock.SetDevice(fanState("fan-2", device.Patch{device.KeyPower: 1, device.KeySpeed: 1}))
	mc.Advance(DefaultPollInterval)

	seen := false
	pub.mu.Lock()
	for _, p := range pub.pushes {
		if p.deviceID == "fan-2" {
			seen = true
		}
	}
	pub.mu.Unlock()
	assert.True(t, seen)
}

func TestGroup_StopCancelsPolling(t *testing.T) {
	g, mock, mc, pub := newTestGroup(t, 0)
	mock.SetDevice(fanState("fan-1", device.Patch{device.KeyPower: 1, device.KeySpeed: 2}))

	require.NoError(t, g.Start())
	rec, _ := g.Reconciler("fan-1")
	g.Stop()

	before := pub.count()
	mock.SetCapability("fan-1", device.KeySpeed, 4)
	mc.Advance(10 * DefaultPollInterval)

	assert.Equal(t, 50, rec.Derived().FanSpeedPercent, "no poll after Stop")
	assert.Equal(t, before, pub.count())
}
