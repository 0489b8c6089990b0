package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"airbridge/internal/bridge"
	"airbridge/internal/clock"
	"airbridge/internal/cloud"
	"airbridge/internal/device"
	"airbridge/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *cloud.Mock) {
	t.Helper()
	mock := cloud.NewMock()
	mock.SetDevice(cloud.DeviceState{
		DeviceID: "fan-1",
		Name:     "Bedroom Fan",
		Model:    "F1",
		Online:   true,
		Capabilities: device.Patch{
			device.KeyPower:      1,
			device.KeySpeed:      2,
			device.KeyFilterLife: 80,
		},
	})

	mc := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	g := bridge.NewGroup(mock, reconcile.NopPublisher{}, 0, mc, zap.NewNop())
	require.NoError(t, g.Start())
	t.Cleanup(g.Stop)

	return NewServer(g, zap.NewNop(), 0), mock
}

func TestServer_Devices(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp DevicesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.True(t, resp.Online)
	require.Len(t, resp.Devices, 1)

	dv := resp.Devices[0]
	assert.Equal(t, "fan-1", dv.DeviceID)
	assert.Equal(t, 1, dv.Shadow[device.KeyPower])
	assert.Equal(t, 2, dv.Shadow[device.KeySpeed])
	assert.True(t, dv.Derived.FanOn)
	assert.Equal(t, 50, dv.Derived.FanSpeedPercent)
	assert.Equal(t, 80, dv.Derived.FilterLifePercent)
	assert.False(t, dv.Derived.FilterWorn)
}

func TestServer_DevicesMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/devices", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
