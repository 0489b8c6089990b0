package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHub is a websocket endpoint speaking the hub's auth handshake.
// Messages written by the client after the handshake appear on
// received; messages queued on outgoing are sent to the client.
type fakeHub struct {
	token    string
	received chan Message
	outgoing chan Message
}

func newFakeHub(token string) *fakeHub {
	return &fakeHub{
		token:    token,
		received: make(chan Message, 32),
		outgoing: make(chan Message, 32),
	}
}

func (h *fakeHub) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(Message{Type: TypeAuthRequired}); err != nil {
			return
		}

		var auth Message
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth.Type != TypeAuth || auth.AccessToken != h.token {
			conn.WriteJSON(Message{Type: TypeAuthInvalid})
			return
		}
		if err := conn.WriteJSON(Message{Type: TypeAuthOk}); err != nil {
			return
		}

		go func() {
			for msg := range h.outgoing {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			h.received <- msg
		}
	}
}

func startFakeHub(t *testing.T, token string) (*fakeHub, string) {
	t.Helper()
	h := newFakeHub(token)
	srv := httptest.NewServer(h.handler(t))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_ConnectHandshake(t *testing.T) {
	_, url := startFakeHub(t, "secret")

	c := NewClient(url, "secret", nil, zap.NewNop())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Disconnect() })

	assert.True(t, c.IsConnected())
	assert.Error(t, c.Connect(), "double connect must fail")
}

func TestClient_ConnectInvalidToken(t *testing.T) {
	_, url := startFakeHub(t, "secret")

	c := NewClient(url, "wrong", nil, zap.NewNop())
	err := c.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.False(t, c.IsConnected())
}

func TestClient_PushValue(t *testing.T) {
	h, url := startFakeHub(t, "secret")

	c := NewClient(url, "secret", nil, zap.NewNop())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Disconnect() })

	c.PushValue("fan-1", "fan_speed_percent", 75)

	select {
	case msg := <-h.received:
		assert.Equal(t, TypeUpdate, msg.Type)
		assert.Equal(t, "fan-1", msg.DeviceID)
		assert.Equal(t, "fan_speed_percent", msg.Property)
		assert.Equal(t, 75, msg.Value)
	case <-time.After(2 * time.Second):
		t.Fatalf("Hub never received the update")
	}
}

func TestClient_PushValueWhileDisconnectedIsDropped(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", "secret", nil, zap.NewNop())

	// Must not panic or block.
	c.PushValue("fan-1", "fan_on", 1)
	assert.False(t, c.IsConnected())
}

func TestClient_SetRoutedToHandler(t *testing.T) {
	h, url := startFakeHub(t, "secret")

	type setCall struct {
		deviceID string
		property string
		value    int
	}
	calls := make(chan setCall, 1)

	handler := func(deviceID, property string, value int) {
		calls <- setCall{deviceID: deviceID, property: property, value: value}
	}

	c := NewClient(url, "secret", handler, zap.NewNop())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Disconnect() })

	h.outgoing <- Message{Type: TypeSet, DeviceID: "fan-1", Property: "light_on", Value: 1}

	select {
	case call := <-calls:
		assert.Equal(t, "fan-1", call.deviceID)
		assert.Equal(t, "light_on", call.property)
		assert.Equal(t, 1, call.value)
	case <-time.After(2 * time.Second):
		t.Fatalf("Set request never reached the handler")
	}
}

func TestClient_NonSetMessagesIgnored(t *testing.T) {
	h, url := startFakeHub(t, "secret")

	calls := make(chan struct{}, 1)
	c := NewClient(url, "secret", func(string, string, int) {
		calls <- struct{}{}
	}, zap.NewNop())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Disconnect() })

	h.outgoing <- Message{Type: TypeUpdate, DeviceID: "fan-1", Property: "fan_on", Value: 1}
	h.outgoing <- Message{Type: TypeSet, DeviceID: "fan-1", Property: "fan_on", Value: 1}

	select {
	case <-calls:
		// Only the set message lands here; the update was skipped.
	case <-time.After(2 * time.Second):
		t.Fatalf("Set after a non-set message never reached the handler")
	}
	assert.Empty(t, calls)
}
