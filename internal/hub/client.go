// Package hub implements the websocket connection to the host
// automation hub: it pushes per-property value updates outward and
// routes incoming set requests to the accessory layer.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SetHandler receives set requests arriving from the hub.
type SetHandler func(deviceID, property string, value int)

// Client is a websocket client for the automation hub. It implements
// accessory.Sink.
type Client struct {
	url     string
	token   string
	logger  *zap.Logger
	handler SetHandler

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	reconnect bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a hub client. handler may be nil if the hub never
// issues writes.
func NewClient(url, token string, handler SetHandler, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:     url,
		token:   token,
		logger:  logger.Named("hub"),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect dials the hub and performs the auth handshake.
func (c *Client) Connect() error {
	c.connMu.Lock()

	if c.connected {
		c.connMu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.connMu.Unlock()
		return fmt.Errorf("failed to connect to hub: %w", err)
	}

	var required Message
	if err := conn.ReadJSON(&required); err != nil {
		conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if required.Type != TypeAuthRequired {
		conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("expected %s, got %s", TypeAuthRequired, required.Type)
	}

	if err := conn.WriteJSON(Message{Type: TypeAuth, AccessToken: c.token}); err != nil {
		conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to read auth reply: %w", err)
	}
	if reply.Type == TypeAuthInvalid {
		conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("hub authentication failed: invalid token")
	}
	if reply.Type != TypeAuthOk {
		conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("expected %s, got %s", TypeAuthOk, reply.Type)
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.reconnect = true
	c.connMu.Unlock()

	c.logger.Info("Connected to automation hub")
	go c.receiveMessages()
	return nil
}

// Disconnect closes the connection and disables reconnection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return nil
	}

	c.reconnect = false
	c.cancel()
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("Disconnected from automation hub")
	return nil
}

// IsConnected reports whether the hub link is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// PushValue sends one property update to the hub. Implements
// accessory.Sink. Pushes while disconnected are dropped; the hub
// re-reads every property after the link comes back.
func (c *Client) PushValue(deviceID, property string, value int) {
	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()

	if !connected {
		return
	}

	msg := Message{
		Type:     TypeUpdate,
		DeviceID: deviceID,
		Property: property,
		Value:    value,
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("Failed to push update", zap.Error(err))
	}
}

func (c *Client) receiveMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Warn("Hub read failed", zap.Error(err))
			c.handleDisconnect()
			return
		}

		if msg.Type != TypeSet {
			continue
		}
		if c.handler != nil {
			c.handler(msg.DeviceID, msg.Property, msg.Value)
		}
	}
}

func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	reconnect := c.reconnect
	c.connMu.Unlock()

	c.logger.Warn("Hub connection lost")
	if !reconnect {
		return
	}
	go c.attemptReconnect()
}

// attemptReconnect redials with exponential backoff.
func (c *Client) attemptReconnect() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to hub...")
		if err := c.Connect(); err != nil {
			c.logger.Warn("Hub reconnection failed", zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		return
	}
}
