// Package cloud implements the HTTP client for the appliance vendor's
// account API: token login, one batched device poll, and per-device
// command writes.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"airbridge/internal/device"

	"go.uber.org/zap"
)

// Client implements API against the vendor's HTTP endpoints.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a new cloud API client. The token is acquired
// lazily on the first request if Login is not called explicitly.
func NewClient(baseURL, username, password string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.Named("cloud"),
	}
}

// Login exchanges the account credentials for a bearer token.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if lr.Token == "" {
		return fmt.Errorf("login response contained no token")
	}

	c.mu.Lock()
	c.token = lr.Token
	c.mu.Unlock()

	c.logger.Info("Logged in to appliance cloud")
	return nil
}

// Poll fetches the state of every appliance on the account in one call.
func (c *Client) Poll(ctx context.Context) (map[string]DeviceState, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v1/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("poll failed: %w", err)
	}

	var pr pollResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}

	states := make(map[string]DeviceState, len(pr.Devices))
	for _, st := range pr.Devices {
		states[st.DeviceID] = st
	}
	return states, nil
}

// SendCommand writes a capability patch to one appliance.
func (c *Client) SendCommand(ctx context.Context, deviceID string, patch device.Patch) error {
	body, err := json.Marshal(commandRequest{Commands: patch})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/v1/devices/"+deviceID+"/commands", body)
	if err != nil {
		return fmt.Errorf("command failed: %w", err)
	}

	var cr commandResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return fmt.Errorf("failed to decode command response: %w", err)
	}
	if !cr.Success {
		return fmt.Errorf("command rejected: %s", cr.Msg)
	}
	return nil
}

// doRequest performs an authenticated request. On 401 it re-logs-in
// once and retries the request once.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	data, status, err := c.attempt(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.logger.Info("Token rejected, re-authenticating")
		if err := c.Login(ctx); err != nil {
			return nil, fmt.Errorf("re-authentication failed: %w", err)
		}
		data, status, err = c.attempt(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return data, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		if err := c.Login(ctx); err != nil {
			return nil, 0, err
		}
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}
