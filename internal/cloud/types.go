package cloud

import (
	"context"

	"airbridge/internal/device"
)

// DeviceState is one appliance's state as reported by a poll.
type DeviceState struct {
	DeviceID     string       `json:"device_id"`
	Name         string       `json:"name"`
	Model        string       `json:"model"`
	Online       bool         `json:"online"`
	Capabilities device.Patch `json:"capabilities"`
}

// API is the remote appliance service consumed by the bridge. Poll is
// one batched call covering every appliance on the account; a failure
// of that call is a failure for the whole group.
type API interface {
	Login(ctx context.Context) error
	Poll(ctx context.Context) (map[string]DeviceState, error)
	SendCommand(ctx context.Context, deviceID string, patch device.Patch) error
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type pollResponse struct {
	Devices []DeviceState `json:"devices"`
}

type commandRequest struct {
	Commands device.Patch `json:"commands"`
}

type commandResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}
