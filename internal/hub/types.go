package hub

// Message is the wire format spoken with the automation hub. The
// handshake mirrors the hub's auth flow (auth_required, auth, auth_ok,
// auth_invalid); after that the bridge sends "update" messages and the
// hub sends "set" messages.
type Message struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Property    string `json:"property,omitempty"`
	Value       int    `json:"value"`
}

// Message types.
const (
	TypeAuthRequired = "auth_required"
	TypeAuth         = "auth"
	TypeAuthOk       = "auth_ok"
	TypeAuthInvalid  = "auth_invalid"
	TypeUpdate       = "update"
	TypeSet          = "set"
)
