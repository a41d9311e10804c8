package bridge

// State is the connection lifecycle state of the bridge client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
)

// Status is the snapshot returned to the control socket status query.
// Connected means the transport is open and the welcome has arrived;
// an open but unauthenticated link is not connected.
type Status struct {
	State         State  `json:"state"`
	Connected     bool   `json:"connected"`
	Authenticated bool   `json:"authenticated"`
	Endpoint      string `json:"endpoint"`
	TokenSet      bool   `json:"token_set"`
	LastError     string `json:"last_error,omitempty"`
	Attempt       int    `json:"attempt"`
}
