package protocol

import "encoding/json"

const (
	Version = "2.0"

	// Message types exchanged during the handshake.
	TypeHello   = "hello"
	TypeWelcome = "welcome"

	// Client identity announced in the hello message.
	ClientName      = "bridged"
	ProtocolVersion = 1
)

// JSON-RPC error codes used on the wire and on the control socket.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Hello is the first message sent after the transport opens.
type Hello struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Client  string `json:"client"`
	Version int    `json:"version"`
}

func NewHello(token string) Hello {
	return Hello{
		Type:    TypeHello,
		Token:   token,
		Client:  ClientName,
		Version: ProtocolVersion,
	}
}

// Envelope is the minimal shape every inbound message is probed with
// before deciding whether it is a handshake message or an RPC request.
type Envelope struct {
	Type    string          `json:"type,omitempty"`
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsWelcome reports whether the message marks the link as authenticated.
func (e *Envelope) IsWelcome() bool {
	return e.Type == TypeWelcome
}

// IsRequest reports whether the message is a well-formed RPC request.
// Anything missing the protocol marker, id, or method is not addressable
// and gets dropped by the caller.
func (e *Envelope) IsRequest() bool {
	return e.JSONRPC == Version && len(e.ID) > 0 && e.Method != ""
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewResult builds a success response echoing the request id.
func NewResult(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError builds an error response echoing the request id.
func NewError(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}
