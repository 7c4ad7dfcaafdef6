package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// AuthError reports a rejected or malformed authentication handshake.
// Raw holds the server response for diagnostics.
type AuthError struct {
	Raw []byte
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Raw)
}

// DecodeError reports a malformed inbound payload. The read loop treats
// it as fatal to the connection.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Request is an outbound control message.
type Request struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// AuthData is the payload of an authenticate request.
type AuthData struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

// ListenData is the payload of a listen request.
type ListenData struct {
	Streams []string `json:"streams"`
}

// authResponse is the inbound reply to an authenticate request. A
// missing data field decodes to a nil map, distinguishable from an
// empty object.
type authResponse struct {
	Data map[string]any `json:"data"`
}

// streamMessage is a decoded inbound event.
type streamMessage struct {
	Stream string         `json:"stream"`
	Data   map[string]any `json:"data"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://api.alpaca.markets/stream)
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// State of a managed connection.
type State int

const (
	StateUnconnected State = iota
	StateAuthenticating
	StateOpen
	StateClosed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
