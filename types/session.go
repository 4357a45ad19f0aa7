package types

import (
	"github.com/localrivet/fichas-mcp/protocol"
)

// ClientSession represents an active connection from a single client.
// The core server uses it to deliver responses back to
// the client that sent the request, whatever transport carries them.
type ClientSession interface {
	// SessionID returns a unique identifier for this session.
	SessionID() string

	// SendResponse sends a JSON-RPC response to the client session.
	SendResponse(response protocol.JSONRPCResponse) error

	// Initialize marks the session as having completed the MCP handshake.
	Initialize()

	// Initialized returns true if the session has completed the MCP handshake.
	Initialized() bool

	// SetNegotiatedVersion stores the protocol version agreed upon during initialization.
	SetNegotiatedVersion(version string)

	// GetNegotiatedVersion returns the protocol version agreed upon during initialization.
	GetNegotiatedVersion() string
}
