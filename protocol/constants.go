package protocol

const (
	// CurrentProtocolVersion is the newest MCP revision this server speaks.
	CurrentProtocolVersion = "2025-03-26"
	// OldProtocolVersion is the HTTP+SSE era revision, still accepted.
	OldProtocolVersion = "2024-11-05"

	// Initialization
	MethodInitialize        = "initialize"
	MethodInitialized       = "notifications/initialized"
	MethodInitializedLegacy = "initialized"

	// Tools
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"

	// Ping
	MethodPing = "ping"

	// Cancellation (notification)
	MethodCancelled = "notifications/cancelled"
)

// SupportedProtocolVersions lists every revision accepted during initialize,
// newest first.
var SupportedProtocolVersions = []string{CurrentProtocolVersion, OldProtocolVersion}

// ErrorCode is a JSON-RPC error code.
type ErrorCode int

// Standard JSON-RPC error codes.
const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603

	// CodeAuthenticationFailed is in the implementation-defined server error range.
	CodeAuthenticationFailed ErrorCode = -32001
)
