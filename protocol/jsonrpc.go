// Package protocol defines the structures and constants for the Model Context Protocol (MCP),
// based on the JSON-RPC 2.0 specification.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only version string accepted in the "jsonrpc" field.
const JSONRPCVersion = "2.0"

// ErrorPayload defines the structure for the 'error' object within a JSON-RPC error response.
type ErrorPayload struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONRPCRequest represents a standard JSON-RPC request object.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`          // MUST be "2.0"
	ID      interface{} `json:"id"`               // string or number
	Method  string      `json:"method"`           // e.g. "initialize", "tools/call"
	Params  interface{} `json:"params,omitempty"` // struct or array
}

// JSONRPCResponse represents a standard JSON-RPC response object.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"` // same as the request ID, or null if it could not be parsed
	Result  interface{}   `json:"result,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// RawMessage is the loosely parsed shape of any incoming JSON-RPC object.
// Params are kept raw so each method can decode them into its own type.
type RawMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message carries no id.
func (m *RawMessage) IsNotification() bool {
	return m.ID == nil
}

// NewSuccessResponse creates a new JSON-RPC success response object.
func NewSuccessResponse(id interface{}, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates a new JSON-RPC error response object.
func NewErrorResponse(id interface{}, code ErrorCode, message string, data interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &ErrorPayload{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// UnmarshalParams decodes raw params into target. Missing params are
// treated as an empty object so methods without required params work.
func UnmarshalParams(params json.RawMessage, target interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, target); err != nil {
		return fmt.Errorf("failed to unmarshal params into %T: %w", target, err)
	}
	return nil
}

// IsBatch reports whether raw is a well-formed, non-empty JSON array, i.e.
// a JSON-RPC batch whose responses must be returned as an array as well.
// Malformed input and empty arrays are answered with a single error object.
func IsBatch(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var batch []json.RawMessage
	return json.Unmarshal(trimmed, &batch) == nil && len(batch) > 0
}

// EncodeResponses marshals responses for the message that produced them:
// an array for a batch, a single object otherwise.
func EncodeResponses(batch bool, responses []*JSONRPCResponse) ([]byte, error) {
	if batch {
		return json.Marshal(responses)
	}
	if len(responses) != 1 {
		return nil, fmt.Errorf("expected one response for a single message, got %d", len(responses))
	}
	return json.Marshal(responses[0])
}
