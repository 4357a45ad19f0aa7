package protocol

import "fmt"

// MCPError wraps ErrorPayload to implement the error interface.
// Handlers can return this type to provide specific JSON-RPC error details.
type MCPError struct {
	ErrorPayload
}

// Error implements the error interface for MCPError.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP Error: Code=%d, Message=%s", e.Code, e.Message)
}

// NewInvalidParamsError creates a new MCPError for Invalid Params.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{
		ErrorPayload: ErrorPayload{
			Code:    CodeInvalidParams,
			Message: message,
		},
	}
}

// NewMethodNotFoundError creates a new MCPError for Method Not Found.
func NewMethodNotFoundError(methodName string) *MCPError {
	return &MCPError{
		ErrorPayload: ErrorPayload{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", methodName),
		},
	}
}

// NewAuthenticationError creates a new MCPError for a rejected credential.
func NewAuthenticationError(message string) *MCPError {
	return &MCPError{
		ErrorPayload: ErrorPayload{
			Code:    CodeAuthenticationFailed,
			Message: message,
		},
	}
}
