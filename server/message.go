package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// HandleMessage processes an incoming raw JSON message, which can be a single JSON-RPC object
// or a JSON array representing a batch of requests/notifications.
// It returns the responses to deliver, in request order. Notifications produce
// none, so the result is nil when there is nothing to send.
func (s *Server) HandleMessage(ctx context.Context, session types.ClientSession, rawMessage json.RawMessage) []*protocol.JSONRPCResponse {
	trimmed := bytes.TrimSpace(rawMessage)
	s.logger.Debug("HandleMessage for session %s: %s", session.SessionID(), string(trimmed))

	if !json.Valid(trimmed) {
		return []*protocol.JSONRPCResponse{
			protocol.NewErrorResponse(nil, protocol.CodeParseError, "Parse error", nil),
		}
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return []*protocol.JSONRPCResponse{
				protocol.NewErrorResponse(nil, protocol.CodeParseError, fmt.Sprintf("Failed to parse batch JSON: %v", err), nil),
			}
		}
		if len(batch) == 0 {
			s.logger.Warn("Session %s: received empty batch request", session.SessionID())
			return []*protocol.JSONRPCResponse{
				protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, "Received empty batch request", nil),
			}
		}

		responses := make([]*protocol.JSONRPCResponse, 0, len(batch))
		for _, single := range batch {
			if resp := s.handleSingleMessage(ctx, session, single); resp != nil {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			return nil
		}
		return responses
	}

	if resp := s.handleSingleMessage(ctx, session, trimmed); resp != nil {
		return []*protocol.JSONRPCResponse{resp}
	}
	return nil
}

// handleSingleMessage processes a single JSON-RPC request or notification object.
func (s *Server) handleSingleMessage(ctx context.Context, session types.ClientSession, rawMessage json.RawMessage) *protocol.JSONRPCResponse {
	sessionID := session.SessionID()

	var msg protocol.RawMessage
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		s.logger.Warn("Session %s: message is not a JSON-RPC object: %v", sessionID, err)
		return protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, "Invalid Request", nil)
	}

	if msg.JSONRPC != protocol.JSONRPCVersion {
		s.logger.Warn("Session %s: invalid jsonrpc version %q", sessionID, msg.JSONRPC)
		return protocol.NewErrorResponse(msg.ID, protocol.CodeInvalidRequest, "Invalid jsonrpc version", nil)
	}

	if msg.Method == "" {
		if msg.IsNotification() {
			return protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, "Invalid message: must be request (with id) or notification (with method)", nil)
		}
		// A response from the client. This server never issues requests.
		s.logger.Debug("Session %s: ignoring client response for id %v", sessionID, msg.ID)
		return nil
	}

	if msg.IsNotification() {
		s.handleNotification(ctx, session, msg.Method, msg.Params)
		return nil
	}
	return s.handleRequest(ctx, session, msg.ID, msg.Method, msg.Params)
}

// handleRequest routes a request to its method handler.
func (s *Server) handleRequest(ctx context.Context, session types.ClientSession, id interface{}, method string, rawParams json.RawMessage) *protocol.JSONRPCResponse {
	s.logger.Debug("Handling request for session %s: Method=%s, ID=%v", session.SessionID(), method, id)

	switch method {
	case protocol.MethodInitialize:
		return s.handleInitializeRequest(session, id, rawParams)
	case protocol.MethodPing:
		return protocol.NewSuccessResponse(id, struct{}{})
	case protocol.MethodListTools:
		return s.handleListToolsRequest(id, rawParams)
	case protocol.MethodCallTool:
		return s.handleCallToolRequest(ctx, session, id, rawParams)
	default:
		s.logger.Warn("Method not found for session %s: %s", session.SessionID(), method)
		mcpErr := protocol.NewMethodNotFoundError(method)
		return protocol.NewErrorResponse(id, mcpErr.Code, mcpErr.Message, nil)
	}
}

// handleNotification processes a notification. Notifications never produce
// a response, so failures are only logged.
func (s *Server) handleNotification(_ context.Context, session types.ClientSession, method string, rawParams json.RawMessage) {
	sessionID := session.SessionID()

	switch method {
	case protocol.MethodInitialized, protocol.MethodInitializedLegacy:
		session.Initialize()
		s.logger.Info("Session %s initialized (protocol %s)", sessionID, session.GetNegotiatedVersion())
	case protocol.MethodCancelled:
		var params protocol.CancelledNotificationParams
		if err := protocol.UnmarshalParams(rawParams, &params); err != nil {
			s.logger.Warn("Session %s: bad cancellation params: %v", sessionID, err)
			return
		}
		if s.cancelRequest(requestKey(sessionID, params.RequestID)) {
			s.logger.Info("Session %s: cancelled request %v (%s)", sessionID, params.RequestID, params.Reason)
		} else {
			s.logger.Debug("Session %s: cancellation for unknown request %v", sessionID, params.RequestID)
		}
	default:
		s.logger.Debug("No handler for notification %q from session %s", method, sessionID)
	}
}
