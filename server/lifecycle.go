package server

import (
	"encoding/json"
	"fmt"

	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/types"
)

// negotiateVersion echoes the client's revision when supported and
// otherwise offers the newest one this server speaks.
func negotiateVersion(requested string) string {
	for _, v := range protocol.SupportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return protocol.CurrentProtocolVersion
}

func (s *Server) handleInitializeRequest(session types.ClientSession, id interface{}, rawParams json.RawMessage) *protocol.JSONRPCResponse {
	var params protocol.InitializeRequestParams
	if err := protocol.UnmarshalParams(rawParams, &params); err != nil {
		return protocol.NewErrorResponse(id, protocol.CodeInvalidParams, fmt.Sprintf("Failed to parse initialize params: %v", err), nil)
	}

	version := negotiateVersion(params.ProtocolVersion)
	if version != params.ProtocolVersion {
		s.logger.Warn("Session %s: client requested unsupported protocol version %q, offering %s",
			session.SessionID(), params.ProtocolVersion, version)
	}
	session.SetNegotiatedVersion(version)

	s.logger.Info("Session %s: initialize from %s %s (protocol %s)",
		session.SessionID(), params.ClientInfo.Name, params.ClientInfo.Version, version)

	return protocol.NewSuccessResponse(id, protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    s.serverCapabilities,
		ServerInfo: protocol.Implementation{
			Name:    s.serverName,
			Version: s.serverVersion,
		},
		Instructions: s.serverInstructions,
	})
}
