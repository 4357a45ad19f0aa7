// Package ficha declares the get_ficha_tecnica tool, which resolves a
// product code into its technical-sheet record through the lookup backend.
package ficha

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/localrivet/fichas-mcp/backend"
	"github.com/localrivet/fichas-mcp/protocol"
	"github.com/localrivet/fichas-mcp/server"
	"github.com/localrivet/fichas-mcp/util/schema"
)

// ToolName is the name clients call.
const ToolName = "get_ficha_tecnica"

// Instructions is returned to clients in the initialize result.
const Instructions = "Usa get_ficha_tecnica con el código de un producto (ej. 10.100) para obtener el enlace a su ficha técnica."

// Args is the input of get_ficha_tecnica.
type Args struct {
	Codigo string `json:"codigo" required:"true" minLength:"1" description:"Código del producto, ej. 10.100"`
}

// Envelope is the JSON text returned when a lookup fails.
type Envelope struct {
	Found bool   `json:"found"`
	Error string `json:"error"`
}

// Tool returns the declaration advertised by tools/list.
func Tool() protocol.Tool {
	readOnly, openWorld := true, true
	return protocol.Tool{
		Name:        ToolName,
		Description: "Busca la ficha técnica de un producto por su código y devuelve el registro {found, codigo, url}.",
		InputSchema: schema.FromStruct(Args{}),
		Annotations: &protocol.ToolAnnotations{
			Title:         "Ficha técnica",
			ReadOnlyHint:  &readOnly,
			OpenWorldHint: &openWorld,
		},
	}
}

// Register declares get_ficha_tecnica on srv, backed by lookuper.
func Register(srv *server.Server, lookuper backend.Lookuper) error {
	return srv.RegisterTool(Tool(), Handler(lookuper))
}

// Handler returns the tool handler. Every outcome is a single text block:
// the backend record on success, an Envelope with isError otherwise.
func Handler(lookuper backend.Lookuper) server.ToolHandlerFunc {
	return func(ctx context.Context, arguments any) ([]protocol.Content, bool) {
		args, err := schema.DecodeArgs[Args](arguments)
		if err != nil {
			return errorResult(err.Error())
		}

		record, err := lookuper.Lookup(ctx, args.Codigo)
		if err != nil {
			return errorResult(failureMessage(err))
		}
		return []protocol.Content{protocol.NewTextContent(string(record))}, false
	}
}

// failureMessage maps backend errors to the text clients see.
func failureMessage(err error) string {
	var connErr *backend.ConnectionError
	var statusErr *backend.StatusError
	switch {
	case errors.As(err, &connErr):
		return backend.ConnectionErrorMessage
	case errors.As(err, &statusErr):
		return statusErr.Error()
	default:
		return err.Error()
	}
}

func errorResult(message string) ([]protocol.Content, bool) {
	text, err := json.Marshal(Envelope{Found: false, Error: message})
	if err != nil {
		text = []byte(`{"found":false,"error":"internal error"}`)
	}
	return []protocol.Content{protocol.NewTextContent(string(text))}, true
}
