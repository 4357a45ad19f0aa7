package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponseSerialization(t *testing.T) {
	resp := NewErrorResponse("err-id", CodeInternalError, "Internal error", nil)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "2.0", parsed["jsonrpc"])
	assert.Equal(t, "err-id", parsed["id"])
	_, hasResult := parsed["result"]
	assert.False(t, hasResult, "result must be omitted on error responses")

	errObj, ok := parsed["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(-32603), errObj["code"])
	assert.Equal(t, "Internal error", errObj["message"])
}

func TestErrorResponseKeepsNullID(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse(nil, CodeParseError, "Parse error", nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":null`)
}

func TestCallToolResultEnvelope(t *testing.T) {
	ok, err := json.Marshal(NewTextResult(`{"found":true}`, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"{\"found\":true}"}]}`, string(ok))

	failed, err := json.Marshal(NewTextResult(`{"found":false,"error":"HTTP 404"}`, true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"{\"found\":false,\"error\":\"HTTP 404\"}"}],"isError":true}`, string(failed))
}

func TestRawMessageNotification(t *testing.T) {
	var req RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`), &req))
	assert.False(t, req.IsNotification())

	var notif RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &notif))
	assert.True(t, notif.IsNotification())
}

func TestUnmarshalParams(t *testing.T) {
	var params CallToolParams
	require.NoError(t, UnmarshalParams(nil, &params))
	assert.Empty(t, params.Name)

	require.NoError(t, UnmarshalParams(json.RawMessage(`{"name":"get_ficha_tecnica","arguments":{"codigo":"10.100"}}`), &params))
	assert.Equal(t, "get_ficha_tecnica", params.Name)
	assert.Equal(t, "10.100", params.Arguments["codigo"])

	assert.Error(t, UnmarshalParams(json.RawMessage(`[1,2]`), &params))
}

func TestEncodeResponses(t *testing.T) {
	assert.True(t, IsBatch([]byte("  \n[{}]")))
	assert.False(t, IsBatch([]byte(`{"jsonrpc":"2.0"}`)))
	assert.False(t, IsBatch(nil))
	assert.False(t, IsBatch([]byte(`[]`)))
	assert.False(t, IsBatch([]byte(`[{"jsonrpc":`)))

	one := []*JSONRPCResponse{NewSuccessResponse(1, struct{}{})}
	data, err := EncodeResponses(false, one)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(data))

	data, err = EncodeResponses(true, one)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"jsonrpc":"2.0","id":1,"result":{}}]`, string(data))

	_, err = EncodeResponses(false, nil)
	assert.Error(t, err)
}
