package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportReadMessageSkipsBlankLines(t *testing.T) {
	in := strings.NewReader("\n\n{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n")
	tr := NewTransport(in, io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Method)
	assert.Equal(t, "1", string(req.ID))
	assert.False(t, req.IsNotification())

	_, err = tr.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransportReadMessageWithoutTrailingNewline(t *testing.T) {
	tr := NewTransport(strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.True(t, req.IsNotification())
}

func TestTransportReadMessageMalformed(t *testing.T) {
	tr := NewTransport(strings.NewReader("not json\n{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"x\"}\n"), io.Discard)

	_, err := tr.ReadMessage()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "x", req.Method)
}

func TestTransportWriteResponse(t *testing.T) {
	var out bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &out)

	resp, err := NewResponse(json.RawMessage("7"), map[string]any{"ok": true})
	require.NoError(t, err)
	require.NoError(t, tr.WriteResponse(resp))
	require.NoError(t, tr.WriteResponse(NewErrorResponse(nil, MethodNotFound, "nope")))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`, lines[0])
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32601,"message":"nope"}}`, lines[1])
}
