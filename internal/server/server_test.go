package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
	"github.com/golovatskygroup/jira-lens/internal/resolver"
	"github.com/golovatskygroup/jira-lens/internal/tools"
	"github.com/golovatskygroup/jira-lens/pkg/mcp"
)

func newTestServer(t *testing.T, input string, out *bytes.Buffer) *Server {
	t.Helper()
	cache := catalog.NewCache(catalog.FetcherFunc(func(context.Context) ([]catalog.Project, error) {
		return []catalog.Project{{Key: "AIT", Name: "AITECH"}, {Key: "HR", Name: "People"}}, nil
	}), time.Hour)
	r, err := resolver.New(resolver.Options{Catalog: cache})
	require.NoError(t, err)
	return New(tools.NewHandler(r, cache, nil), Options{In: strings.NewReader(input), Out: out, Version: "test"})
}

func run(t *testing.T, lines ...string) []mcp.Response {
	t.Helper()
	var out bytes.Buffer
	s := newTestServer(t, strings.Join(lines, "\n")+"\n", &out)
	require.NoError(t, s.Run(context.Background()))

	var resps []mcp.Response
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r mcp.Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		resps = append(resps, r)
	}
	return resps
}

func TestInitializeHandshake(t *testing.T) {
	resps := run(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)
	require.Len(t, resps, 2)

	var init mcp.InitializeResult
	require.NoError(t, json.Unmarshal(resps[0].Result, &init))
	assert.Equal(t, mcp.ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, "jira-lens", init.ServerInfo.Name)
	assert.Equal(t, "test", init.ServerInfo.Version)
	assert.NotNil(t, init.Capabilities.Tools)
	assert.Contains(t, init.Instructions, "jira_find_project")

	assert.Equal(t, "2", string(resps[1].ID))
	assert.Nil(t, resps[1].Error)
}

func TestToolsListAndCall(t *testing.T) {
	resps := run(t,
		`{"jsonrpc":"2.0","id":"a","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"b","method":"tools/call","params":{"name":"jira_find_project","arguments":{"query":"aitex"}}}`,
	)
	require.Len(t, resps, 2)

	var list mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(resps[0].Result, &list))
	assert.Len(t, list.Tools, 4)

	var call mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resps[1].Result, &call))
	require.False(t, call.IsError)
	assert.Contains(t, call.Content[0].Text, `"key": "AIT"`)
}

func TestCallToolErrors(t *testing.T) {
	resps := run(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_tools","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":"nope"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"jira_find_project","arguments":{"limit":3}}}`,
	)
	require.Len(t, resps, 3)

	require.NotNil(t, resps[0].Error)
	assert.Equal(t, mcp.InvalidParams, resps[0].Error.Code)
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, mcp.InvalidParams, resps[1].Error.Code)

	require.Nil(t, resps[2].Error)
	var call mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resps[2].Result, &call))
	assert.True(t, call.IsError)
}

func TestUnknownMethodAndMalformedInput(t *testing.T) {
	resps := run(t,
		`{"jsonrpc":"2.0","id":7,"method":"resources/list"}`,
		`{not json`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7}}`,
		`{"jsonrpc":"2.0","id":8,"method":"ping"}`,
	)
	require.Len(t, resps, 3)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, mcp.MethodNotFound, resps[0].Error.Code)
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, mcp.ParseError, resps[1].Error.Code)
	assert.Equal(t, "null", string(resps[1].ID))
	assert.Nil(t, resps[2].Error)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	var out bytes.Buffer
	s := newTestServer(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n", &out)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Empty(t, out.String())
}
