package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/inboxsweep/internal/pipeline"
	"github.io/infrasutra/inboxsweep/internal/sample"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) ([]subscription.ParsedMessage, error) {
	return nil, errors.New("model unavailable")
}

type rpcResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Contents []struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
		} `json:"contents"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testServer(t *testing.T) *server.MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(ServerConfig{
		Pipeline: pipeline.New(failingExtractor{}, logger),
		Fallback: pipeline.New(nil, logger),
		Version:  "test",
		Logger:   logger,
	})
}

func call(t *testing.T, srv *server.MCPServer, method string, params map[string]any) rpcResponse {
	t.Helper()
	message, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(srv.HandleMessage(context.Background(), message))
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(raw, &resp), string(raw))
	require.Nil(t, resp.Error, string(raw))
	return resp
}

func callExtract(t *testing.T, srv *server.MCPServer, args map[string]any) (ExtractResult, rpcResponse) {
	t.Helper()
	resp := call(t, srv, "tools/call", map[string]any{"name": toolExtract, "arguments": args})
	require.NotEmpty(t, resp.Result.Content)
	var result ExtractResult
	if !resp.Result.IsError {
		require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &result))
	}
	return result, resp
}

func TestExtractTool_FallsBackWhenAIFails(t *testing.T) {
	srv := testServer(t)

	result, _ := callExtract(t, srv, map[string]any{"text": sample.Text()})
	assert.Equal(t, pipeline.PathFallback, result.Path)
	assert.Equal(t, "model unavailable", result.AIError)
	require.Len(t, result.Subscriptions, 4)
	assert.Equal(t, "deals@shopmart.com", result.Subscriptions[1].Address)
}

func TestExtractTool_NoAI(t *testing.T) {
	srv := testServer(t)

	result, _ := callExtract(t, srv, map[string]any{"text": sample.Text(), "no_ai": true})
	assert.Equal(t, pipeline.PathFallback, result.Path)
	assert.Empty(t, result.AIError)
	assert.Len(t, result.Subscriptions, 4)
}

func TestExtractTool_Errors(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing", args: map[string]any{}, want: "text is required"},
		{name: "blank", args: map[string]any{"text": "  \n"}, want: "text cannot be empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp := callExtract(t, srv, tc.args)
			assert.True(t, resp.Result.IsError)
			assert.Equal(t, tc.want, resp.Result.Content[0].Text)
		})
	}
}

func TestSampleResource(t *testing.T) {
	srv := testServer(t)

	resp := call(t, srv, "resources/read", map[string]any{"uri": sampleURI})
	require.Len(t, resp.Result.Contents, 1)
	assert.Equal(t, sampleURI, resp.Result.Contents[0].URI)
	assert.Equal(t, sample.Text(), resp.Result.Contents[0].Text)
}
