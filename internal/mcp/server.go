// Package mcp exposes subscription extraction as a Model Context Protocol
// tool over stdio, so assistants can hand it pasted mail and get structured
// subscriptions back.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.io/infrasutra/inboxsweep/internal/pipeline"
	"github.io/infrasutra/inboxsweep/internal/sample"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

const (
	toolExtract = "extract_subscriptions"
	sampleURI   = "inboxsweep://sample"
)

type Runner interface {
	Run(ctx context.Context, text string) pipeline.Result
}

type ServerConfig struct {
	// Pipeline handles normal calls.
	Pipeline Runner
	// Fallback handles calls with no_ai set. Defaults to Pipeline.
	Fallback Runner
	Version  string
	Logger   *slog.Logger
}

// ExtractResult is the JSON body of an extract_subscriptions reply.
type ExtractResult struct {
	Path          pipeline.Path               `json:"path"`
	AIError       string                      `json:"aiError,omitempty"`
	Subscriptions []subscription.Subscription `json:"subscriptions"`
}

func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Fallback == nil {
		cfg.Fallback = cfg.Pipeline
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"inboxsweep",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	registerExtractTool(s, cfg)
	registerSampleResource(s)
	return s
}

// ServeStdio serves s on stdin and stdout until stdin closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerExtractTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool(toolExtract,
		mcp.WithDescription("Extract email subscriptions from raw email text. Messages are separated by a line containing only ---. Returns one entry per sender address with message count, first subject and unsubscribe link."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Raw email text, one or more messages with From:, Subject: and body lines"),
		),
		mcp.WithBoolean("no_ai",
			mcp.Description("Skip the LLM and use pattern matching only (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text cannot be empty"), nil
		}

		runner := cfg.Pipeline
		if req.GetBool("no_ai", false) {
			runner = cfg.Fallback
		}

		result := runner.Run(ctx, text)
		reply := ExtractResult{
			Path:          result.Path,
			Subscriptions: result.Subscriptions,
		}
		if result.AIError != nil {
			reply.AIError = result.AIError.Error()
		}
		cfg.Logger.Info("mcp extract", "path", result.Path, "subscriptions", len(result.Subscriptions))

		data, err := json.MarshalIndent(reply, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSampleResource(s *server.MCPServer) {
	resource := mcp.NewResource(
		sampleURI,
		"Sample newsletters",
		mcp.WithResourceDescription("Four demo newsletters in the format extract_subscriptions expects."),
		mcp.WithMIMEType("text/plain"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: sample.Text()},
		}, nil
	})
}
