package cli

import (
	"os"

	"github.com/spf13/cobra"

	sweepmcp "github.io/infrasutra/inboxsweep/internal/mcp"
	"github.io/infrasutra/inboxsweep/internal/pipeline"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the extract_subscriptions tool over MCP stdio",
	Long: `Serve the extract_subscriptions tool over the Model Context Protocol on
stdin and stdout. Logs go to stderr.

Example client entry:
  {"command": "inboxsweep", "args": ["mcp", "--llm", "openai/gpt-4o-mini"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stderr, cfg)

	p, err := buildPipeline(cfg, logger, false)
	if err != nil {
		logger.Error("configure pipeline", "error", err)
		return err
	}

	srv := sweepmcp.NewServer(sweepmcp.ServerConfig{
		Pipeline: p,
		Fallback: pipeline.New(nil, logger),
		Version:  Version,
		Logger:   logger,
	})
	logger.Info("mcp server ready", "transport", "stdio")
	return sweepmcp.ServeStdio(srv)
}
