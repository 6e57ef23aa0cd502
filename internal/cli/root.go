package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.io/infrasutra/inboxsweep/internal/aiextract"
	"github.io/infrasutra/inboxsweep/internal/config"
	"github.io/infrasutra/inboxsweep/internal/pipeline"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

var (
	cfgFile string
	llmFlag string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "inboxsweep",
	Short: "Find the newsletters and mailing lists cluttering your inbox",
	Long: `inboxsweep turns raw email text into a list of subscriptions: one entry
per sender address with a message count and the best unsubscribe link found.

Messages are separated by a line containing only ---. Extraction uses an LLM
when one is configured and falls back to pattern matching otherwise.

Examples:
  inboxsweep scan mail.txt
  inboxsweep scan --mbox ~/Mail/inbox.mbox --output json
  inboxsweep serve
  inboxsweep mcp --llm anthropic/claude-sonnet-4-20250514`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&llmFlag, "llm", "",
		"LLM as provider/model, e.g. anthropic/claude-sonnet-4-20250514 or openai/gpt-4o-mini")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if llmFlag != "" {
		loaded.LLM = llmFlag
	}
	cfg = loaded
	return nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// buildPipeline wires the LLM client from cfg. Without an LLM, or with
// noAI set, the pipeline only uses pattern matching.
func buildPipeline(cfg config.Config, logger *slog.Logger, noAI bool) (*pipeline.Pipeline, error) {
	if noAI || cfg.LLM == "" {
		return pipeline.New(nil, logger), nil
	}

	llmConfig, err := aiextract.ParseLLMFlag(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if cfg.LLMEndpoint != "" {
		llmConfig.Endpoint = cfg.LLMEndpoint
	}
	if cfg.LLMAPIKey != "" {
		llmConfig.APIKey = cfg.LLMAPIKey
	}
	if cfg.LLMMaxTokens > 0 {
		llmConfig.MaxTokens = cfg.LLMMaxTokens
	}
	if cfg.LLMTimeoutSecs > 0 {
		llmConfig.TimeoutSecs = cfg.LLMTimeoutSecs
	}
	if err := llmConfig.Validate(); err != nil {
		return nil, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}

	logger.Info("ai extraction enabled", "provider", llmConfig.Provider, "model", llmConfig.Model)
	return pipeline.New(aiextract.NewClient(llmConfig), logger), nil
}
