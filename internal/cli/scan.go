package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.io/infrasutra/inboxsweep/internal/mailfmt"
	"github.io/infrasutra/inboxsweep/internal/report"
)

var (
	scanMbox   bool
	scanOutput string
	scanNoAI   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [file|-]",
	Short: "Extract subscriptions from a text or mbox file",
	Long: `Extract subscriptions from raw email text and print them.

Reads the named file, or standard input when the argument is - or missing.
With --mbox the input is an mbox mailbox; each message is rendered and
scanned as one section.

Examples:
  inboxsweep scan mail.txt
  pbpaste | inboxsweep scan -
  inboxsweep scan --mbox inbox.mbox --output json --no-ai`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanMbox, "mbox", false,
		"Treat the input as an mbox mailbox")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", report.FormatPretty,
		"Output format: pretty, json")
	scanCmd.Flags().BoolVar(&scanNoAI, "no-ai", false,
		"Use pattern matching only, even when an LLM is configured")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanOutput != report.FormatPretty && scanOutput != report.FormatJSON {
		return fmt.Errorf("unknown output format %q", scanOutput)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	input := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	text, err := readScanInput(input, scanMbox)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, logger, scanNoAI)
	if err != nil {
		return err
	}
	result := p.Run(cmd.Context(), text)
	return report.Write(cmd.OutOrStdout(), scanOutput, result)
}

func readScanInput(r io.Reader, mbox bool) (string, error) {
	if mbox {
		messages, err := mailfmt.ReadMbox(r)
		if err != nil {
			return "", err
		}
		return mailfmt.JoinMessages(messages), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}
