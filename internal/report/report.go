// Package report renders pipeline results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.io/infrasutra/inboxsweep/internal/pipeline"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

var (
	Primary = lipgloss.Color("#1cc2e3")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Muted   = lipgloss.Color("#6B7280")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	CountStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Success)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

// Column is one table column. Width 0 disables padding and truncation.
type Column struct {
	Header string
	Width  int
	Style  lipgloss.Style
}

var columns = []Column{
	{Header: "SENDER", Width: 24},
	{Header: "EMAIL", Width: 30},
	{Header: "COUNT", Width: 5, Style: CountStyle},
	{Header: "SUBJECT", Width: 36},
	{Header: "UNSUBSCRIBE"},
}

// Document is the JSON shape written by Write.
type Document struct {
	Path          pipeline.Path               `json:"path"`
	AIError       string                      `json:"aiError,omitempty"`
	Subscriptions []subscription.Subscription `json:"subscriptions"`
}

// Write renders result in the given format.
func Write(w io.Writer, format string, result pipeline.Result) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatPretty, "":
		return WritePretty(w, result)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func WriteJSON(w io.Writer, result pipeline.Result) error {
	doc := Document{Path: result.Path, Subscriptions: result.Subscriptions}
	if doc.Subscriptions == nil {
		doc.Subscriptions = []subscription.Subscription{}
	}
	if result.AIError != nil {
		doc.AIError = result.AIError.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func WritePretty(w io.Writer, result pipeline.Result) error {
	var b strings.Builder
	if len(result.Subscriptions) == 0 {
		b.WriteString(WarnStyle.Render("no subscriptions detected"))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	emails := 0
	for _, sub := range result.Subscriptions {
		emails += sub.Count
	}
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%d subscriptions from %d emails", len(result.Subscriptions), emails)))
	b.WriteString("\n\n")

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = HeaderStyle.Render(pad(col.Header, col.Width))
	}
	b.WriteString(strings.Join(headers, "  "))
	b.WriteString("\n")

	for _, sub := range result.Subscriptions {
		link := sub.UnsubscribeLink
		if link == "" {
			link = "-"
		}
		values := []string{sub.Sender, sub.Address, fmt.Sprintf("%d", sub.Count), sub.Subject, link}
		cells := make([]string, len(values))
		for i, val := range values {
			col := columns[i]
			cell := pad(Truncate(val, col.Width), col.Width)
			if col.Style.Value() != "" {
				cell = col.Style.Render(cell)
			}
			cells[i] = cell
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("\nextracted via %s", result.Path)
	if result.AIError != nil {
		footer += fmt.Sprintf(" (ai failed: %v)", result.AIError)
	}
	b.WriteString(MutedStyle.Render(footer))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Truncate shortens s to max terminal cells with an ellipsis. max 0 leaves s
// as is.
func Truncate(s string, max int) string {
	if max <= 0 || lipgloss.Width(s) <= max {
		return s
	}
	var b strings.Builder
	width := 0
	for _, r := range s {
		w := lipgloss.Width(string(r))
		if width+w > max-1 {
			break
		}
		b.WriteRune(r)
		width += w
	}
	return b.String() + "…"
}

// pad right-fills s with spaces up to width terminal cells.
func pad(s string, width int) string {
	if width <= 0 {
		return s
	}
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
