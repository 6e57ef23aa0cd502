package parser

import (
	"regexp"
	"strings"

	"github.io/infrasutra/inboxsweep/internal/subscription"
)

var (
	fromPattern   = regexp.MustCompile(`(?i)^from:\s*(.+?)(?:\s*<(.+?)>)?$`)
	subjectPrefix = regexp.MustCompile(`(?i)^subject:\s*`)
)

type Option func(*Extractor)

func WithLinkFinder(finder LinkFinder) Option {
	return func(e *Extractor) {
		if finder != nil {
			e.links = finder
		}
	}
}

// Extractor pulls header fields out of a plain-text section without any
// external service.
type Extractor struct {
	links LinkFinder
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{links: DefaultLinkFinder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractBasic parses one section. It reports false when no sender and
// address could be found.
//
// A From line without an angle-bracketed address uses the bare value as both
// sender and address.
func (e *Extractor) ExtractBasic(section string) (subscription.ParsedMessage, bool) {
	message := subscription.ParsedMessage{Body: section}
	lines := strings.Split(strings.TrimSpace(section), "\n")

	if line, ok := findPrefixed(lines, "from:"); ok {
		if match := fromPattern.FindStringSubmatch(line); match != nil {
			message.Sender = strings.TrimSpace(match[1])
			message.Address = strings.TrimSpace(match[2])
			if message.Address == "" {
				message.Address = message.Sender
			}
		}
	}

	if line, ok := findPrefixed(lines, "subject:"); ok {
		message.Subject = strings.TrimSpace(subjectPrefix.ReplaceAllString(line, ""))
	}

	if link, ok := e.links.FindUnsubscribeLink(section); ok {
		message.UnsubscribeLink = link
	}

	if !message.Valid() {
		return subscription.ParsedMessage{}, false
	}
	return message, true
}

// ExtractBasic runs the default Extractor.
func ExtractBasic(section string) (subscription.ParsedMessage, bool) {
	return defaultExtractor.ExtractBasic(section)
}

var defaultExtractor = NewExtractor()

func findPrefixed(lines []string, prefix string) (string, bool) {
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return line, true
		}
	}
	return "", false
}
