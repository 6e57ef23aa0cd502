package parser

import "regexp"

// LinkFinder locates the unsubscribe URL of a message.
type LinkFinder interface {
	FindUnsubscribeLink(text string) (string, bool)
}

// LinkFinderFunc adapts a function to LinkFinder.
type LinkFinderFunc func(text string) (string, bool)

func (f LinkFinderFunc) FindUnsubscribeLink(text string) (string, bool) {
	return f(text)
}

var unsubscribePattern = regexp.MustCompile(`(?i)unsubscribe[:\s]+?(https?://[^\s<>]+)`)

// PatternLinkFinder returns the first capture group of the first match of Pattern.
type PatternLinkFinder struct {
	Pattern *regexp.Regexp
}

// DefaultLinkFinder matches "unsubscribe" followed by ':' or whitespace and an
// absolute http(s) URL, case-insensitively.
var DefaultLinkFinder LinkFinder = PatternLinkFinder{Pattern: unsubscribePattern}

func (f PatternLinkFinder) FindUnsubscribeLink(text string) (string, bool) {
	pattern := f.Pattern
	if pattern == nil {
		pattern = unsubscribePattern
	}
	match := pattern.FindStringSubmatch(text)
	if len(match) < 2 || match[1] == "" {
		return "", false
	}
	return match[1], true
}
