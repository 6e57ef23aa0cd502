package parser

import (
	"iter"
	"regexp"
	"strings"
)

// Delimiter is the separator written between messages when joining sections.
const Delimiter = "\n\n---\n\n"

// A line holding only "---", with or without one blank line on each side.
var delimiterPattern = regexp.MustCompile(`\r?\n---\r?\n|\r?\n\r?\n---\r?\n\r?\n`)

// Sections yields the raw, untrimmed text between delimiters.
// Input without a delimiter yields the whole input once.
func Sections(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			loc := delimiterPattern.FindStringIndex(rest)
			if loc == nil {
				yield(rest)
				return
			}
			if !yield(rest[:loc[0]]) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// Segment yields trimmed sections. Empty sections are kept; dropping them is
// up to the caller.
func Segment(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for section := range Sections(text) {
			if !yield(strings.TrimSpace(section)) {
				return
			}
		}
	}
}

// Join concatenates sections with Delimiter, skipping blank ones.
func Join(sections []string) string {
	kept := make([]string, 0, len(sections))
	for _, section := range sections {
		if trimmed := strings.TrimSpace(section); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, Delimiter)
}
