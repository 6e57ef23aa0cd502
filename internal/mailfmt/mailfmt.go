// Package mailfmt renders RFC 5322 messages into the plain-text section
// format read by the subscription pipeline:
//
//	From: Name <address>
//	Subject: subject
//	Unsubscribe: https://...
//
//	body
package mailfmt

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.io/infrasutra/inboxsweep/internal/parser"
)

func init() {
	message.CharsetReader = charsetReader
}

// Message is the subset of an email the pipeline cares about.
type Message struct {
	Sender         string
	Address        string
	Subject        string
	UnsubscribeURL string
	Text           string
}

var (
	htmlTag        = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRun       = regexp.MustCompile(`\n{3,}`)
	delimiterLine  = regexp.MustCompile(`(?m)^---\r?$`)
	unsubscribeKey = "List-Unsubscribe"
)

// Parse reads headers and the first text body of raw. A partially parsed
// message is returned together with the error when the body is malformed.
func Parse(raw []byte) (Message, error) {
	var msg Message

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && reader == nil {
		return msg, fmt.Errorf("read message: %w", err)
	}

	if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		msg.Sender = strings.TrimSpace(fromList[0].Name)
		msg.Address = strings.ToLower(strings.TrimSpace(fromList[0].Address))
	} else if from := strings.TrimSpace(reader.Header.Get("From")); from != "" {
		msg.Address = from
	}
	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	}
	msg.UnsubscribeURL = HTTPUnsubscribeURL(reader.Header.Get(unsubscribeKey))

	var htmlBody string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, fmt.Errorf("read message part: %w", err)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case (strings.HasPrefix(mediaType, "text/plain") || mediaType == "") && msg.Text == "":
			msg.Text = string(body)
		case strings.HasPrefix(mediaType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}
	if msg.Text == "" && htmlBody != "" {
		msg.Text = stripHTML(htmlBody)
	}
	return msg, nil
}

// Section renders the message for the pipeline. Body lines that would read
// as a message delimiter are rewritten.
func (m Message) Section() string {
	var b strings.Builder
	name := displayName(m.Sender)
	switch {
	case name != "" && m.Address != "":
		fmt.Fprintf(&b, "From: %s <%s>\n", name, sanitizeHeader(m.Address))
	case m.Address != "":
		fmt.Fprintf(&b, "From: %s\n", sanitizeHeader(m.Address))
	}
	if m.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", sanitizeHeader(m.Subject))
	}
	if m.UnsubscribeURL != "" {
		fmt.Fprintf(&b, "Unsubscribe: %s\n", m.UnsubscribeURL)
	}
	text := strings.TrimSpace(strings.ReplaceAll(m.Text, "\r\n", "\n"))
	if text != "" {
		b.WriteString("\n")
		b.WriteString(delimiterLine.ReplaceAllString(text, "- - -"))
		b.WriteString("\n")
	}
	return b.String()
}

// Render parses raw and returns its section text.
func Render(raw []byte) (string, error) {
	msg, err := Parse(raw)
	if err != nil && msg.Address == "" {
		return "", err
	}
	return msg.Section(), nil
}

// JoinMessages renders messages into one blob separated by the pipeline delimiter.
func JoinMessages(messages []Message) string {
	sections := make([]string, 0, len(messages))
	for _, msg := range messages {
		sections = append(sections, msg.Section())
	}
	return parser.Join(sections)
}

// HTTPUnsubscribeURL returns the first http(s) entry of a List-Unsubscribe
// header value, or "" when it only holds mailto links.
func HTTPUnsubscribeURL(header string) string {
	for _, entry := range strings.Split(header, ",") {
		entry = strings.TrimSpace(entry)
		entry = strings.TrimPrefix(entry, "<")
		entry = strings.TrimSuffix(entry, ">")
		lower := strings.ToLower(entry)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return entry
		}
	}
	return ""
}

func stripHTML(html string) string {
	text := htmlTag.ReplaceAllString(html, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func sanitizeHeader(value string) string {
	cleaned := strings.ReplaceAll(value, "\r", "")
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	return strings.TrimSpace(cleaned)
}

// displayName drops angle brackets so the address stays the only <...>
// group on the From line.
func displayName(name string) string {
	return strings.Join(strings.Fields(angleReplacer.Replace(sanitizeHeader(name))), " ")
}

var angleReplacer = strings.NewReplacer("<", " ", ">", " ")

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	if charset == "" {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
