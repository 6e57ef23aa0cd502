package mailfmt

import (
	"fmt"
	"io"

	"github.com/emersion/go-mbox"
)

// ReadMbox parses every message of an mbox stream. Messages without a
// sender address are skipped.
func ReadMbox(r io.Reader) ([]Message, error) {
	reader := mbox.NewReader(r)

	var messages []Message
	for {
		mr, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return messages, fmt.Errorf("read mbox message: %w", err)
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			return messages, fmt.Errorf("read mbox message: %w", err)
		}
		msg, _ := Parse(raw)
		if msg.Address == "" {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
