package aiextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.io/infrasutra/inboxsweep/internal/subscription"
)

var codeFence = regexp.MustCompile("```(?:json)?\\n?")

type extractedEmail struct {
	Sender          string `json:"sender"`
	Email           string `json:"email"`
	Subject         string `json:"subject"`
	UnsubscribeLink string `json:"unsubscribeLink"`
	Body            string `json:"body"`
}

// StripCodeFences removes markdown code fences the model may wrap around JSON.
func StripCodeFences(content string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(content, ""))
}

// ParseResponse decodes the model's reply. A reply without an "emails" array
// yields no messages and no error. Entries lacking a sender or address are
// dropped.
func ParseResponse(content string) ([]subscription.ParsedMessage, error) {
	cleaned := StripCodeFences(content)
	if !json.Valid([]byte(cleaned)) {
		return nil, fmt.Errorf("invalid JSON in LLM response")
	}

	messages := []subscription.ParsedMessage{}
	if !strings.HasPrefix(cleaned, "{") {
		return messages, nil
	}

	var response struct {
		Emails []extractedEmail `json:"emails"`
	}
	if err := json.Unmarshal([]byte(cleaned), &response); err != nil {
		return nil, fmt.Errorf("decoding emails: %w", err)
	}

	for _, email := range response.Emails {
		message := subscription.ParsedMessage{
			Sender:          strings.TrimSpace(email.Sender),
			Address:         strings.TrimSpace(email.Email),
			Subject:         strings.TrimSpace(email.Subject),
			UnsubscribeLink: strings.TrimSpace(email.UnsubscribeLink),
			Body:            email.Body,
		}
		if !message.Valid() {
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}
