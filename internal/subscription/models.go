package subscription

import "strings"

type Status string

const (
	StatusActive       Status = "active"
	StatusPending      Status = "pending"
	StatusUnsubscribed Status = "unsubscribed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusUnsubscribed:
		return true
	default:
		return false
	}
}

// ParsedMessage is one email as understood by an extractor.
type ParsedMessage struct {
	Sender          string `json:"sender"`
	Address         string `json:"email"`
	Subject         string `json:"subject"`
	UnsubscribeLink string `json:"unsubscribeLink,omitempty"`
	Body            string `json:"body"`
}

// Valid reports whether the message has both a sender and an address.
func (m ParsedMessage) Valid() bool {
	return strings.TrimSpace(m.Sender) != "" && strings.TrimSpace(m.Address) != ""
}

// Subscription aggregates every message sent from one address.
type Subscription struct {
	ID              string          `json:"id"`
	Sender          string          `json:"sender"`
	Address         string          `json:"email"`
	Count           int             `json:"count"`
	Subject         string          `json:"subject"`
	UnsubscribeLink string          `json:"unsubscribeLink,omitempty"`
	Status          Status          `json:"status"`
	Messages        []ParsedMessage `json:"emails"`
}

// NormalizeAddress returns the key used to merge messages into subscriptions.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
