package store

import (
	"time"

	"github.io/infrasutra/inboxsweep/internal/subscription"
)

// Import is one pipeline run over a blob of raw email text.
type Import struct {
	ID                string
	Source            string
	RawText           string
	Path              string
	CreatedAt         time.Time
	SubscriptionCount int
}

// InboxMessage is a message received by the SMTP intake, already rendered
// into section text.
type InboxMessage struct {
	ID        string
	From      string
	Subject   string
	Section   string
	Raw       []byte
	RawSize   int64
	CreatedAt time.Time
}

type SubscriptionFilter struct {
	ImportID string
	Status   subscription.Status
	Search   string
	Sort     string
}

type Summary struct {
	Subscriptions int
	Active        int
	Pending       int
	Unsubscribed  int
	EmailsCleaned int
}
