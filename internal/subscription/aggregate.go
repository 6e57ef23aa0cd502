package subscription

import "github.com/google/uuid"

type Option func(*Aggregator)

// WithIDFunc replaces the id generator. Ids only need to be unique within one run.
func WithIDFunc(fn func() string) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.newID = fn
		}
	}
}

type Aggregator struct {
	newID func() string
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{newID: uuid.NewString}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate folds messages into subscriptions keyed by normalized address.
// Output order is the order in which each address was first seen.
func (a *Aggregator) Aggregate(messages []ParsedMessage) []Subscription {
	index := make(map[string]int, len(messages))
	subscriptions := make([]Subscription, 0, len(messages))

	for _, message := range messages {
		key := NormalizeAddress(message.Address)
		if i, ok := index[key]; ok {
			sub := &subscriptions[i]
			sub.Count++
			sub.Messages = append(sub.Messages, message)
			if sub.UnsubscribeLink == "" && message.UnsubscribeLink != "" {
				sub.UnsubscribeLink = message.UnsubscribeLink
			}
			continue
		}

		index[key] = len(subscriptions)
		subscriptions = append(subscriptions, Subscription{
			ID:              a.newID(),
			Sender:          message.Sender,
			Address:         message.Address,
			Count:           1,
			Subject:         message.Subject,
			UnsubscribeLink: message.UnsubscribeLink,
			Status:          StatusActive,
			Messages:        []ParsedMessage{message},
		})
	}
	return subscriptions
}

// Aggregate runs a fresh Aggregator with uuid ids.
func Aggregate(messages []ParsedMessage) []Subscription {
	return NewAggregator().Aggregate(messages)
}
