package sse

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event names published by the service. Each is also the topic it is
// broadcast on.
const (
	EventStatus = "status"
	EventInbox  = "inbox"
	EventImport = "import"
)

// Topics lists every topic a stream subscribes to by default.
var Topics = []string{EventStatus, EventInbox, EventImport}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers one channel for all given topics. The returned func
// removes it and closes the channel.
func (h *Hub) Subscribe(topics ...string) (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	for _, topic := range topics {
		if _, ok := h.subs[topic]; !ok {
			h.subs[topic] = make(map[chan []byte]struct{})
		}
		h.subs[topic][ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			for _, topic := range topics {
				if subscribers, ok := h.subs[topic]; ok {
					delete(subscribers, ch)
					if len(subscribers) == 0 {
						delete(h.subs, topic)
					}
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast sends payload to every subscriber of the topics, once per
// subscriber. Slow subscribers miss the event instead of blocking.
func (h *Hub) Broadcast(topics []string, payload []byte) {
	if len(topics) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := map[chan []byte]struct{}{}
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		for ch := range h.subs[topic] {
			if _, ok := sent[ch]; ok {
				continue
			}
			sent[ch] = struct{}{}
			select {
			case ch <- payload:
			default:
			}
		}
	}
}

// Publish encodes data as a server-sent event named event and broadcasts it
// on the topic of the same name.
func (h *Hub) Publish(event string, data any) error {
	payload, err := Format(event, data)
	if err != nil {
		return err
	}
	h.Broadcast([]string{event}, payload)
	return nil
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Format renders one event in the text/event-stream wire format.
func Format(event string, data any) ([]byte, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, encoded)), nil
}
