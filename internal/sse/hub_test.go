package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	payload, err := Format(EventStatus, map[string]string{"id": "a", "status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, "event: status\ndata: {\"id\":\"a\",\"status\":\"pending\"}\n\n", string(payload))

	_, err = Format(EventStatus, make(chan int))
	assert.Error(t, err)
}

func TestHub_PublishReachesTopicSubscribers(t *testing.T) {
	hub := NewHub()
	statusCh, unsubStatus := hub.Subscribe(EventStatus)
	defer unsubStatus()
	inboxCh, unsubInbox := hub.Subscribe(EventInbox)
	defer unsubInbox()

	require.NoError(t, hub.Publish(EventStatus, map[string]string{"id": "a"}))

	select {
	case payload := <-statusCh:
		assert.Contains(t, string(payload), "event: status")
	default:
		t.Fatal("status subscriber got nothing")
	}
	assert.Len(t, inboxCh, 0)
}

func TestHub_BroadcastOncePerSubscriber(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(Topics...)
	defer unsubscribe()

	hub.Broadcast([]string{EventStatus, EventInbox, "", EventStatus}, []byte("x"))
	assert.Len(t, ch, 1)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(EventImport, EventInbox)
	assert.Equal(t, 1, hub.Subscribers(EventImport))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.Subscribers(EventImport))
	assert.Equal(t, 0, hub.Subscribers(EventInbox))

	_, ok := <-ch
	assert.False(t, ok, "channel closed")

	hub.Broadcast([]string{EventImport}, []byte("x"))
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(EventInbox)
	defer unsubscribe()

	for range cap(ch) + 5 {
		hub.Broadcast([]string{EventInbox}, []byte("x"))
	}
	assert.Len(t, ch, cap(ch))
}
