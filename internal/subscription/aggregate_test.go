package subscription

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("sub-%d", n)
	}
}

func TestAggregate_MergesByAddressCaseInsensitive(t *testing.T) {
	messages := []ParsedMessage{
		{Sender: "Tech Insider", Address: "News@TechInsider.com", Subject: "Digest #1"},
		{Sender: "Shop", Address: "deals@shop.com", Subject: "Sale"},
		{Sender: "tech insider", Address: "news@techinsider.com", Subject: "Digest #2"},
	}

	subs := NewAggregator(WithIDFunc(counterIDs())).Aggregate(messages)

	require.Len(t, subs, 2)
	assert.Equal(t, "sub-1", subs[0].ID)
	assert.Equal(t, "Tech Insider", subs[0].Sender)
	assert.Equal(t, "News@TechInsider.com", subs[0].Address)
	assert.Equal(t, "Digest #1", subs[0].Subject)
	assert.Equal(t, 2, subs[0].Count)
	assert.Equal(t, StatusActive, subs[0].Status)
	assert.Equal(t, []ParsedMessage{messages[0], messages[2]}, subs[0].Messages)

	assert.Equal(t, "sub-2", subs[1].ID)
	assert.Equal(t, "deals@shop.com", subs[1].Address)
	assert.Equal(t, 1, subs[1].Count)
}

func TestAggregate_UnsubscribeLinkIsAdoptedOnceAndNeverReplaced(t *testing.T) {
	messages := []ParsedMessage{
		{Sender: "A", Address: "a@x.com"},
		{Sender: "A", Address: "a@x.com", UnsubscribeLink: "https://x.com/first"},
		{Sender: "A", Address: "a@x.com", UnsubscribeLink: "https://x.com/second"},
		{Sender: "A", Address: "a@x.com"},
	}

	subs := Aggregate(messages)

	require.Len(t, subs, 1)
	assert.Equal(t, "https://x.com/first", subs[0].UnsubscribeLink)
	assert.Equal(t, 4, subs[0].Count)
}

func TestAggregate_CountMatchesMessages(t *testing.T) {
	var messages []ParsedMessage
	for i := 0; i < 25; i++ {
		messages = append(messages, ParsedMessage{
			Sender:  "S",
			Address: fmt.Sprintf("user%d@example.com", i%4),
			Subject: fmt.Sprintf("m%d", i),
		})
	}

	for _, sub := range Aggregate(messages) {
		assert.Equal(t, len(sub.Messages), sub.Count, sub.Address)
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	messages := []ParsedMessage{
		{Sender: "B", Address: "b@x.com", Subject: "one"},
		{Sender: "A", Address: "a@x.com", Subject: "two", UnsubscribeLink: "https://a.x.com/u"},
		{Sender: "B", Address: "B@X.com", Subject: "three", UnsubscribeLink: "https://b.x.com/u"},
	}

	first := Aggregate(messages)
	second := Aggregate(messages)

	require.Len(t, second, len(first))
	for i := range first {
		assert.NotEqual(t, first[i].ID, "")
		first[i].ID, second[i].ID = "", ""
	}
	assert.Equal(t, first, second)
}

func TestAggregate_UniqueIDs(t *testing.T) {
	messages := []ParsedMessage{
		{Sender: "A", Address: "a@x.com"},
		{Sender: "B", Address: "b@x.com"},
		{Sender: "C", Address: "c@x.com"},
	}

	seen := map[string]bool{}
	for _, sub := range Aggregate(messages) {
		assert.False(t, seen[sub.ID], "duplicate id %s", sub.ID)
		seen[sub.ID] = true
	}
}

func TestAggregate_Empty(t *testing.T) {
	subs := Aggregate(nil)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestParsedMessageValid(t *testing.T) {
	tests := []struct {
		msg  ParsedMessage
		want bool
	}{
		{ParsedMessage{Sender: "A", Address: "a@x.com"}, true},
		{ParsedMessage{Sender: "  ", Address: "a@x.com"}, false},
		{ParsedMessage{Sender: "A", Address: ""}, false},
		{ParsedMessage{}, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.msg.Valid(), "%+v", tc.msg)
	}
}
