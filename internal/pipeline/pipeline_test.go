package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/inboxsweep/internal/aiextract"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

type fakeExtractor struct {
	messages []subscription.ParsedMessage
	err      error
	calls    int
	lastText string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) ([]subscription.ParsedMessage, error) {
	f.calls++
	f.lastText = text
	return f.messages, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sample = `From: newsletter@techinsider.com
Subject: Your Weekly Tech Digest
Hi there! Here's what's trending this week in tech...
Unsubscribe: https://techinsider.com/unsubscribe

---

From: Deals <deals@shopmart.com>
Subject: Flash Sale! 50% OFF Everything

---

Subject: no sender here

---

From: DEALS@SHOPMART.COM
Subject: Last chance
Unsubscribe: https://shopmart.com/unsubscribe`

func TestProcess_ScenarioSingleBareAddress(t *testing.T) {
	p := New(nil, testLogger())

	subs := p.Process(context.Background(), "From: a@x.com\nSubject: Hi\nUnsubscribe: http://x.com/u")

	require.Len(t, subs, 1)
	assert.Equal(t, "a@x.com", subs[0].Sender)
	assert.Equal(t, "a@x.com", subs[0].Address)
	assert.Equal(t, 1, subs[0].Count)
	assert.Equal(t, "http://x.com/u", subs[0].UnsubscribeLink)
	assert.Equal(t, subscription.StatusActive, subs[0].Status)
}

func TestProcess_ScenarioSameAddressTwice(t *testing.T) {
	p := New(nil, testLogger())

	text := "From: a@x.com\nSubject: One\n---\nFrom: a@x.com\nSubject: Two\nUnsubscribe: https://x.com/u"
	subs := p.Process(context.Background(), text)

	require.Len(t, subs, 1)
	assert.Equal(t, 2, subs[0].Count)
	assert.Equal(t, "One", subs[0].Subject)
	assert.Equal(t, "https://x.com/u", subs[0].UnsubscribeLink)
}

func TestProcess_ScenarioMalformedAIResponseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"emails\": [ oops"}]}`))
	}))
	defer srv.Close()

	ai := aiextract.NewClient(&aiextract.Config{
		Provider: "anthropic",
		Model:    "test",
		Endpoint: srv.URL,
		APIKey:   "key",
	})
	result := New(ai, testLogger()).Run(context.Background(), sample)

	assert.Equal(t, PathFallback, result.Path)
	assert.True(t, errors.Is(result.AIError, aiextract.ErrExtractionFailed))
	require.Len(t, result.Subscriptions, 2)
	assert.Equal(t, "newsletter@techinsider.com", result.Subscriptions[0].Address)
	assert.Equal(t, "deals@shopmart.com", result.Subscriptions[1].Address)
	assert.Equal(t, "Deals", result.Subscriptions[1].Sender)
	assert.Equal(t, 2, result.Subscriptions[1].Count)
	assert.Equal(t, "https://shopmart.com/unsubscribe", result.Subscriptions[1].UnsubscribeLink)
}

func TestProcess_ScenarioBlankInput(t *testing.T) {
	ai := &fakeExtractor{}
	p := New(ai, testLogger())

	for _, in := range []string{"", "   ", "\n\t\n"} {
		subs := p.Process(context.Background(), in)
		assert.NotNil(t, subs)
		assert.Empty(t, subs)
	}
	assert.Equal(t, 0, ai.calls)
}

func TestRun_AISuccessSkipsFallback(t *testing.T) {
	ai := &fakeExtractor{messages: []subscription.ParsedMessage{
		{Sender: "Tech Insider", Address: "news@techinsider.com", Subject: "Digest"},
		{Sender: "Tech Insider", Address: "NEWS@techinsider.com", Subject: "Digest 2", UnsubscribeLink: "https://t.com/u"},
	}}
	p := New(ai, testLogger())

	result := p.Run(context.Background(), sample)

	assert.Equal(t, PathAI, result.Path)
	assert.NoError(t, result.AIError)
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, sample, ai.lastText)
	require.Len(t, result.Subscriptions, 1)
	assert.Equal(t, "Tech Insider", result.Subscriptions[0].Sender)
	assert.Equal(t, 2, result.Subscriptions[0].Count)
	assert.Equal(t, "https://t.com/u", result.Subscriptions[0].UnsubscribeLink)
}

func TestRun_AIEmptySuccessIsNotAFailure(t *testing.T) {
	ai := &fakeExtractor{}
	result := New(ai, testLogger()).Run(context.Background(), sample)

	assert.Equal(t, PathAI, result.Path)
	assert.NotNil(t, result.Subscriptions)
	assert.Empty(t, result.Subscriptions)
}

func TestRun_AIErrorFallsBackOnce(t *testing.T) {
	ai := &fakeExtractor{err: &aiextract.ExtractionError{Op: "request", Err: errors.New("connection refused")}}
	result := New(ai, testLogger()).Run(context.Background(), sample)

	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, PathFallback, result.Path)
	assert.Len(t, result.Subscriptions, 2)
	assert.Len(t, result.Messages, 3)
}

func TestRun_FallbackFindsNothing(t *testing.T) {
	result := New(nil, testLogger()).Run(context.Background(), "just some text\n---\nSubject: hi")

	assert.Equal(t, PathFallback, result.Path)
	assert.NotNil(t, result.Subscriptions)
	assert.Empty(t, result.Subscriptions)
}

func TestRun_CountInvariantAndIDs(t *testing.T) {
	n := 0
	p := New(nil, testLogger(), WithAggregatorOptions(subscription.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})))

	subs := p.Process(context.Background(), sample)
	require.Len(t, subs, 2)
	assert.Equal(t, "id-1", subs[0].ID)
	assert.Equal(t, "id-2", subs[1].ID)
	for _, sub := range subs {
		assert.Equal(t, len(sub.Messages), sub.Count)
	}
}

func TestRun_BodyKeepsOriginalSection(t *testing.T) {
	subs := New(nil, testLogger()).Process(context.Background(), "From: a@x.com\nHello\n\n---\n\nFrom: b@x.com")
	require.Len(t, subs, 2)
	assert.Equal(t, "From: a@x.com\nHello", subs[0].Messages[0].Body)
}
