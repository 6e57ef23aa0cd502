package aiextract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoEmails = `{"emails": [
	{"sender": "Tech Insider", "email": "news@techinsider.com", "subject": "Digest", "unsubscribeLink": "https://techinsider.com/unsubscribe", "body": "Trending"},
	{"sender": "ShopMart", "email": "deals@shopmart.com", "subject": "Sale", "body": "50% off"}
]}`

func anthropicServer(t *testing.T, status int, text string, capture func(*http.Request, []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if capture != nil {
			capture(r, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		payload := map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(endpoint string) *Config {
	return &Config{
		Provider:    "anthropic",
		Model:       "claude-sonnet-4-20250514",
		Endpoint:    endpoint,
		APIKey:      "test-key",
		MaxTokens:   4000,
		TimeoutSecs: 5,
	}
}

func TestExtract_Anthropic(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	srv := anthropicServer(t, http.StatusOK, twoEmails, func(r *http.Request, body []byte) {
		gotReq = r
		gotBody = body
	})

	raw := "From: news@techinsider.com\nSubject: Digest\n---\nFrom: deals@shopmart.com"
	messages, err := NewClient(testConfig(srv.URL)).Extract(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "Tech Insider", messages[0].Sender)
	assert.Equal(t, "news@techinsider.com", messages[0].Address)
	assert.Equal(t, "https://techinsider.com/unsubscribe", messages[0].UnsubscribeLink)
	assert.Equal(t, "Trending", messages[0].Body)
	assert.Empty(t, messages[1].UnsubscribeLink)

	require.NotNil(t, gotReq)
	assert.Equal(t, http.MethodPost, gotReq.Method)
	assert.Equal(t, "test-key", gotReq.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, gotReq.Header.Get("anthropic-version"))

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "claude-sonnet-4-20250514", sent.Model)
	assert.Equal(t, 4000, sent.MaxTokens)
	require.Len(t, sent.Messages, 1)
	assert.Contains(t, sent.Messages[0].Content, raw)
}

func TestExtract_OpenAICompatible(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": twoEmails}}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Provider = "openai"
	messages, err := NewClient(cfg).Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "Bearer test-key", auth)
}

func TestExtract_FencedResponse(t *testing.T) {
	srv := anthropicServer(t, http.StatusOK, "```json\n"+twoEmails+"\n```", nil)

	messages, err := NewClient(testConfig(srv.URL)).Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
	}{
		{"non-success status", http.StatusServiceUnavailable, ""},
		{"malformed JSON", http.StatusOK, `{"emails": [ {"sender": `},
		{"prose reply", http.StatusOK, "Here are the emails I found"},
		{"empty completion", http.StatusOK, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := anthropicServer(t, tc.status, tc.text, nil)

			messages, err := NewClient(testConfig(srv.URL)).Extract(context.Background(), "text")
			require.Error(t, err)
			assert.Nil(t, messages)
			assert.True(t, errors.Is(err, ErrExtractionFailed))

			var extractionErr *ExtractionError
			assert.True(t, errors.As(err, &extractionErr))
		})
	}
}

func TestExtract_HTTPErrorCarriesStatus(t *testing.T) {
	srv := anthropicServer(t, http.StatusTooManyRequests, "", nil)

	_, err := NewClient(testConfig(srv.URL)).Extract(context.Background(), "text")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, "overloaded")
}

func TestExtract_TransportError(t *testing.T) {
	srv := anthropicServer(t, http.StatusOK, twoEmails, nil)
	endpoint := srv.URL
	srv.Close()

	_, err := NewClient(testConfig(endpoint)).Extract(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain", twoEmails, 2, false},
		{"fenced without language", "```\n" + twoEmails + "\n```", 2, false},
		{"surrounding whitespace", "\n\n  " + twoEmails + "  \n", 2, false},
		{"missing emails key", `{"results": []}`, 0, false},
		{"null emails", `{"emails": null}`, 0, false},
		{"top-level array", `[1, 2]`, 0, false},
		{"drops invalid entries", `{"emails": [{"sender": "", "email": "a@x.com"}, {"sender": "A", "email": " "}, {"sender": "B", "email": "b@x.com"}]}`, 1, false},
		{"not JSON", "no emails here", 0, true},
		{"wrong shape", `{"emails": "nope"}`, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResponse(tc.content)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(` {"a":1} `))
}

func TestParseLLMFlag(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	cfg, err := ParseLLMFlag("anthropic/claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", cfg.Endpoint)
	assert.Equal(t, "anthropic-key", cfg.APIKey)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.NoError(t, cfg.Validate())

	cfg, err = ParseLLMFlag("openrouter/google/gemini-2.0-flash-exp:free")
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-2.0-flash-exp:free", cfg.Model)

	cfg, err = ParseLLMFlag("ollama/llama3")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	for _, bad := range []string{"", "anthropic", "/model", "anthropic/", "mystery/model"} {
		_, err := ParseLLMFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig("")
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "endpoint"))

	cfg = testConfig("http://localhost")
	cfg.APIKey = ""
	assert.Error(t, cfg.Validate())
}
