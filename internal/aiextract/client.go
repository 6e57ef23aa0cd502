package aiextract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.io/infrasutra/inboxsweep/internal/subscription"
)

const anthropicVersion = "2023-06-01"

const promptTemplate = `You extract newsletter and marketing subscription details from raw email text.

Email text:
%s

For every email in the text, report:
1. sender: the company or organization name
2. email: the sender email address
3. subject: the subject line
4. unsubscribeLink: the URL used to unsubscribe or manage email preferences, if any
5. body: a short excerpt of the body

Emails may be separated by a line containing only "---" or by other clear breaks; include all of them.

Respond with JSON only, exactly in this shape, with no prose and no markdown code fences:
{"emails": [{"sender": "Company", "email": "news@company.com", "subject": "Subject", "unsubscribeLink": "https://company.com/unsubscribe", "body": "Excerpt"}]}`

// Client sends raw email text to an LLM and parses the structured reply.
type Client struct {
	config Config
	http   *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

func NewClient(config *Config, opts ...ClientOption) *Client {
	timeout := config.TimeoutSecs
	if timeout <= 0 {
		timeout = DefaultTimeoutSecs
	}
	c := &Client{
		config: *config,
		http:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
	if c.config.MaxTokens <= 0 {
		c.config.MaxTokens = DefaultMaxTokens
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract sends the whole text in one request. It does not retry; any
// failure is returned as an *ExtractionError.
func (c *Client) Extract(ctx context.Context, text string) ([]subscription.ParsedMessage, error) {
	content, err := c.complete(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return nil, &ExtractionError{Op: "request", Err: err}
	}
	messages, err := ParseResponse(content)
	if err != nil {
		return nil, &ExtractionError{Op: "parse", Err: err}
	}
	return messages, nil
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete returns the text of the model's reply to prompt.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	messages := []chatMessage{{Role: "user", Content: prompt}}

	var payload any
	if c.config.anthropic() {
		payload = anthropicRequest{
			Model:     c.config.Model,
			MaxTokens: c.config.MaxTokens,
			Messages:  messages,
		}
	} else {
		payload = chatRequest{
			Model:          c.config.Model,
			Messages:       messages,
			Temperature:    0,
			MaxTokens:      c.config.MaxTokens,
			ResponseFormat: &responseFormat{Type: "json_object"},
		}
	}

	body, err := c.send(ctx, payload)
	if err != nil {
		return "", err
	}

	var content string
	if c.config.anthropic() {
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("parsing response JSON: %w", err)
		}
		for _, block := range resp.Content {
			if block.Type == "text" || block.Type == "" {
				content = block.Text
				break
			}
		}
	} else {
		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("parsing response JSON: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in LLM response")
		}
		content = resp.Choices[0].Message.Content
	}

	if content == "" {
		return "", fmt.Errorf("empty response from LLM")
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, payload any) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.anthropic() {
		req.Header.Set("anthropic-version", anthropicVersion)
		if c.config.APIKey != "" {
			req.Header.Set("x-api-key", c.config.APIKey)
		}
	} else if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Provider == "openrouter" {
		req.Header.Set("X-Title", "inboxsweep")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}
