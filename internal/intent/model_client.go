package intent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// ModelClient classifies a message using a remote model and returns the raw
// label it produced. Labels are validated by the caller.
type ModelClient interface {
	Classify(ctx context.Context, text string) (string, error)
}

const systemPrompt = `You are an intent classifier for medical appointment confirmations.
Classify the user's message into ONE of these intents:
- "confirm": the user wants to confirm the appointment
- "cancel": the user wants to cancel
- "reschedule": the user wants to change the date or time
- "unknown": the intent cannot be determined

Respond with ONLY the intent word, nothing else.`

// HTTPModelClient is a ModelClient over an OpenAI-style chat-completions
// endpoint.
type HTTPModelClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var _ ModelClient = (*HTTPModelClient)(nil)

// NewHTTPModelClient creates an HTTPModelClient. If httpClient is nil,
// http.DefaultClient is used.
func NewHTTPModelClient(baseURL, apiKey, model string, httpClient *http.Client) *HTTPModelClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPModelClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *HTTPModelClient) Classify(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model request: status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	return strings.ToLower(strings.TrimSpace(parsed.Choices[0].Message.Content)), nil
}
