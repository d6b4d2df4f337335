package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to a chat-completion style gateway. It implements Classifier,
// Extractor and DialogueGenerator.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	ImageB64    string    `json:"image,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *Client) ClassifyIntent(ctx context.Context, text string, hasImage bool, prompt string) (string, error) {
	user := text
	if hasImage {
		user = "[image attached] " + user
	}
	return c.complete(ctx, completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		MaxTokens:   20,
	})
}

func (c *Client) Extract(ctx context.Context, text, prompt string) (string, error) {
	return c.complete(ctx, completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   500,
	})
}

func (c *Client) ExtractFromImage(ctx context.Context, image []byte, prompt string) (string, error) {
	return c.complete(ctx, completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: "Extract the prescription details from the attached image. Return JSON only."},
		},
		Temperature: 0,
		MaxTokens:   1000,
		ImageB64:    base64.StdEncoding.EncodeToString(image),
	})
}

func (c *Client) Chat(ctx context.Context, systemPrompt, userQuery string, history []string) (string, error) {
	msgs := make([]message, 0, len(history)+2)
	msgs = append(msgs, message{Role: "system", Content: systemPrompt})
	for _, h := range history {
		msgs = append(msgs, message{Role: "user", Content: h})
	}
	msgs = append(msgs, message{Role: "user", Content: userQuery})
	return c.complete(ctx, completionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.3,
	})
}

func (c *Client) complete(ctx context.Context, reqBody completionRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
