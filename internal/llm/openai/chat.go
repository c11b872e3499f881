// Package openai provides a chat model backed by the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wikirag/internal/domain"
	"wikirag/internal/retry"
)

var _ domain.ChatModel = (*ChatModel)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the chat model.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Can point at any compatible API.
	BaseURL string

	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Policy
}

// ChatModel sends conversations to /chat/completions.
type ChatModel struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	retry       retry.Policy
}

// chatCompletionRequest is the /chat/completions request body. Temperature
// is always sent so that zero is not replaced by the server default.
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewChatModel creates a chat model. An empty API key yields
// domain.ErrMissingCredential.
func NewChatModel(cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, domain.ErrMissingCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ChatModel{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       cfg.Retry,
	}, nil
}

// Name returns the model identifier.
func (m *ChatModel) Name() string { return m.model }

// Complete returns the assistant reply for messages.
func (m *ChatModel) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	body := chatCompletionRequest{
		Model:       m.model,
		Messages:    make([]chatCompletionMsg, len(messages)),
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}
	for i, msg := range messages {
		body.Messages[i] = chatCompletionMsg{Role: msg.Role, Content: msg.Content}
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var answer string
	err = retry.Do(ctx, m.retry, func(ctx context.Context) error {
		var err error
		answer, err = m.send(ctx, jsonBody)
		return err
	})
	return answer, err
}

func (m *ChatModel) send(ctx context.Context, jsonBody []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		err := fmt.Errorf("openai chat failed: %s", resp.Status)
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
			return "", retry.TransientAfter(err, time.Duration(secs)*time.Second)
		}
		return "", retry.Transient(err)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode response (status %s): %w", resp.Status, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("openai chat failed: %s: %s", resp.Status, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai chat failed: %s", resp.Status)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices in response")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
