package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
	"wikirag/internal/retry"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func reply(w http.ResponseWriter, content string) {
	_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":`+jsonString(content)+`},"finish_reason":"stop"}]}`)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewChatModel_RequiresKey(t *testing.T) {
	_, err := NewChatModel(Config{})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestComplete_SendsTemperatureZeroAndMessages(t *testing.T) {
	var raw map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		reply(w, "  AGI is hypothetical.  ")
	})
	m, err := NewChatModel(Config{APIKey: "secret", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, m.Name())

	answer, err := m.Complete(context.Background(), []domain.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "What is AGI?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "AGI is hypothetical.", answer)

	temp, ok := raw["temperature"]
	require.True(t, ok, "temperature must be present")
	assert.Equal(t, float64(0), temp)
	assert.Equal(t, DefaultModel, raw["model"])
	msgs := raw["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.NotContains(t, raw, "max_tokens")
}

func TestComplete_ErrorResponse(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	})
	m, err := NewChatModel(Config{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Complete(context.Background(), []domain.ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	m, err := NewChatModel(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Complete(context.Background(), nil)
	assert.ErrorContains(t, err, "no choices")
}

func TestComplete_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	m, err := NewChatModel(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		reply(w, "ok")
	})
	m, err := NewChatModel(Config{
		APIKey:  "k",
		BaseURL: srv.URL,
		Retry:   retry.Policy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	answer, err := m.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(3), calls.Load())
}
