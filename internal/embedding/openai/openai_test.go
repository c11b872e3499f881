package openai

import (
	"context"
	"encoding/json"
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

func echoLengths(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	type item struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	}
	resp := struct {
		Data []item `json:"data"`
	}{}
	// Return in reverse order to exercise index placement.
	for i := len(req.Input) - 1; i >= 0; i-- {
		resp.Data = append(resp.Data, item{Embedding: []float64{float64(len(req.Input[i])), 1}, Index: i})
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai:"+DefaultModel, c.Name())
	assert.Equal(t, 1536, c.Dimension())
}

func TestEmbedBatch_OrdersByIndexAndBatches(t *testing.T) {
	var requests int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		echoLengths(w, r)
	})
	c, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Model: "custom", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Dimension())

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbed_ErrorStatus(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	})
	c, err := NewClient(Config{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		echoLengths(w, r)
	})
	c, err := NewClient(Config{
		APIKey:  "k",
		BaseURL: srv.URL,
		Retry:   retry.Policy{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	require.NoError(t, err)

	v, err := c.Embed(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, float32(4), v[0])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbed_NoRetryByDefault(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
