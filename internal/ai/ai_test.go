package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedderSendsModelAndUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "embed-small", body.Model)
		assert.Equal(t, "svc-triage", body.User)
		assert.Equal(t, "Title: x", body.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e := OpenAICompatEmbedder{BaseURL: srv.URL + "/v1/", Model: "embed-small", APIKey: "k", User: "svc-triage"}
	vec, err := e.Embed(context.Background(), "Title: x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := OpenAICompatEmbedder{BaseURL: srv.URL}.Embed(context.Background(), "x")
	var rl RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 3*time.Second, rl.RetryAfter)
}

func TestEmbedderEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := OpenAICompatEmbedder{BaseURL: srv.URL}.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestAssistantAskAndCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			Model    string        `json:"model"`
			User     string        `json:"user"`
			Messages []ChatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chat", body.Model)
		assert.Equal(t, "svc", body.User)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "pick a team", body.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"TEAM: Team Vega"}}]}`))
	}))
	defer srv.Close()

	a := OpenAICompatAssistant{BaseURL: srv.URL, Model: "chat", User: "svc", Cache: NewResponseCache(time.Minute)}
	history := []ChatMessage{{Role: "system", Content: "you route tickets"}}
	out, err := a.Ask(context.Background(), "pick a team", history)
	require.NoError(t, err)
	assert.Equal(t, "TEAM: Team Vega", out)

	out, err = a.Ask(context.Background(), "pick a team", history)
	require.NoError(t, err)
	assert.Equal(t, "TEAM: Team Vega", out)
	assert.Equal(t, 1, calls)
}

func TestAssistantHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	_, err := OpenAICompatAssistant{BaseURL: srv.URL, Model: "chat"}.Ask(context.Background(), "p", nil)
	assert.Error(t, err)
}

func TestAssistantRequiresConfig(t *testing.T) {
	_, err := OpenAICompatAssistant{}.Ask(context.Background(), "p", nil)
	assert.Error(t, err)
}

func TestMockEmbedderSimilarTextsAreCloser(t *testing.T) {
	m := MockEmbedder{Dim: 128}
	ctx := context.Background()
	a, _ := m.Embed(ctx, "smb share mount fails kerberos")
	b, _ := m.Embed(ctx, "smb share mount error kerberos ticket")
	c, _ := m.Embed(ctx, "backup snapshot delete policy")

	assert.Greater(t, dot(a, b), dot(a, c))
	assert.InDelta(t, 1.0, dot(a, a), 1e-5)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
