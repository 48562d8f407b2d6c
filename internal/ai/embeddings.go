package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatEmbedder calls an /embeddings endpoint with a single input.
type OpenAICompatEmbedder struct {
	BaseURL string
	Model   string
	APIKey  string
	User    string
	Timeout time.Duration
	Client  *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	User  string `json:"user,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e OpenAICompatEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(e.BaseURL) == "" {
		return nil, errors.New("LLM_BASE_URL is not set")
	}
	client := e.Client
	if client == nil {
		limit := e.Timeout
		if limit <= 0 {
			limit = 30 * time.Second
		}
		client = &http.Client{Timeout: requestTimeout(ctx, limit)}
	}

	b, _ := json.Marshal(embeddingRequest{Model: e.Model, Input: text, User: e.User})
	url := strings.TrimRight(e.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(e.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, RateLimitError{RetryAfter: retryAfter(resp.Header, nil)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding http error: %s", resp.Status)
	}

	var r embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	if len(r.Data) == 0 || len(r.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return r.Data[0].Embedding, nil
}
