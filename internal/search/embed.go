package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embedder turns text into dense vectors. The semantic path works against
// any implementation; HTTPEmbedder speaks the OpenAI-compatible embeddings
// API that most local providers also expose.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const (
	embedBatchSize  = 64
	embedRetries    = 2
	embedRetryDelay = 2 * time.Second
)

type HTTPEmbedder struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	model     string
	dimension int
}

// NewHTTPEmbedder targets an OpenAI-compatible /v1/embeddings endpoint.
// baseURL empty means api.openai.com; dim 0 lets the model pick.
func NewHTTPEmbedder(baseURL, apiKey, model string, dim int) *HTTPEmbedder {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/embeddings"
	}
	return &HTTPEmbedder{
		client:    &http.Client{Timeout: 60 * time.Second},
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dim,
	}
}

func (e *HTTPEmbedder) Dimension() int { return e.dimension }

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type embedErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if strings.TrimSpace(e.model) == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += embedBatchSize {
		hi := min(lo+embedBatchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *HTTPEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload := embedRequest{Model: e.model, Input: batch}
	if e.dimension > 0 {
		payload.Dimensions = &e.dimension
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= embedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(embedRetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("embeddings request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(data))
			var errBody embedErrorBody
			if json.Unmarshal(data, &errBody) == nil && errBody.Error.Message != "" {
				msg = errBody.Error.Message
			}
			return nil, fmt.Errorf("embeddings request failed (%d): %s", resp.StatusCode, msg)
		}

		var parsed embedResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, err
		}
		if len(parsed.Data) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Data), len(batch))
		}
		vecs := make([][]float32, len(batch))
		for _, item := range parsed.Data {
			if item.Index >= 0 && item.Index < len(batch) {
				vecs[item.Index] = item.Embedding
			}
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("embedding missing at index %d", i)
			}
		}
		return vecs, nil
	}
	return nil, lastErr
}
