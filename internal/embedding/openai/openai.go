package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"studyrag/internal/vectorstore"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
// It also understands the Ollama response shapes.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  atomic.Int64
	client     *http.Client
	maxRetries int
	images     bool
	cache      sync.Map
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// Dimension, when set, is checked against every returned vector.
	Dimension int
	// Images enables EmbedImage for multimodal encoders such as CLIP servers.
	Images bool
}

// NewClient creates a new embeddings client using the provided configuration.
// An empty APIKeyEnv disables authentication for local servers.
func NewClient(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: retries,
		images:     cfg.Images,
	}
	c.dimension.Store(int64(cfg.Dimension))
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors,
// 0 until the first response when not configured.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Load(text); ok {
		return v.([]float32), nil
	}
	type reqBody struct {
		Input  string `json:"input,omitempty"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	v, err := c.do(ctx, reqBody{Input: text, Prompt: text, Model: c.model})
	if err != nil {
		return nil, err
	}
	c.cache.Store(text, v)
	return v, nil
}

// EmbedImage returns an embedding for an encoded page image.
func (c *Client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if !c.images {
		return nil, errors.New("openai embedder: image input not enabled")
	}
	type imageInput struct {
		Image string `json:"image"`
	}
	type reqBody struct {
		Input []imageInput `json:"input"`
		Model string       `json:"model"`
	}
	return c.do(ctx, reqBody{
		Input: []imageInput{{Image: base64.StdEncoding.EncodeToString(image)}},
		Model: c.model,
	})
}

func (c *Client) do(ctx context.Context, body any) ([]float32, error) {
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && attempt < c.maxRetries {
				if err := sleep(ctx, time.Duration(secs)*time.Second); err != nil {
					return nil, err
				}
			}
			continue
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("openai embeddings failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		v, err := decodeEmbedding(payload)
		if err != nil {
			lastErr = err
			continue
		}
		return c.checkDimension(v)
	}
	return nil, fmt.Errorf("embeddings request failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) checkDimension(v []float32) ([]float32, error) {
	if err := vectorstore.Validate(v); err != nil {
		return nil, err
	}
	if c.dimension.CompareAndSwap(0, int64(len(v))) {
		return v, nil
	}
	if want := c.Dimension(); want != len(v) {
		return nil, fmt.Errorf("openai embedder returned %d values, expected %d", len(v), want)
	}
	return v, nil
}

// decodeEmbedding accepts the OpenAI shape, the Ollama single shape and the
// batch-shaped Ollama /api/embed shape, flattening the latter to 1-D.
func decodeEmbedding(payload []byte) ([]float32, error) {
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Embedding  []float32   `json:"embedding"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("parse embeddings json: %w", err)
	}
	switch {
	case len(out.Data) > 0 && len(out.Data[0].Embedding) > 0:
		return out.Data[0].Embedding, nil
	case len(out.Embedding) > 0:
		return out.Embedding, nil
	case len(out.Embeddings) > 0:
		return vectorstore.Flatten(out.Embeddings), nil
	}
	return nil, errors.New("no embedding returned")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
