package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = url
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestEmbedOpenAIShape(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mini", body["model"])
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, Config{Model: "mini"})
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 3, c.Dimension())

	_, err = c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call served from cache")
}

func TestEmbedBatchShapeIsFlattened(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2,3,4]]}`))
	}))
	defer ts.Close()

	v, err := newTestClient(t, ts.URL, Config{}).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, v)
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[1,0]}`))
	}))
	defer ts.Close()

	v, err := newTestClient(t, ts.URL, Config{MaxRetries: 2}).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL, Config{}).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedDimensionCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,0]}`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL, Config{Dimension: 3, MaxRetries: 1}).Embed(context.Background(), "x")
	require.Error(t, err)
}

func TestEmbedImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []struct {
				Image string `json:"image"`
			} `json:"input"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body.Input, 1) {
			assert.Equal(t, "AQID", body.Input[0].Image)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.5]}]}`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL, Config{}).EmbedImage(context.Background(), []byte{1, 2, 3})
	require.Error(t, err)

	v, err := newTestClient(t, ts.URL, Config{Images: true}).EmbedImage(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, v)
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("STUDYRAG_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "STUDYRAG_TEST_KEY"})
	require.Error(t, err)

	t.Setenv("STUDYRAG_TEST_KEY", "secret")
	c, err := NewClient(Config{APIKeyEnv: "STUDYRAG_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "secret", c.apiKey)
}
