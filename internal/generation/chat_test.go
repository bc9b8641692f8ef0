package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, req chatRequest)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/", Model: "tutor-model", Temperature: 0.7})
	require.NoError(t, err)
	return c
}

func TestStream(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, req chatRequest) {
		assert.True(t, req.Stream)
		assert.Equal(t, "tutor-model", req.Model)
		assert.Len(t, req.Messages, 2)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Mito", "chondria", " "} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	out := make(chan string, 8)
	err := c.Stream(context.Background(), []Message{System("s"), User("q")}, out)
	require.NoError(t, err)
	close(out)
	var got []string
	for tok := range out {
		got = append(got, tok)
	}
	assert.Equal(t, []string{"Mito", "chondria", " "}, got)
}

func TestStreamStopsOnFinishReason(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"done\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {not json}\n\n")
	})
	out := make(chan string, 2)
	require.NoError(t, c.Stream(context.Background(), nil, out))
	assert.Equal(t, "done", <-out)
}

func TestStreamMalformedChunk(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		fmt.Fprint(w, "data: {not json}\n\n")
	})
	err := c.Stream(context.Background(), nil, make(chan string, 1))
	require.Error(t, err)
}

func TestStreamContextCancelledWhileBlocked(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string)
	errc := make(chan error, 1)
	go func() { errc <- c.Stream(ctx, nil, out) }()
	<-out
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestComplete(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, req chatRequest) {
		assert.False(t, req.Stream)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	})
	got, err := c.Complete(context.Background(), []Message{User("q")})
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestErrorStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	_, err := c.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestMissingKey(t *testing.T) {
	t.Setenv("STUDYRAG_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "STUDYRAG_TEST_KEY"})
	require.Error(t, err)
}
