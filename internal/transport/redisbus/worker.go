// Package redisbus serves tutor requests arriving on a Redis pub/sub
// channel and streams the answers back on a per-chat response channel.
package redisbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"studyrag/internal/config"
	"studyrag/internal/service"
)

// Request is an incoming question.
type Request struct {
	ChatID      string `json:"chatId"`
	Question    string `json:"question"`
	Mode        string `json:"mode"`
	CurrentYear Year   `json:"current_year"`
}

// Response is one message on the response channel. The final message of a
// chat has Done set.
type Response struct {
	ChatID string `json:"chatId"`
	Token  string `json:"token"`
	Done   bool   `json:"done"`
	Error  string `json:"error,omitempty"`
}

// Year accepts either a JSON number or string.
type Year string

func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*y = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = Year(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("current_year: %w", err)
	}
	*y = Year(n.String())
	return nil
}

// Tutor answers questions.
type Tutor interface {
	Stream(ctx context.Context, req service.Request, out chan<- string) (service.Answer, error)
	Answer(ctx context.Context, req service.Request) (service.Answer, error)
}

// Publisher sends a payload to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type clientPublisher struct {
	client *redis.Client
}

func (p clientPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Worker subscribes to the request channel and handles each request in its
// own goroutine, bounded by MaxConcurrent.
type Worker struct {
	client         *redis.Client
	pub            Publisher
	tutor          Tutor
	requestChannel string
	responsePrefix string
	sem            chan struct{}
	logger         *slog.Logger
}

func NewWorker(client *redis.Client, tutor Tutor, cfg config.RedisConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = 1
	}
	return &Worker{
		client:         client,
		pub:            clientPublisher{client: client},
		tutor:          tutor,
		requestChannel: cfg.RequestChannel,
		responsePrefix: cfg.ResponsePrefix,
		sem:            make(chan struct{}, n),
		logger:         logger,
	}
}

// NewClient connects to the configured Redis server.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight requests.
func (w *Worker) Run(ctx context.Context) error {
	sub := w.client.Subscribe(ctx, w.requestChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", w.requestChannel, err)
	}
	w.logger.Info("listening for requests", "channel", w.requestChannel)

	var wg sync.WaitGroup
	defer wg.Wait()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(payload string) {
				defer wg.Done()
				defer func() { <-w.sem }()
				w.Handle(ctx, []byte(payload))
			}(msg.Payload)
		}
	}
}

// Handle processes one raw request. Malformed payloads are logged and
// dropped.
func (w *Worker) Handle(ctx context.Context, payload []byte) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		w.logger.Warn("invalid request payload", "error", err)
		return
	}
	channel := w.responsePrefix + req.ChatID
	// The terminator must reach the client even while shutting down.
	final := context.WithoutCancel(ctx)
	if req.ChatID == "" || strings.TrimSpace(req.Question) == "" {
		w.logger.Warn("invalid request: missing chatId or question", "chat_id", req.ChatID)
		w.publish(final, channel, Response{ChatID: req.ChatID, Done: true, Error: "Missing chatId or question"})
		return
	}

	w.logger.Info("processing request", "chat_id", req.ChatID, "mode", req.Mode)
	sreq := service.Request{Question: req.Question, CurrentYear: string(req.CurrentYear)}
	var err error
	if req.Mode == "" || strings.EqualFold(req.Mode, "lite") {
		err = w.stream(ctx, channel, req.ChatID, sreq)
	} else {
		err = w.complete(ctx, channel, req.ChatID, sreq)
	}
	if err != nil {
		w.logger.Error("request failed", "chat_id", req.ChatID, "error", err)
		w.publish(final, channel, Response{ChatID: req.ChatID, Done: true, Error: err.Error()})
		return
	}
	w.publish(final, channel, Response{ChatID: req.ChatID, Done: true})
	w.logger.Info("response completed", "chat_id", req.ChatID)
}

func (w *Worker) stream(ctx context.Context, channel, chatID string, req service.Request) error {
	out := make(chan string, 32)
	errc := make(chan error, 1)
	go func() {
		_, err := w.tutor.Stream(ctx, req, out)
		close(out)
		errc <- err
	}()
	for tok := range out {
		w.publish(ctx, channel, Response{ChatID: chatID, Token: tok})
	}
	return <-errc
}

func (w *Worker) complete(ctx context.Context, channel, chatID string, req service.Request) error {
	ans, err := w.tutor.Answer(ctx, req)
	if err != nil {
		return err
	}
	w.publish(ctx, channel, Response{ChatID: chatID, Token: ans.Text})
	return nil
}

func (w *Worker) publish(ctx context.Context, channel string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		w.logger.Error("encode response", "error", err)
		return
	}
	if err := w.pub.Publish(ctx, channel, data); err != nil {
		w.logger.Warn("publish failed", "channel", channel, "error", err)
	}
}
