// Package httpapi exposes the tutor over a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyrag/internal/service"
)

// Answerer produces a complete answer for a question.
type Answerer interface {
	Answer(ctx context.Context, req service.Request) (service.Answer, error)
}

type qaRequest struct {
	Question    string `json:"question"`
	CurrentYear string `json:"current_year,omitempty"`
}

type qaResponse struct {
	Answer     string             `json:"answer"`
	Confidence service.Confidence `json:"confidence"`
	RequestID  string             `json:"request_id"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// NewHandler routes POST /qa and GET /healthz.
func NewHandler(tutor Answerer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /qa", func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)

		var req qaRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", RequestID: id})
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required", RequestID: id})
			return
		}
		start := time.Now()
		ans, err := tutor.Answer(r.Context(), service.Request{Question: req.Question, CurrentYear: req.CurrentYear})
		if err != nil {
			logger.Error("qa failed", "request_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "answer generation failed", RequestID: id})
			return
		}
		logger.Info("qa answered", "request_id", id, "confidence", ans.Confidence, "duration", time.Since(start))
		writeJSON(w, http.StatusOK, qaResponse{Answer: ans.Text, Confidence: ans.Confidence, RequestID: id})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Serve runs the handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		if logger != nil {
			logger.Info("http listening", "addr", addr)
		}
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
