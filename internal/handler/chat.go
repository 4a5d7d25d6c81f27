package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/middleware"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

// ChatService is the orchestration behind the chat endpoint.
type ChatService interface {
	Open(ctx context.Context, req *model.ChatRequest) (io.ReadCloser, error)
	Relay(ctx context.Context, req *model.ChatRequest, src io.ReadCloser, dst io.Writer) error
}

// ChatHandler streams follow-up chat replies.
type ChatHandler struct {
	service ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Chat handles POST /api/chat
// The reply is streamed as text/plain. Failures before the first token are
// JSON errors; a failure after it aborts the response so the client sees a
// truncated body instead of a clean end.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateThreadID(req.ThreadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessage(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx)).WithThread(req.ThreadID)

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	body, err := h.service.Open(ctx, &req)
	if err != nil {
		log.Error("failed to open chat stream", zap.Error(err))
		writeFailure(w, "Failed to process chat", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	sw := &streamWriter{ResponseWriter: w}
	err = h.service.Relay(ctx, &req, body, sw)
	switch {
	case err == nil:
		if !sw.started {
			w.WriteHeader(http.StatusOK)
		}
	case errors.Is(err, context.Canceled):
		// Client went away; nothing left to tell it.
	case !sw.started:
		log.Error("chat stream failed before first token", zap.Error(err))
		writeFailure(w, "Failed to process chat", err)
	default:
		log.Error("chat stream failed mid-reply", zap.Error(err))
		panic(http.ErrAbortHandler)
	}
}

// streamWriter records whether any reply bytes reached the client.
type streamWriter struct {
	http.ResponseWriter
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	s.started = true
	return s.ResponseWriter.Write(p)
}

func (s *streamWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
