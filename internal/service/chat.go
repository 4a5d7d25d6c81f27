package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/internal/relay"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/metrics"
)

// ChatService relays follow-up chat replies from the model.
type ChatService struct {
	transport    llm.Transport
	relay        *relay.Relay
	historyLimit int
	events       EventPublisher
	logger       *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(
	transport llm.Transport,
	r *relay.Relay,
	historyLimit int,
	events EventPublisher,
	log *logger.Logger,
) *ChatService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ChatService{
		transport:    transport,
		relay:        r,
		historyLimit: historyLimit,
		events:       events,
		logger:       log,
	}
}

// Open loads the thread history and opens the provider stream for req. The
// caller must pass the returned body to Relay or close it.
func (s *ChatService) Open(ctx context.Context, req *model.ChatRequest) (io.ReadCloser, error) {
	var history []llm.ChatMessage
	if s.historyLimit > 0 {
		var err error
		history, err = s.transport.ListMessages(ctx, req.ThreadID, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load thread history: %w", err)
		}
	}

	body, err := s.transport.OpenChatStream(ctx, llm.ChatContext{
		ThreadID: req.ThreadID,
		History:  history,
		Message:  req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}

	return body, nil
}

// Relay forwards tokens from src to dst and closes src. A malformed frame is
// returned as *relay.StreamProtocolError. After a clean finish the user
// message and the relayed reply are appended to the thread so later turns see
// them as history.
func (s *ChatService) Relay(ctx context.Context, req *model.ChatRequest, src io.ReadCloser, dst io.Writer) error {
	defer src.Close()

	metrics.IncrementChatStreams()
	defer metrics.DecrementChatStreams()

	start := time.Now()
	tee := &replyWriter{dst: dst}
	stats, err := s.relay.Forward(ctx, src, tee)

	log := s.logger.With(
		zap.String("thread_id", req.ThreadID),
		zap.Int("tokens", stats.Tokens),
		zap.Int("bytes", stats.Bytes),
		zap.Bool("done_marker", stats.Done),
	)

	meta := map[string]any{"tokens": stats.Tokens, "bytes": stats.Bytes}
	status := "success"
	switch {
	case err == nil:
		log.Info("chat stream finished")
		s.remember(context.WithoutCancel(ctx), req, tee.reply.String())
		emit(ctx, s.events, s.logger, model.EventTypeChatCompleted, req.ThreadID, "", "", meta)
	case errors.Is(err, context.Canceled):
		status = "cancelled"
		log.Info("chat client went away")
	default:
		status = "error"
		log.Warn("chat stream failed", zap.Error(err))
		emit(context.WithoutCancel(ctx), s.events, s.logger, model.EventTypeChatFailed, req.ThreadID, "", err.Error(), meta)
	}
	metrics.RecordChatStream(status, time.Since(start).Seconds(), stats.Tokens)

	return err
}

// remember appends a finished turn to the thread. The reply has already
// reached the client, so a failure here is logged and not returned.
func (s *ChatService) remember(ctx context.Context, req *model.ChatRequest, reply string) {
	if reply == "" {
		return
	}

	log := s.logger.WithThread(req.ThreadID)
	if err := s.transport.AppendMessage(ctx, req.ThreadID, model.RoleUser, req.Message); err != nil {
		log.Warn("failed to append chat message", zap.Error(err))
		return
	}
	if err := s.transport.AppendMessage(ctx, req.ThreadID, model.RoleAssistant, reply); err != nil {
		log.Warn("failed to append chat reply", zap.Error(err))
	}
}

// replyWriter copies every token written to dst and keeps dst flushable.
type replyWriter struct {
	dst   io.Writer
	reply strings.Builder
}

func (w *replyWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.reply.Write(p[:n])
	return n, err
}

func (w *replyWriter) Flush() {
	if f, ok := w.dst.(http.Flusher); ok {
		f.Flush()
	}
}
