package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

// EventPublisher records conversation lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// NopPublisher drops every event. Used when no event stream is configured.
type NopPublisher struct{}

// PublishEvent implements EventPublisher.
func (NopPublisher) PublishEvent(context.Context, *model.ConversationEvent) (uint64, error) {
	return 0, nil
}

// emit publishes an event. The event log is an audit trail, so a failure is
// logged and does not fail the request. meta carries counters such as poll
// attempts or streamed tokens and may be nil.
func emit(ctx context.Context, pub EventPublisher, log *logger.Logger, eventType model.EventType, threadID, jobID, reason string, meta map[string]any) {
	_, err := pub.PublishEvent(ctx, &model.ConversationEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ThreadID:  threadID,
		JobID:     jobID,
		Type:      eventType,
		Reason:    reason,
		Metadata:  meta,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Warn("failed to publish event",
			zap.String("type", string(eventType)),
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
	}
}
