package model

import (
	"time"
)

// EventType represents the type of conversation lifecycle event.
type EventType string

const (
	EventTypeThreadCreated    EventType = "thread_created"
	EventTypeJobSubmitted     EventType = "job_submitted"
	EventTypeJobFinished      EventType = "job_finished"
	EventTypeExtractionFailed EventType = "extraction_failed"
	EventTypeChatCompleted    EventType = "chat_completed"
	EventTypeChatFailed       EventType = "chat_failed"
)

// ConversationEvent records a lifecycle transition of a thread. It never
// carries message content.
type ConversationEvent struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	JobID     string         `json:"job_id,omitempty"`
	Type      EventType      `json:"type"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Sequence  uint64         `json:"sequence,omitempty"`
}
