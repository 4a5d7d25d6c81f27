// Package llm provides the transport adapter to the hosted model service.
package llm

import (
	"context"
	"io"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

// ThreadHandle is a provider-side conversation thread.
type ThreadHandle struct {
	ID   string
	Seed model.Preferences
}

// JobHandle is a generation job (run) bound to a thread.
type JobHandle struct {
	ID       string
	ThreadID string
	Status   model.JobStatus
}

// ChatMessage represents a chat message for the model.
type ChatMessage struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// ChatContext is everything needed to open a chat stream.
type ChatContext struct {
	ThreadID string
	History  []ChatMessage
	Message  string
}

// Transport is the set of operations the orchestration layer needs from the
// model service. Every call is a single network attempt; retry policy belongs
// to callers. Failures are returned as *TransportError.
type Transport interface {
	// CreateThread creates an empty thread seeded with the profile metadata.
	CreateThread(ctx context.Context, seed model.Preferences) (*ThreadHandle, error)

	// SubmitJob appends payload to the thread and starts a generation job.
	SubmitJob(ctx context.Context, threadID, payload string) (*JobHandle, error)

	// GetJobStatus returns the normalized status of a job.
	GetJobStatus(ctx context.Context, threadID, jobID string) (model.JobStatus, error)

	// LatestJob returns the most recent job of a thread, or nil if none exists.
	LatestJob(ctx context.Context, threadID string) (*JobHandle, error)

	// ListLatestAssistantMessage returns the text of the newest assistant message.
	ListLatestAssistantMessage(ctx context.Context, threadID string) (string, error)

	// AppendMessage adds a chat turn to the thread without starting a job.
	// ListLatestAssistantMessage ignores appended assistant turns.
	AppendMessage(ctx context.Context, threadID string, role model.Role, text string) error

	// ListMessages returns up to limit of the newest messages, oldest first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]ChatMessage, error)

	// OpenChatStream starts a streamed chat completion and returns the raw
	// event-stream body. The caller must close it.
	OpenChatStream(ctx context.Context, cc ChatContext) (io.ReadCloser, error)
}
