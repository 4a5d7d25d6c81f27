package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/metrics"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/tracing"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultChatModel = "gpt-4o"

	// latestMessageWindow is how many recent messages are scanned for the
	// newest assistant reply. It is the provider's page maximum.
	latestMessageWindow = 100

	// chatSourceKey tags messages appended by follow-up chat so run output
	// can be told apart from relayed replies.
	chatSourceKey   = "source"
	chatSourceValue = "chat"

	maxErrorBody = 4096
)

// Config configures the OpenAI transport.
type Config struct {
	APIKey      string
	BaseURL     string
	AssistantID string
	ChatModel   string

	// ResponseTimeout bounds the wait for response headers of every call.
	// Zero leaves it to the operating system.
	ResponseTimeout time.Duration

	// SystemPrompt is prepended to every chat stream.
	SystemPrompt string
}

// OpenAIClient talks to the OpenAI Assistants API for threads, runs and
// messages, and to the chat completions endpoint for streamed chat.
type OpenAIClient struct {
	client       *openai.Client
	http         *http.Client
	baseURL      string
	apiKey       string
	assistantID  string
	chatModel    string
	systemPrompt string
	tracer       trace.Tracer
}

// NewOpenAIClient creates a new OpenAI transport.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if cfg.AssistantID == "" {
		return nil, errors.New("OpenAI assistant ID is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = defaultChatModel
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.ResponseTimeout
	httpClient := &http.Client{Transport: transport}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = baseURL
	oc.HTTPClient = httpClient

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(oc),
		http:         httpClient,
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		assistantID:  cfg.AssistantID,
		chatModel:    chatModel,
		systemPrompt: cfg.SystemPrompt,
		tracer:       tracing.Tracer("neighborhood-advisor/llm"),
	}, nil
}

// CreateThread creates an empty thread tagged with the seed's city and expertise.
func (c *OpenAIClient) CreateThread(ctx context.Context, seed model.Preferences) (*ThreadHandle, error) {
	ctx, span := c.tracer.Start(ctx, "llm.CreateThread")
	defer span.End()

	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{
		Metadata: map[string]any{
			"city":      seed.City,
			"expertise": strings.Join(seed.Expertise, ","),
		},
	})
	if err := c.finish(span, "create_thread", err); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("thread.id", thread.ID))
	return &ThreadHandle{ID: thread.ID, Seed: seed}, nil
}

// SubmitJob posts payload as a user message and starts a run on the assistant.
func (c *OpenAIClient) SubmitJob(ctx context.Context, threadID, payload string) (*JobHandle, error) {
	ctx, span := c.tracer.Start(ctx, "llm.SubmitJob", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	_, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    "user",
		Content: payload,
	})
	if err := c.finish(span, "create_message", err); err != nil {
		return nil, err
	}

	run, err := c.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: c.assistantID,
	})
	if err := c.finish(span, "create_run", err); err != nil {
		return nil, err
	}

	status, err := normalizeRunStatus(string(run.Status))
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("run.id", run.ID))
	return &JobHandle{ID: run.ID, ThreadID: threadID, Status: status}, nil
}

// GetJobStatus retrieves a run and normalizes its status.
func (c *OpenAIClient) GetJobStatus(ctx context.Context, threadID, jobID string) (model.JobStatus, error) {
	ctx, span := c.tracer.Start(ctx, "llm.GetJobStatus", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("run.id", jobID),
	))
	defer span.End()

	run, err := c.client.RetrieveRun(ctx, threadID, jobID)
	if err := c.finish(span, "retrieve_run", err); err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("run.status", string(run.Status)))
	return normalizeRunStatus(string(run.Status))
}

// LatestJob returns the newest run of a thread, or nil when there is none.
func (c *OpenAIClient) LatestJob(ctx context.Context, threadID string) (*JobHandle, error) {
	ctx, span := c.tracer.Start(ctx, "llm.LatestJob", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	limit := 1
	order := "desc"
	runs, err := c.client.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit, Order: &order})
	if err := c.finish(span, "list_runs", err); err != nil {
		return nil, err
	}

	if len(runs.Runs) == 0 {
		return nil, nil
	}

	run := runs.Runs[0]
	status, err := normalizeRunStatus(string(run.Status))
	if err != nil {
		return nil, err
	}
	return &JobHandle{ID: run.ID, ThreadID: threadID, Status: status}, nil
}

// ListLatestAssistantMessage returns the text of the newest assistant message.
func (c *OpenAIClient) ListLatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	messages, err := c.listMessages(ctx, threadID, latestMessageWindow)
	if err != nil {
		return "", err
	}

	for _, msg := range messages {
		if msg.Role != string(model.RoleAssistant) || fromChat(msg) {
			continue
		}
		if text := messageText(msg); text != "" {
			return text, nil
		}
	}

	return "", ErrNoAssistantMessage
}

// AppendMessage records one chat turn on the thread without starting a run.
func (c *OpenAIClient) AppendMessage(ctx context.Context, threadID string, role model.Role, text string) error {
	ctx, span := c.tracer.Start(ctx, "llm.AppendMessage", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("message.role", string(role)),
	))
	defer span.End()

	_, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:     string(role),
		Content:  text,
		Metadata: map[string]any{chatSourceKey: chatSourceValue},
	})
	return c.finish(span, "append_message", err)
}

// ListMessages returns up to limit of the newest thread messages, oldest first.
func (c *OpenAIClient) ListMessages(ctx context.Context, threadID string, limit int) ([]ChatMessage, error) {
	messages, err := c.listMessages(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]ChatMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		text := messageText(messages[i])
		if text == "" {
			continue
		}
		history = append(history, ChatMessage{Role: model.Role(messages[i].Role), Content: text})
	}

	return history, nil
}

// listMessages lists the newest messages first.
func (c *OpenAIClient) listMessages(ctx context.Context, threadID string, limit int) ([]openai.Message, error) {
	ctx, span := c.tracer.Start(ctx, "llm.ListMessages", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	order := "desc"
	list, err := c.client.ListMessage(ctx, threadID, &limit, &order, nil, nil)
	if err := c.finish(span, "list_messages", err); err != nil {
		return nil, err
	}

	return list.Messages, nil
}

// OpenChatStream posts a streaming chat completion request and hands back the
// raw event-stream body. The span covers connection setup only.
func (c *OpenAIClient) OpenChatStream(ctx context.Context, cc ChatContext) (io.ReadCloser, error) {
	ctx, span := c.tracer.Start(ctx, "llm.OpenChatStream", trace.WithAttributes(attribute.String("thread.id", cc.ThreadID)))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(cc.History)+2)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	for _, msg := range cc.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: cc.Message,
	})

	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		err = statusError(resp.StatusCode, respBody)
	}
	if err := c.finish(span, "chat_stream", err); err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// finish records the outcome of one provider call on the span and in metrics
// and maps a failure to *TransportError.
func (c *OpenAIClient) finish(span trace.Span, operation string, err error) error {
	metrics.RecordLLMRequest(operation, err)
	if err == nil {
		return nil
	}

	err = mapError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// normalizeRunStatus folds the provider's run statuses into JobStatus.
func normalizeRunStatus(status string) (model.JobStatus, error) {
	switch status {
	case "queued":
		return model.JobStatusQueued, nil
	case "in_progress", "requires_action", "cancelling":
		return model.JobStatusInProgress, nil
	case "completed":
		return model.JobStatusCompleted, nil
	case "failed", "cancelled":
		return model.JobStatusFailed, nil
	case "expired":
		return model.JobStatusExpired, nil
	default:
		return "", fmt.Errorf("unknown run status %q", status)
	}
}

func fromChat(msg openai.Message) bool {
	v, _ := msg.Metadata[chatSourceKey].(string)
	return v == chatSourceValue
}

// messageText joins the text parts of a message.
func messageText(msg openai.Message) string {
	parts := make([]string, 0, len(msg.Content))
	for _, content := range msg.Content {
		if content.Type != "text" || content.Text == nil {
			continue
		}
		if v := strings.TrimSpace(content.Text.Value); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}
