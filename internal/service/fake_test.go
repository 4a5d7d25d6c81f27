package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

type fakeTransport struct {
	mu sync.Mutex

	statuses   []model.JobStatus
	statusErr  error
	latest     *llm.JobHandle
	latestErr  error
	replyText  string
	history    []llm.ChatMessage
	stream     string
	streamErr  error
	historyErr error
	appendErr  error

	created     []model.Preferences
	submitted   []string
	statusCalls int
	chatContext llm.ChatContext
	appended    []llm.ChatMessage
}

func (f *fakeTransport) CreateThread(_ context.Context, seed model.Preferences) (*llm.ThreadHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, seed)
	return &llm.ThreadHandle{ID: "thread_1", Seed: seed}, nil
}

func (f *fakeTransport) SubmitJob(_ context.Context, threadID, payload string) (*llm.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, payload)
	return &llm.JobHandle{ID: "run_1", ThreadID: threadID, Status: model.JobStatusQueued}, nil
}

func (f *fakeTransport) GetJobStatus(context.Context, string, string) (model.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return "", f.statusErr
	}
	i := f.statusCalls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.statusCalls++
	return f.statuses[i], nil
}

func (f *fakeTransport) LatestJob(context.Context, string) (*llm.JobHandle, error) {
	return f.latest, f.latestErr
}

func (f *fakeTransport) ListLatestAssistantMessage(context.Context, string) (string, error) {
	return f.replyText, nil
}

func (f *fakeTransport) AppendMessage(_ context.Context, _ string, role model.Role, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	msg := llm.ChatMessage{Role: role, Content: text}
	f.appended = append(f.appended, msg)
	f.history = append(f.history, msg)
	return nil
}

func (f *fakeTransport) ListMessages(context.Context, string, int) ([]llm.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatMessage(nil), f.history...), f.historyErr
}

func (f *fakeTransport) OpenChatStream(_ context.Context, cc llm.ChatContext) (io.ReadCloser, error) {
	f.mu.Lock()
	f.chatContext = cc
	f.mu.Unlock()
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &trackedBody{Reader: strings.NewReader(f.stream)}, nil
}

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ConversationEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev *model.ConversationEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, ev)
	return uint64(len(p.events)), nil
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

var errBoom = errors.New("boom")
