package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/internal/relay"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

func TestChatOpenPassesHistory(t *testing.T) {
	ft := &fakeTransport{history: []llm.ChatMessage{{Role: model.RoleAssistant, Content: "Try Hyde Park."}}}
	svc := NewChatService(ft, relay.New(), 10, nil, logger.NewNop())

	body, err := svc.Open(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "Is it quiet?"})
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "thread_1", ft.chatContext.ThreadID)
	assert.Equal(t, "Is it quiet?", ft.chatContext.Message)
	assert.Equal(t, ft.history, ft.chatContext.History)
}

func TestChatOpenErrors(t *testing.T) {
	ft := &fakeTransport{historyErr: errBoom}
	svc := NewChatService(ft, relay.New(), 10, nil, logger.NewNop())

	_, err := svc.Open(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "hi"})
	assert.ErrorIs(t, err, errBoom)

	ft = &fakeTransport{streamErr: &llm.TransportError{StatusCode: 429, Message: "slow down"}}
	svc = NewChatService(ft, relay.New(), 0, nil, logger.NewNop())

	_, err = svc.Open(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "hi"})
	var te *llm.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 429, te.StatusCode)
}

func TestChatRelayForwardsAndCloses(t *testing.T) {
	body := &trackedBody{Reader: bytes.NewBufferString(
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
			"data: [DONE]\n\n",
	)}
	pub := &recordingPublisher{}
	svc := NewChatService(&fakeTransport{}, relay.New(), 10, pub, logger.NewNop())

	var out bytes.Buffer
	err := svc.Relay(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "hi"}, body, &out)
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.String())
	assert.True(t, body.closed)
	assert.Equal(t, []model.EventType{model.EventTypeChatCompleted}, pub.types())
	assert.Equal(t, map[string]any{"tokens": 2, "bytes": 5}, pub.events[0].Metadata)
}

func TestChatRelayProtocolError(t *testing.T) {
	body := &trackedBody{Reader: bytes.NewBufferString(
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
			"data: {not json\n\n",
	)}
	pub := &recordingPublisher{}
	svc := NewChatService(&fakeTransport{}, relay.New(), 10, pub, logger.NewNop())

	var out bytes.Buffer
	err := svc.Relay(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "hi"}, body, &out)

	var pe *relay.StreamProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Hi", out.String())
	assert.True(t, body.closed)
	assert.Equal(t, []model.EventType{model.EventTypeChatFailed}, pub.types())
}

func TestChatRelayFailureIsNotRemembered(t *testing.T) {
	body := &trackedBody{Reader: bytes.NewBufferString(
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
			"data: {not json\n\n",
	)}
	ft := &fakeTransport{}
	svc := NewChatService(ft, relay.New(), 10, nil, logger.NewNop())

	err := svc.Relay(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "hi"}, body, io.Discard)
	require.Error(t, err)
	assert.Empty(t, ft.appended)
}

func TestChatFollowUpSeesEarlierTurn(t *testing.T) {
	ft := &fakeTransport{
		history: []llm.ChatMessage{{Role: model.RoleAssistant, Content: `{"recommendations":[]}`}},
		stream:  "data: {\"choices\":[{\"delta\":{\"content\":\"Very \"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"quiet.\"}}]}\n\ndata: [DONE]\n\n",
	}
	svc := NewChatService(ft, relay.New(), 10, nil, logger.NewNop())
	ctx := context.Background()

	first := &model.ChatRequest{ThreadID: "thread_1", Message: "Is Hyde Park quiet?"}
	body, err := svc.Open(ctx, first)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, svc.Relay(ctx, first, body, &out))
	assert.Equal(t, "Very quiet.", out.String())

	body, err = svc.Open(ctx, &model.ChatRequest{ThreadID: "thread_1", Message: "And the schools?"})
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, []llm.ChatMessage{
		{Role: model.RoleAssistant, Content: `{"recommendations":[]}`},
		{Role: model.RoleUser, Content: "Is Hyde Park quiet?"},
		{Role: model.RoleAssistant, Content: "Very quiet."},
	}, ft.chatContext.History)
	assert.Equal(t, "And the schools?", ft.chatContext.Message)
}

func TestChatAppendFailureKeepsReply(t *testing.T) {
	ft := &fakeTransport{appendErr: errBoom}
	pub := &recordingPublisher{}
	svc := NewChatService(ft, relay.New(), 10, pub, logger.NewNop())
	body := &trackedBody{Reader: bytes.NewBufferString("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")}

	var out bytes.Buffer
	err := svc.Relay(context.Background(), &model.ChatRequest{ThreadID: "thread_1", Message: "hi"}, body, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.String())
	assert.Equal(t, []model.EventType{model.EventTypeChatCompleted}, pub.types())
}
