package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/neighborhood-advisor/internal/extract"
	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/internal/relay"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

type fakeRecommendations struct {
	createErr  error
	getResp    *model.GetResponseResponse
	getErr     error
	statusResp *model.CheckStatusResponse

	gotPrefs    model.Preferences
	gotThreadID string
	gotRunID    string
}

func (f *fakeRecommendations) CreateThread(_ context.Context, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	f.gotPrefs = prefs
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.CreateThreadResponse{ThreadID: "thread_1", RunID: "run_1"}, nil
}

func (f *fakeRecommendations) SubmitPreferences(_ context.Context, threadID string, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	f.gotThreadID = threadID
	f.gotPrefs = prefs
	return &model.CreateThreadResponse{ThreadID: threadID, RunID: "run_2"}, nil
}

func (f *fakeRecommendations) GetResponse(_ context.Context, threadID string) (*model.GetResponseResponse, error) {
	f.gotThreadID = threadID
	return f.getResp, f.getErr
}

func (f *fakeRecommendations) CheckStatus(_ context.Context, threadID, runID string) (*model.CheckStatusResponse, error) {
	f.gotThreadID = threadID
	f.gotRunID = runID
	return f.statusResp, nil
}

func serve(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestCreateThreadHandler(t *testing.T) {
	svc := &fakeRecommendations{}
	h := NewThreadHandler(svc, logger.NewNop())

	rec := serve(h.CreateThread, http.MethodPost, "/api/create-thread",
		`{"city":"Austin","expertise":["investor"],"preferences":{"priceRange":{"min":1,"max":2},"features":["parks"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.CreateThreadResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "thread_1", resp.ThreadID)
	assert.Equal(t, "run_1", resp.RunID)
	assert.Equal(t, "Austin", svc.gotPrefs.City)
	assert.Equal(t, []string{"parks"}, svc.gotPrefs.Preferences.Features)
}

func TestCreateThreadHandlerErrors(t *testing.T) {
	svc := &fakeRecommendations{}
	h := NewThreadHandler(svc, logger.NewNop())

	rec := serve(h.CreateThread, http.MethodPost, "/api/create-thread", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.CreateThread, http.MethodPost, "/api/create-thread", `{"preferences":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.createErr = &llm.TransportError{StatusCode: 401, Message: "Incorrect API key"}
	rec = serve(h.CreateThread, http.MethodPost, "/api/create-thread", `{"city":"Austin"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp model.ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Failed to create thread", resp.Error)
	assert.Equal(t, "Incorrect API key", resp.Details)
}

func TestSubmitPreferencesHandler(t *testing.T) {
	svc := &fakeRecommendations{}
	h := NewThreadHandler(svc, logger.NewNop())

	rec := serve(h.SubmitPreferences, http.MethodPost, "/api/submit-preferences", `{"threadId":"thread_9","city":"Denver"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread_9", svc.gotThreadID)
	assert.Equal(t, "Denver", svc.gotPrefs.City)

	rec = serve(h.SubmitPreferences, http.MethodPost, "/api/submit-preferences", `{"city":"Denver"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResponseHandler(t *testing.T) {
	svc := &fakeRecommendations{getResp: &model.GetResponseResponse{Status: model.StatusNoRun, Recommendations: []model.Recommendation{}}}
	h := NewThreadHandler(svc, logger.NewNop())

	rec := serve(h.GetResponse, http.MethodGet, "/api/get-response", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.GetResponse, http.MethodGet, "/api/get-response?threadId=thread_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"no run found","recommendations":[]}`, rec.Body.String())
}

func TestGetResponseHandlerExtractionFailure(t *testing.T) {
	svc := &fakeRecommendations{getErr: &extract.ExtractionError{Reason: extract.ReasonInvalidRecord, Index: 2}}
	h := NewThreadHandler(svc, logger.NewNop())

	rec := serve(h.GetResponse, http.MethodGet, "/api/get-response?threadId=thread_1", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp model.ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "invalid-record", resp.Details)
}

func TestCheckStatusHandler(t *testing.T) {
	svc := &fakeRecommendations{statusResp: &model.CheckStatusResponse{Status: "completed", Response: "hi"}}
	h := NewThreadHandler(svc, logger.NewNop())

	rec := serve(h.CheckStatus, http.MethodGet, "/api/check-status?threadId=thread_1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.CheckStatus, http.MethodGet, "/api/check-status?threadId=thread_1&runId=run_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"completed","response":"hi"}`, rec.Body.String())
	assert.Equal(t, "run_1", svc.gotRunID)
}

type fakeChat struct {
	openErr error
	stream  string
}

func (f *fakeChat) Open(context.Context, *model.ChatRequest) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func (f *fakeChat) Relay(ctx context.Context, _ *model.ChatRequest, src io.ReadCloser, dst io.Writer) error {
	defer src.Close()
	_, err := relay.New().Forward(ctx, src, dst)
	return err
}

func TestChatHandlerStreams(t *testing.T) {
	svc := &fakeChat{stream: "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\ndata: [DONE]\n\n"}
	h := NewChatHandler(svc, logger.NewNop())

	rec := serve(h.Chat, http.MethodPost, "/api/chat", `{"threadId":"thread_1","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.True(t, rec.Flushed)
}

func TestChatHandlerValidation(t *testing.T) {
	h := NewChatHandler(&fakeChat{}, logger.NewNop())

	rec := serve(h.Chat, http.MethodPost, "/api/chat", `{"threadId":"thread_1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.Chat, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandlerOpenFailure(t *testing.T) {
	h := NewChatHandler(&fakeChat{openErr: errors.New("dial tcp: refused")}, logger.NewNop())

	rec := serve(h.Chat, http.MethodPost, "/api/chat", `{"threadId":"thread_1","message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to process chat"}`, rec.Body.String())
}

func TestChatHandlerErrorBeforeFirstToken(t *testing.T) {
	h := NewChatHandler(&fakeChat{stream: "data: {oops\n\n"}, logger.NewNop())

	rec := serve(h.Chat, http.MethodPost, "/api/chat", `{"threadId":"thread_1","message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatHandlerAbortsMidStream(t *testing.T) {
	h := NewChatHandler(&fakeChat{stream: "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: {oops\n\n"}, logger.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"threadId":"thread_1","message":"hi"}`))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.Chat(rec, req)
	})
	assert.Equal(t, "Hi", rec.Body.String())
}

type stubBroker bool

func (b stubBroker) IsConnected() bool { return bool(b) }

func TestHealthHandler(t *testing.T) {
	rec := serve(NewHealthHandler(nil).Ready, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(NewHealthHandler(stubBroker(false)).Ready, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(NewHealthHandler(stubBroker(false)).Health, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

