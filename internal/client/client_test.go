package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

func newServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken("tok"))
}

func TestCreateThreadSendsPreferences(t *testing.T) {
	var got model.CreateThreadRequest
	var auth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/create-thread", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"threadId":"thread_1","runId":"run_1"}`)
	})
	c := newServer(t, mux)

	resp, err := c.CreateThread(context.Background(), model.Preferences{
		City:        "Austin",
		Preferences: model.SurveyAnswers{Bedrooms: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "thread_1", resp.ThreadID)
	assert.Equal(t, "run_1", resp.RunID)
	assert.Equal(t, "Austin", got.City)
	assert.Equal(t, 2, got.Preferences.Bedrooms)
	assert.Equal(t, "Bearer tok", auth)
}

func TestSubmitPreferencesSendsThread(t *testing.T) {
	var raw map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/submit-preferences", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = io.WriteString(w, `{"threadId":"thread_1","runId":"run_2"}`)
	})
	c := newServer(t, mux)

	resp, err := c.SubmitPreferences(context.Background(), "thread_1", model.Preferences{City: "Austin"})
	require.NoError(t, err)
	assert.Equal(t, "run_2", resp.RunID)
	assert.Equal(t, "thread_1", raw["threadId"])
	assert.Equal(t, "Austin", raw["city"])
}

func TestGetResponseAndCheckStatusQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/get-response", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "thread_1", r.URL.Query().Get("threadId"))
		_, _ = io.WriteString(w, `{"status":"completed","recommendations":[{"name":"Hyde Park","description":"d","matchScore":90,"averagePrice":1,"transitScore":2,"walkScore":3}]}`)
	})
	mux.HandleFunc("GET /api/check-status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "run_1", r.URL.Query().Get("runId"))
		_, _ = io.WriteString(w, `{"status":"in_progress"}`)
	})
	c := newServer(t, mux)

	got, err := c.GetResponse(context.Background(), "thread_1")
	require.NoError(t, err)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "Hyde Park", got.Recommendations[0].Name)

	st, err := c.CheckStatus(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", st.Status)
}

func TestAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/get-response", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Failed to get recommendations","details":"invalid-record"}`)
	})
	mux.HandleFunc("GET /api/check-status", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})
	c := newServer(t, mux)

	_, err := c.GetResponse(context.Background(), "thread_1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "invalid-record", apiErr.Details)

	_, err = c.CheckStatus(context.Background(), "thread_1", "run_1")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestChatStreamsChunks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req model.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "is it quiet?", req.Message)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, tok := range []string{"Hel", "lo ", "caf\xc3\xa9"} {
			_, _ = io.WriteString(w, tok)
			w.(http.Flusher).Flush()
		}
	})
	c := newServer(t, mux)

	var reply string
	err := c.Chat(context.Background(), "thread_1", "is it quiet?", func(tok string) { reply += tok })
	require.NoError(t, err)
	assert.Equal(t, "Hello café", reply)
}

func TestChatInterrupted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Hel")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	})
	c := newServer(t, mux)

	var reply string
	err := c.Chat(context.Background(), "thread_1", "hi", func(tok string) { reply += tok })
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.Equal(t, "Hel", reply)
}

func TestChatErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Failed to process chat"}`)
	})
	c := newServer(t, mux)

	err := c.Chat(context.Background(), "thread_1", "hi", func(string) { t.Fatal("no tokens expected") })
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Failed to process chat", apiErr.Message)
}

func TestCompleteRunes(t *testing.T) {
	assert.Equal(t, 3, completeRunes([]byte("abc")))
	assert.Equal(t, 3, completeRunes([]byte("caf\xc3")))
	assert.Equal(t, 5, completeRunes([]byte("caf\xc3\xa9")))
	assert.Equal(t, 0, completeRunes([]byte("\xe2\x82")))
}
