package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

type fakeBackend struct {
	createCalls int
	submitCalls []string
	getResp     *model.GetResponseResponse
	statusResp  *model.CheckStatusResponse
	tokens      []string
	chatErr     error
	gotRunID    string
}

func (f *fakeBackend) CreateThread(context.Context, model.Preferences) (*model.CreateThreadResponse, error) {
	f.createCalls++
	return &model.CreateThreadResponse{ThreadID: "thread_1", RunID: "run_1"}, nil
}

func (f *fakeBackend) SubmitPreferences(_ context.Context, threadID string, _ model.Preferences) (*model.CreateThreadResponse, error) {
	f.submitCalls = append(f.submitCalls, threadID)
	return &model.CreateThreadResponse{ThreadID: threadID, RunID: "run_2"}, nil
}

func (f *fakeBackend) GetResponse(context.Context, string) (*model.GetResponseResponse, error) {
	if f.getResp == nil {
		return &model.GetResponseResponse{Status: "completed", Recommendations: []model.Recommendation{{Name: "Hyde Park"}}}, nil
	}
	return f.getResp, nil
}

func (f *fakeBackend) CheckStatus(_ context.Context, _ string, runID string) (*model.CheckStatusResponse, error) {
	f.gotRunID = runID
	return f.statusResp, nil
}

func (f *fakeBackend) Chat(_ context.Context, _ string, _ string, onToken func(string)) error {
	for _, tok := range f.tokens {
		onToken(tok)
	}
	return f.chatErr
}

func newSession(t *testing.T, backend Backend, store Store) *Session {
	t.Helper()
	s, err := New(context.Background(), backend, store, logger.NewNop())
	require.NoError(t, err)
	return s
}

func TestRecommendCreatesThreadOnce(t *testing.T) {
	backend := &fakeBackend{}
	store := NewMemoryStore()
	s := newSession(t, backend, store)
	ctx := context.Background()

	out, err := s.Recommend(ctx, model.Preferences{City: "Austin"})
	require.NoError(t, err)
	assert.True(t, out.Completed())
	assert.Equal(t, "thread_1", s.ThreadID())
	assert.Equal(t, 1, backend.createCalls)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", saved.ThreadID)
	assert.Equal(t, "Austin", saved.Preferences.City)

	_, err = s.Recommend(ctx, model.Preferences{City: "Austin", Expertise: []string{"investor"}})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.createCalls)
	assert.Equal(t, []string{"thread_1"}, backend.submitCalls)
	assert.Equal(t, "run_2", s.RunID())
}

func TestPersistedThreadSkipsCreate(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &model.Profile{ThreadID: "thread_saved"}))

	backend := &fakeBackend{}
	s := newSession(t, backend, store)

	_, err := s.Recommend(context.Background(), model.Preferences{City: "Denver"})
	require.NoError(t, err)
	assert.Equal(t, 0, backend.createCalls)
	assert.Equal(t, []string{"thread_saved"}, backend.submitCalls)
	assert.Equal(t, "thread_saved", s.ThreadID())
}

func TestStatusUsesLastRun(t *testing.T) {
	backend := &fakeBackend{statusResp: &model.CheckStatusResponse{Status: "in_progress"}}
	s := newSession(t, backend, NewMemoryStore())

	_, err := s.Status(context.Background())
	assert.ErrorIs(t, err, ErrNoThread)

	require.NoError(t, s.Submit(context.Background(), model.Preferences{City: "Austin"}))
	resp, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "in_progress", resp.Status)
	assert.Equal(t, "run_1", backend.gotRunID)
}

func TestStatusWithoutRun(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &model.Profile{ThreadID: "thread_saved"}))
	s := newSession(t, &fakeBackend{}, store)

	_, err := s.Status(context.Background())
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestChatCompletesPlaceholder(t *testing.T) {
	backend := &fakeBackend{tokens: []string{"Hel", "lo"}}
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &model.Profile{ThreadID: "thread_1"}))
	s := newSession(t, backend, store)

	var streamed []string
	err := s.Chat(context.Background(), "hi", func(tok string) { streamed = append(streamed, tok) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, streamed)
	assert.Equal(t, []Entry{
		{Role: model.RoleUser, Content: "hi", State: EntryComplete},
		{Role: model.RoleAssistant, Content: "Hello", State: EntryComplete},
	}, s.Transcript())
}

func TestChatFailureReplacesPlaceholder(t *testing.T) {
	backend := &fakeBackend{tokens: []string{"Hal"}, chatErr: errors.New("stream interrupted")}
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &model.Profile{ThreadID: "thread_1"}))
	s := newSession(t, backend, store)

	err := s.Chat(context.Background(), "hi", nil)
	require.Error(t, err)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, Entry{Role: model.RoleAssistant, Content: ChatApology, State: EntryError}, transcript[1])
	for _, e := range transcript {
		assert.NotEqual(t, EntryPending, e.State)
	}
}

func TestChatRequiresThread(t *testing.T) {
	s := newSession(t, &fakeBackend{}, NewMemoryStore())
	assert.ErrorIs(t, s.Chat(context.Background(), "hi", nil), ErrNoThread)
	assert.Empty(t, s.Transcript())
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Load(context.Context) (*model.Profile, error) {
	return nil, errors.New("disk on fire")
}

func TestNewFailsOnStoreError(t *testing.T) {
	_, err := New(context.Background(), &fakeBackend{}, &failingStore{}, logger.NewNop())
	assert.Error(t, err)
}
