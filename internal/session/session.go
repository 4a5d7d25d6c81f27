// Package session holds the client-side state of one advisor conversation:
// the persisted profile, its thread and the chat transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

// ChatApology replaces a chat reply that could not be completed.
const ChatApology = "Sorry, something went wrong while answering. Please try again."

var (
	// ErrNoThread is returned by operations that need a thread before one exists.
	ErrNoThread = errors.New("no conversation thread yet; submit preferences first")

	// ErrNoRun is returned by Status before any job was submitted.
	ErrNoRun = errors.New("no job submitted in this session")
)

// Backend is the HTTP contract of the advisor API.
type Backend interface {
	CreateThread(ctx context.Context, prefs model.Preferences) (*model.CreateThreadResponse, error)
	SubmitPreferences(ctx context.Context, threadID string, prefs model.Preferences) (*model.CreateThreadResponse, error)
	GetResponse(ctx context.Context, threadID string) (*model.GetResponseResponse, error)
	CheckStatus(ctx context.Context, threadID, runID string) (*model.CheckStatusResponse, error)
	Chat(ctx context.Context, threadID, message string, onToken func(string)) error
}

// EntryState is the lifecycle of a transcript entry.
type EntryState string

const (
	EntryPending  EntryState = "pending"
	EntryComplete EntryState = "complete"
	EntryError    EntryState = "error"
)

// Entry is one line of the chat transcript.
type Entry struct {
	Role    model.Role
	Content string
	State   EntryState
}

// Outcome is the result of a recommendation request.
type Outcome struct {
	Status          string
	Recommendations []model.Recommendation
}

// Completed reports whether recommendations were produced.
func (o *Outcome) Completed() bool {
	return o.Status == string(model.JobStatusCompleted)
}

// Session mediates between a user and one advisor thread.
//
// A Session is not safe for concurrent use. The caller must not start an
// operation while another is outstanding.
type Session struct {
	backend    Backend
	store      Store
	logger     *logger.Logger
	profile    *model.Profile
	runID      string
	transcript []Entry
}

// New creates a session and loads any persisted profile from store.
func New(ctx context.Context, backend Backend, store Store, log *logger.Logger) (*Session, error) {
	s := &Session{
		backend: backend,
		store:   store,
		logger:  log,
	}

	profile, err := store.Load(ctx)
	switch {
	case err == nil:
		s.profile = profile
		log.Debug("loaded profile", zap.String("thread_id", profile.ThreadID))
	case errors.Is(err, ErrNoProfile):
	default:
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	return s, nil
}

// ThreadID returns the session's thread, or "" before the first Recommend.
func (s *Session) ThreadID() string {
	if s.profile == nil {
		return ""
	}
	return s.profile.ThreadID
}

// Profile returns a copy of the persisted profile, or nil.
func (s *Session) Profile() *model.Profile {
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// RunID returns the last job submitted in this session.
func (s *Session) RunID() string {
	return s.runID
}

// SetRunID resumes tracking of a job submitted earlier.
func (s *Session) SetRunID(runID string) {
	s.runID = runID
}

// Submit sends prefs to the advisor. The first call creates the thread and
// persists it; later calls reuse it.
func (s *Session) Submit(ctx context.Context, prefs model.Preferences) error {
	if threadID := s.ThreadID(); threadID != "" {
		resp, err := s.backend.SubmitPreferences(ctx, threadID, prefs)
		if err != nil {
			return fmt.Errorf("failed to submit preferences: %w", err)
		}
		s.runID = resp.RunID

		// The thread stays; only the answers change.
		s.profile.Preferences = prefs
		if err := s.store.Save(ctx, s.profile); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	}

	resp, err := s.backend.CreateThread(ctx, prefs)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	if resp.ThreadID == "" {
		return errors.New("server returned no thread id")
	}

	profile := &model.Profile{Preferences: prefs, ThreadID: resp.ThreadID}
	if err := s.store.Save(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	s.profile = profile
	s.runID = resp.RunID

	s.logger.Info("thread created", zap.String("thread_id", resp.ThreadID))
	return nil
}

// Recommend submits prefs and waits for the recommendations.
func (s *Session) Recommend(ctx context.Context, prefs model.Preferences) (*Outcome, error) {
	if err := s.Submit(ctx, prefs); err != nil {
		return nil, err
	}
	return s.Results(ctx)
}

// Results collects the recommendations of the thread's newest job.
func (s *Session) Results(ctx context.Context) (*Outcome, error) {
	threadID := s.ThreadID()
	if threadID == "" {
		return nil, ErrNoThread
	}

	resp, err := s.backend.GetResponse(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}

	return &Outcome{Status: resp.Status, Recommendations: resp.Recommendations}, nil
}

// Status checks the last submitted job once.
func (s *Session) Status(ctx context.Context) (*model.CheckStatusResponse, error) {
	threadID := s.ThreadID()
	if threadID == "" {
		return nil, ErrNoThread
	}
	if s.runID == "" {
		return nil, ErrNoRun
	}

	resp, err := s.backend.CheckStatus(ctx, threadID, s.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to check status: %w", err)
	}
	return resp, nil
}

// Chat sends message and streams the reply through onToken. The transcript
// gains the user entry and an assistant entry that is complete on success or
// an error entry carrying ChatApology on failure.
func (s *Session) Chat(ctx context.Context, message string, onToken func(string)) error {
	threadID := s.ThreadID()
	if threadID == "" {
		return ErrNoThread
	}

	s.transcript = append(s.transcript,
		Entry{Role: model.RoleUser, Content: message, State: EntryComplete},
		Entry{Role: model.RoleAssistant, State: EntryPending},
	)
	idx := len(s.transcript) - 1

	var reply strings.Builder
	err := s.backend.Chat(ctx, threadID, message, func(token string) {
		reply.WriteString(token)
		s.transcript[idx].Content = reply.String()
		if onToken != nil {
			onToken(token)
		}
	})
	if err != nil {
		s.transcript[idx] = Entry{Role: model.RoleAssistant, Content: ChatApology, State: EntryError}
		s.logger.Warn("chat failed", zap.String("thread_id", threadID), zap.Error(err))
		return fmt.Errorf("failed to chat: %w", err)
	}

	s.transcript[idx].State = EntryComplete
	return nil
}

// Transcript returns a copy of the chat transcript.
func (s *Session) Transcript() []Entry {
	return append([]Entry(nil), s.transcript...)
}
