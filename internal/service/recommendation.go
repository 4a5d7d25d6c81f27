// Package service provides the orchestration logic behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/extract"
	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/internal/poller"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/metrics"
)

// ErrMissingCity is returned when preferences do not name a city.
var ErrMissingCity = errors.New("city is required")

// RecommendationService creates recommendation jobs and collects their results.
type RecommendationService struct {
	transport llm.Transport
	poller    *poller.Poller
	pollOpts  poller.Options
	events    EventPublisher
	logger    *logger.Logger
}

// NewRecommendationService creates a new recommendation service.
func NewRecommendationService(
	transport llm.Transport,
	p *poller.Poller,
	pollOpts poller.Options,
	events EventPublisher,
	log *logger.Logger,
) *RecommendationService {
	if events == nil {
		events = NopPublisher{}
	}
	return &RecommendationService{
		transport: transport,
		poller:    p,
		pollOpts:  pollOpts,
		events:    events,
		logger:    log,
	}
}

// CreateThread creates a thread seeded with prefs and starts a job on it.
func (s *RecommendationService) CreateThread(ctx context.Context, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	if prefs.City == "" {
		return nil, ErrMissingCity
	}

	thread, err := s.transport.CreateThread(ctx, prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	s.logger.Info("thread created", zap.String("thread_id", thread.ID), zap.String("city", prefs.City))
	emit(ctx, s.events, s.logger, model.EventTypeThreadCreated, thread.ID, "", "", nil)

	return s.submit(ctx, thread.ID, prefs)
}

// SubmitPreferences starts a new job on an existing thread.
func (s *RecommendationService) SubmitPreferences(ctx context.Context, threadID string, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	if prefs.City == "" {
		return nil, ErrMissingCity
	}
	return s.submit(ctx, threadID, prefs)
}

func (s *RecommendationService) submit(ctx context.Context, threadID string, prefs model.Preferences) (*model.CreateThreadResponse, error) {
	job, err := s.transport.SubmitJob(ctx, threadID, BuildPrompt(prefs))
	if err != nil {
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}

	s.logger.Info("job submitted", zap.String("thread_id", threadID), zap.String("job_id", job.ID))
	emit(ctx, s.events, s.logger, model.EventTypeJobSubmitted, threadID, job.ID, "", nil)

	return &model.CreateThreadResponse{ThreadID: threadID, RunID: job.ID}, nil
}

// GetResponse polls the newest job of a thread and extracts its
// recommendations. A pending, failed or expired job yields an empty list with
// its status. An unusable model output is an *extract.ExtractionError.
func (s *RecommendationService) GetResponse(ctx context.Context, threadID string) (*model.GetResponseResponse, error) {
	job, err := s.transport.LatestJob(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest job: %w", err)
	}
	if job == nil {
		return &model.GetResponseResponse{Status: model.StatusNoRun, Recommendations: []model.Recommendation{}}, nil
	}

	res, err := s.poller.PollUntilDone(ctx, threadID, job.ID, s.pollOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to poll job: %w", err)
	}

	log := s.logger.With(zap.String("thread_id", threadID), zap.String("job_id", job.ID))
	emit(ctx, s.events, s.logger, model.EventTypeJobFinished, threadID, job.ID, string(res.Status),
		map[string]any{"attempts": res.Attempts})

	if res.Status != model.JobStatusCompleted {
		log.Info("job not completed", zap.String("status", string(res.Status)), zap.Int("attempts", res.Attempts))
		return &model.GetResponseResponse{Status: string(res.Status), Recommendations: []model.Recommendation{}}, nil
	}

	recs, err := extract.Extract(res.RawText)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("error").Inc()
		log.Warn("failed to extract recommendations", zap.Error(err))
		emit(ctx, s.events, s.logger, model.EventTypeExtractionFailed, threadID, job.ID, err.Error(), nil)
		return nil, err
	}

	metrics.ExtractionsTotal.WithLabelValues("success").Inc()
	log.Info("recommendations extracted", zap.Int("count", len(recs)))

	return &model.GetResponseResponse{Status: string(model.JobStatusCompleted), Recommendations: recs}, nil
}

// CheckStatus performs a single status check of a job and returns the
// assistant's reply once it has completed.
func (s *RecommendationService) CheckStatus(ctx context.Context, threadID, jobID string) (*model.CheckStatusResponse, error) {
	status, err := s.transport.GetJobStatus(ctx, threadID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	if status != model.JobStatusCompleted {
		return &model.CheckStatusResponse{Status: string(status)}, nil
	}

	text, err := s.transport.ListLatestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assistant message: %w", err)
	}

	return &model.CheckStatusResponse{Status: string(status), Response: text}, nil
}
