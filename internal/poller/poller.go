// Package poller drives a generation job to a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/metrics"
)

// StatusSource is the part of the transport the poller needs.
type StatusSource interface {
	GetJobStatus(ctx context.Context, threadID, jobID string) (model.JobStatus, error)
	ListLatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// Options bounds a poll. The total wall-clock budget is Interval * MaxAttempts.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

// Validate checks that the options describe a finite, positive budget.
func (o Options) Validate() error {
	if o.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if o.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	return nil
}

// Result is the outcome of a poll. Status is completed, failed or expired;
// expired means the local attempt budget ran out and the job may still be
// running remotely. RawText is set only for completed jobs.
type Result struct {
	Status   model.JobStatus
	RawText  string
	Attempts int
}

// Poller polls job status. Concurrent polls of the same job are coalesced
// into one; their callers share its result.
type Poller struct {
	source StatusSource
	logger *logger.Logger
	group  singleflight.Group
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a new poller.
func New(source StatusSource, log *logger.Logger) *Poller {
	return &Poller{
		source: source,
		logger: log,
		sleep:  sleepContext,
	}
}

// PollUntilDone checks the job status up to opts.MaxAttempts times, sleeping
// opts.Interval between checks. On completed it fetches the latest assistant
// message exactly once; on failed it returns at once; otherwise it keeps
// polling and reports expired when the budget is exhausted.
//
// Cancelling ctx abandons the wait for this caller only. The poll itself keeps
// running for any other caller that joined it.
func (p *Poller) PollUntilDone(ctx context.Context, threadID, jobID string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// The shared poll outlives any one caller; MaxAttempts bounds it.
	detached := context.WithoutCancel(ctx)
	ch := p.group.DoChan(threadID+"/"+jobID, func() (any, error) {
		return p.poll(detached, threadID, jobID, opts)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			p.logger.Debug("joined in-flight poll",
				zap.String("thread_id", threadID),
				zap.String("job_id", jobID),
			)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (p *Poller) poll(ctx context.Context, threadID, jobID string, opts Options) (*Result, error) {
	log := p.logger.With(zap.String("thread_id", threadID), zap.String("job_id", jobID))

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		status, err := p.source.GetJobStatus(ctx, threadID, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to get job status: %w", err)
		}

		log.Debug("job status", zap.String("status", string(status)), zap.Int("attempt", attempt))

		switch status {
		case model.JobStatusCompleted:
			text, err := p.source.ListLatestAssistantMessage(ctx, threadID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch assistant message: %w", err)
			}
			metrics.RecordPoll(string(status), attempt)
			return &Result{Status: status, RawText: text, Attempts: attempt}, nil

		case model.JobStatusFailed:
			metrics.RecordPoll(string(status), attempt)
			log.Warn("job failed", zap.Int("attempt", attempt))
			return &Result{Status: status, Attempts: attempt}, nil
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}
	}

	metrics.RecordPoll(string(model.JobStatusExpired), opts.MaxAttempts)
	log.Info("poll budget exhausted", zap.Int("max_attempts", opts.MaxAttempts))
	return &Result{Status: model.JobStatusExpired, Attempts: opts.MaxAttempts}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
