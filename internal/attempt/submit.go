package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

// ErrAlreadySubmitted is returned to every trigger after the first one wins.
var ErrAlreadySubmitted = errors.New("attempt already submitted")

// Trigger identifies what caused a submission.
type Trigger string

const (
	TriggerFinish Trigger = "finish"
	TriggerExpiry Trigger = "expiry"
	TriggerUnload Trigger = "unload"
)

// Status maps a trigger to the submission status it produces.
func (t Trigger) Status() model.SubmissionStatus {
	if t == TriggerFinish {
		return model.SubmissionSubmitted
	}
	return model.SubmissionEnded
}

// Coordinator guarantees at most one successful submission per attempt.
// The first trigger latches; confirmable sends that fail release the latch so the
// student can retry, best-effort sends never do.
type Coordinator struct {
	confirmed  Transport
	bestEffort Transport
	log        zerolog.Logger

	mu        sync.Mutex
	latched   bool
	succeeded bool
	result    *model.SubmitResult
}

// NewCoordinator creates a Coordinator. bestEffort is used for TriggerUnload;
// when nil, unload submissions fall back to confirmed without waiting on it.
func NewCoordinator(confirmed, bestEffort Transport, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		confirmed:  confirmed,
		bestEffort: bestEffort,
		log:        log.With().Str("component", "submission_coordinator").Logger(),
	}
}

// Submit latches and sends the payload produced by build. build runs only for
// the winning trigger, after the latch is taken.
func (c *Coordinator) Submit(ctx context.Context, trigger Trigger, build func(Trigger) *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	c.mu.Lock()
	if c.latched {
		c.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	c.latched = true
	c.mu.Unlock()

	req := build(trigger)
	log := c.log.With().
		Str("trigger", string(trigger)).
		Int64("exam_id", req.ExamID).
		Int("user_id", req.UserID).
		Logger()

	if trigger == TriggerUnload {
		c.sendBestEffort(req, log)
		return nil, nil
	}

	res, err := c.confirmed.Send(ctx, req)
	if err != nil {
		c.mu.Lock()
		c.latched = false
		c.mu.Unlock()
		log.Error().Err(err).Msg("Submission failed, retry allowed")
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	c.mu.Lock()
	c.succeeded = true
	c.result = res
	c.mu.Unlock()

	log.Info().
		Int("answers", len(req.Answers)).
		Int("time_taken", req.TimeTaken).
		Str("status", string(req.SubmissionStatus)).
		Msg("Attempt submitted")
	return res, nil
}

// sendBestEffort hands the payload off without waiting for an outcome.
// Failures are unobservable here and are not retried. A best-effort transport
// must not block, so it is called inline and has registered its work before
// Unload returns.
func (c *Coordinator) sendBestEffort(req *model.SubmitAttemptRequest, log zerolog.Logger) {
	if c.bestEffort != nil {
		if _, err := c.bestEffort.Send(context.Background(), req); err != nil {
			log.Warn().Err(err).Msg("Best-effort submission failed")
		}
	} else {
		t := c.confirmed
		go func() {
			if _, err := t.Send(context.Background(), req); err != nil {
				log.Warn().Err(err).Msg("Best-effort submission failed")
			}
		}()
	}
	log.Info().Int("answers", len(req.Answers)).Msg("Best-effort submission dispatched")
}

// Latched reports whether a submission is in flight or done.
func (c *Coordinator) Latched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latched
}

// Result returns the confirmed result, if a confirmable submission succeeded.
func (c *Coordinator) Result() (*model.SubmitResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.succeeded
}
