package attempt

import (
	"context"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ResumeSource fetches what an earlier, interrupted attempt left behind.
// PriorProgress returns nil, nil when the student has no recorded progress.
type ResumeSource interface {
	PriorProgress(ctx context.Context, examID int64, userID int) (*model.Progress, error)
	PriorAttempts(ctx context.Context, examID int64, userID int) ([]model.AttemptRow, error)
}

// ResumeState is what the loader hands to the session.
type ResumeState struct {
	RemainingSeconds int
	PriorElapsed     int
	Rows             []model.AttemptRow
	// Fallback is true when resume data could not be fetched and the attempt starts fresh.
	Fallback bool
}

// ResumeLoader reconstructs an interrupted attempt. It never fails: a resume is a
// convenience, so any fetch error yields a fresh attempt and is only logged.
type ResumeLoader struct {
	src ResumeSource
	log zerolog.Logger
}

// NewResumeLoader creates a ResumeLoader. A nil source always yields a fresh attempt.
func NewResumeLoader(src ResumeSource, log zerolog.Logger) *ResumeLoader {
	return &ResumeLoader{
		src: src,
		log: log.With().Str("component", "resume_loader").Logger(),
	}
}

// Load fetches prior progress and saved answers concurrently and computes the
// remaining time against durationSeconds.
func (l *ResumeLoader) Load(ctx context.Context, examID int64, userID int, durationSeconds int) ResumeState {
	fresh := ResumeState{RemainingSeconds: clampNonNegative(durationSeconds)}
	if l.src == nil {
		return fresh
	}

	var (
		progress *model.Progress
		rows     []model.AttemptRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := l.src.PriorProgress(gctx, examID, userID)
		progress = p
		return err
	})
	g.Go(func() error {
		r, err := l.src.PriorAttempts(gctx, examID, userID)
		rows = r
		return err
	})

	if err := g.Wait(); err != nil {
		l.log.Warn().Err(err).
			Int64("exam_id", examID).
			Int("user_id", userID).
			Msg("Resume data unavailable, starting fresh attempt")
		fresh.Fallback = true
		return fresh
	}

	prior := 0
	if progress != nil {
		prior = clampNonNegative(progress.TimeTaken)
	}

	state := ResumeState{
		RemainingSeconds: clampNonNegative(durationSeconds - prior),
		PriorElapsed:     prior,
		Rows:             rows,
	}

	if prior > 0 || len(rows) > 0 {
		l.log.Info().
			Int64("exam_id", examID).
			Int("user_id", userID).
			Int("prior_elapsed", prior).
			Int("saved_answers", len(rows)).
			Msg("Resuming attempt")
	}
	return state
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
