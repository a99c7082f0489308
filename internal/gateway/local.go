package gateway

import (
	"context"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/service"
)

// Local serves an attempt session from the in-process services. It is what
// server-hosted sessions use instead of going over HTTP to themselves.
type Local struct {
	exams    *service.ExamService
	attempts *service.AttemptService
}

// NewLocal creates a Local adapter.
func NewLocal(exams *service.ExamService, attempts *service.AttemptService) *Local {
	return &Local{exams: exams, attempts: attempts}
}

// Exam returns exam metadata.
func (l *Local) Exam(ctx context.Context, examID int64) (*model.Exam, error) {
	return l.exams.GetExam(ctx, examID)
}

// Questions returns the ordered student-facing questions.
func (l *Local) Questions(ctx context.Context, examID int64) ([]model.QuestionForStudent, error) {
	return l.exams.GetQuestions(ctx, examID)
}

// PriorProgress returns the last checkpoint, or nil when there is none.
func (l *Local) PriorProgress(ctx context.Context, examID int64, userID int) (*model.Progress, error) {
	return l.attempts.PriorProgress(ctx, examID, userID)
}

// PriorAttempts returns the answers saved by an earlier connection.
func (l *Local) PriorAttempts(ctx context.Context, examID int64, userID int) ([]model.AttemptRow, error) {
	return l.attempts.PriorAttempts(ctx, examID, userID)
}

// RecordAnswer saves one answer.
func (l *Local) RecordAnswer(ctx context.Context, examID int64, userID int, req *model.RecordAttemptRequest) error {
	return l.attempts.RecordAnswer(ctx, examID, userID, req)
}

// RecordProgress checkpoints elapsed seconds.
func (l *Local) RecordProgress(ctx context.Context, examID int64, userID, timeTaken int) error {
	return l.attempts.RecordProgress(ctx, examID, userID, timeTaken)
}

// Submit returns the confirmable transport.
func (l *Local) Submit() *LocalSubmit { return &LocalSubmit{attempts: l.attempts} }

// Beacon returns the best-effort transport.
func (l *Local) Beacon() *LocalBeacon { return &LocalBeacon{attempts: l.attempts} }

// LocalSubmit grades synchronously and returns the result.
type LocalSubmit struct {
	attempts *service.AttemptService
}

// Send submits and waits for the graded result.
func (t *LocalSubmit) Send(ctx context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	return t.attempts.Submit(ctx, req)
}

// LocalBeacon hands the submission to the service's background pool.
type LocalBeacon struct {
	attempts *service.AttemptService
}

// Send never reports an outcome.
func (t *LocalBeacon) Send(_ context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	t.attempts.SubmitAsync(req)
	return nil, nil
}
