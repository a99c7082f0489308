package attempt

import (
	"context"

	"github.com/olympiad/exam-portal/internal/model"
)

// ExamSource loads the exam and its ordered questions. Both are required to
// run an attempt; a failure here is fatal to the session.
type ExamSource interface {
	Exam(ctx context.Context, examID int64) (*model.Exam, error)
	Questions(ctx context.Context, examID int64) ([]model.QuestionForStudent, error)
}

// AnswerRecorder persists in-flight attempt data so an interrupted attempt can
// be resumed. Calls are best-effort; the session only logs failures.
type AnswerRecorder interface {
	RecordAnswer(ctx context.Context, examID int64, userID int, req *model.RecordAttemptRequest) error
	RecordProgress(ctx context.Context, examID int64, userID int, timeTaken int) error
}

// Transport delivers a submission. A confirmable transport returns the graded
// result; a best-effort transport may return nil, nil once the payload is handed off.
type Transport interface {
	Send(ctx context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error)
}
