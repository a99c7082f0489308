package attempt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/olympiad/exam-portal/internal/model"
)

var (
	errBackendDown = errors.New("backend down")
	testStart      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func testQuestions(n int) []model.QuestionForStudent {
	qs := make([]model.QuestionForStudent, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, model.QuestionForStudent{
			QuestionID: int64(i),
			ExamID:     7,
			Question:   "Question " + string(rune('0'+i)),
			Options:    []string{"A", "B", "C", "D"},
		})
	}
	return qs
}

type fakeExams struct {
	exam      *model.Exam
	questions []model.QuestionForStudent
	examErr   error
	qErr      error
}

func (f *fakeExams) Exam(_ context.Context, _ int64) (*model.Exam, error) {
	if f.examErr != nil {
		return nil, f.examErr
	}
	return f.exam, nil
}

func (f *fakeExams) Questions(_ context.Context, _ int64) ([]model.QuestionForStudent, error) {
	if f.qErr != nil {
		return nil, f.qErr
	}
	return f.questions, nil
}

type fakeResume struct {
	progress    *model.Progress
	rows        []model.AttemptRow
	progressErr error
	rowsErr     error
}

func (f *fakeResume) PriorProgress(_ context.Context, _ int64, _ int) (*model.Progress, error) {
	return f.progress, f.progressErr
}

func (f *fakeResume) PriorAttempts(_ context.Context, _ int64, _ int) ([]model.AttemptRow, error) {
	return f.rows, f.rowsErr
}

type fakeRecorder struct {
	mu       sync.Mutex
	answers  []model.RecordAttemptRequest
	progress []int
	err      error
}

func (f *fakeRecorder) RecordAnswer(_ context.Context, _ int64, _ int, req *model.RecordAttemptRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, *req)
	return f.err
}

func (f *fakeRecorder) RecordProgress(_ context.Context, _ int64, _ int, timeTaken int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, timeTaken)
	return f.err
}

func (f *fakeRecorder) progressCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.progress))
	copy(out, f.progress)
	return out
}

// fakeTransport records every payload. failures makes the first N sends fail.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []*model.SubmitAttemptRequest
	failures int
	sentCh   chan *model.SubmitAttemptRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sentCh: make(chan *model.SubmitAttemptRequest, 8)}
}

func (f *fakeTransport) Send(_ context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errBackendDown
	}
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	f.sentCh <- req
	return &model.SubmitResult{ResultID: "result-1", TotalQuestions: len(req.Answers)}, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) last() *model.SubmitAttemptRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// waitSent waits for a best-effort send dispatched on another goroutine.
func (f *fakeTransport) waitSent(timeout time.Duration) *model.SubmitAttemptRequest {
	select {
	case req := <-f.sentCh:
		return req
	case <-time.After(timeout):
		return nil
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
