package attempt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

type sessionFixture struct {
	clock    *ManualClock
	exams    *fakeExams
	resume   *fakeResume
	recorder *fakeRecorder
	submit   *fakeTransport
	beacon   *fakeTransport
	events   *eventLog
	session  *Session
}

func newSessionFixture(t *testing.T, durationMinutes int, checkpointEvery int) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		clock: NewManualClock(testStart),
		exams: &fakeExams{
			exam:      &model.Exam{ExamID: 7, Name: "Math Olympiad", Duration: durationMinutes, NumOfQues: 3},
			questions: testQuestions(3),
		},
		resume:   &fakeResume{},
		recorder: &fakeRecorder{},
		submit:   newFakeTransport(),
		beacon:   newFakeTransport(),
		events:   &eventLog{},
	}
	f.session = NewSession(7, Identity{UserID: 3, Token: func() string { return "tok" }}, Deps{
		Exams:           f.exams,
		Resume:          f.resume,
		Recorder:        f.recorder,
		Confirmed:       f.submit,
		BestEffort:      f.beacon,
		Clock:           f.clock,
		Scheduler:       f.clock,
		Log:             zerolog.Nop(),
		Listener:        f.events.listen,
		CheckpointEvery: checkpointEvery,
	})
	return f
}

func (f *sessionFixture) start(t *testing.T) {
	t.Helper()
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestSessionExpirySubmitsEnded(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.start(t)
	s := f.session

	f.clock.Advance(12 * time.Second)
	if _, err := s.Select("B"); err != nil {
		t.Fatal(err)
	}
	if out, err := s.SaveAndNext(context.Background()); err != nil || out != SaveRecorded {
		t.Fatalf("save: %v %v", out, err)
	}
	// Selected on question 2 but never saved.
	if _, err := s.Select("C"); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(30 * time.Minute)

	if f.submit.count() != 1 {
		t.Fatalf("expected one submission, got %d", f.submit.count())
	}
	req := f.submit.last()
	if req.SubmissionStatus != model.SubmissionEnded {
		t.Errorf("expected status ended, got %s", req.SubmissionStatus)
	}
	if req.TimeTaken != 1800 {
		t.Errorf("expected time_taken 1800, got %d", req.TimeTaken)
	}
	if len(req.Answers) != 1 {
		t.Fatalf("expected one answer, got %+v", req.Answers)
	}
	a := req.Answers[1]
	if a.SelectedOption != "B" || a.SavedAt == nil || *a.SavedAt != 12 || a.Question != "Question 1" {
		t.Errorf("unexpected answer %+v", a)
	}
	if req.ExamID != 7 || req.UserID != 3 {
		t.Errorf("unexpected identity in payload: %d/%d", req.ExamID, req.UserID)
	}

	if s.State() != StateSubmitted {
		t.Errorf("expected submitted, got %s", s.State())
	}
	if f.events.count(EventExpired) != 1 || f.events.count(EventSubmitted) != 1 {
		t.Errorf("expected one expired and one submitted event")
	}
	if len(f.recorder.answers) != 1 || *f.recorder.answers[0].SavedAt != 12 {
		t.Errorf("expected saved answer recorded, got %+v", f.recorder.answers)
	}
}

func TestSessionResume(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.resume.progress = &model.Progress{TimeTaken: 600}
	f.resume.rows = []model.AttemptRow{
		{QuestionID: 1, SelectedOption: "A", SavedAt: 240},
		{QuestionID: 42, SelectedOption: "B", SavedAt: 300},
	}
	f.start(t)
	s := f.session

	if s.Remaining() != 1200 {
		t.Fatalf("expected 1200 remaining, got %d", s.Remaining())
	}

	view, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	st := view.Status
	if !st.Answered || !st.Locked || st.SelectedOption != "A" {
		t.Fatalf("expected locked prior answer, got %+v", st)
	}

	applied, err := s.Select("D")
	if err != nil || applied {
		t.Fatalf("select on locked question must be ignored, got %v %v", applied, err)
	}
	out, err := s.SaveAndNext(context.Background())
	if err != nil || out != SaveSkippedLocked {
		t.Fatalf("expected locked skip, got %v %v", out, err)
	}
	if view, _ := s.Current(); view.Index != 1 {
		t.Fatalf("locked save must advance, at %d", view.Index)
	}

	f.clock.Advance(5 * time.Second)
	_, _ = s.Select("C")
	_, _ = s.SaveAndNext(context.Background())

	res, err := s.Finish(context.Background())
	if err != nil || res == nil {
		t.Fatalf("finish: %v", err)
	}
	req := f.submit.last()
	if req.SubmissionStatus != model.SubmissionSubmitted {
		t.Errorf("expected submitted, got %s", req.SubmissionStatus)
	}
	if req.TimeTaken != 605 {
		t.Errorf("expected time_taken 605, got %d", req.TimeTaken)
	}
	if got := *req.Answers[2].SavedAt; got != 605 {
		t.Errorf("expected savedAt 605, got %d", got)
	}
	if req.Answers[1].SelectedOption != "A" {
		t.Errorf("locked answer must be submitted unchanged, got %+v", req.Answers[1])
	}
}

func TestSessionResumeFailureStartsFresh(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.resume.progressErr = errBackendDown
	f.resume.rows = []model.AttemptRow{{QuestionID: 1, SelectedOption: "A", SavedAt: 1}}
	f.start(t)

	snap := f.session.Snapshot()
	if snap.Remaining != 1800 || snap.State != StateActive {
		t.Fatalf("expected fresh active attempt, got remaining=%d state=%s", snap.Remaining, snap.State)
	}
	if snap.Counts.Locked != 0 || snap.Counts.Answered != 0 {
		t.Fatalf("expected empty tracker, got %+v", snap.Counts)
	}
}

func TestSessionResumeWithNoTimeLeftSubmitsImmediately(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.resume.progress = &model.Progress{TimeTaken: 1800}
	f.start(t)

	if f.submit.count() != 1 || f.submit.last().SubmissionStatus != model.SubmissionEnded {
		t.Fatalf("expected immediate ended submission")
	}
	if f.session.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", f.session.State())
	}
}

func TestSessionLoadFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeExams)
	}{
		{name: "exam", setup: func(e *fakeExams) { e.examErr = errBackendDown }},
		{name: "questions", setup: func(e *fakeExams) { e.qErr = errBackendDown }},
		{name: "empty", setup: func(e *fakeExams) { e.questions = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t, 30, 0)
			tt.setup(f.exams)

			err := f.session.Start(context.Background())
			if !errors.Is(err, ErrLoadFailed) {
				t.Fatalf("expected ErrLoadFailed, got %v", err)
			}
			if f.clock.Pending() != 0 {
				t.Fatal("timer must not start when load fails")
			}
			if _, err := f.session.Current(); !errors.Is(err, ErrNotActive) {
				t.Fatalf("expected ErrNotActive, got %v", err)
			}
		})
	}
}

func TestSessionSaveWithoutSelection(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.start(t)
	s := f.session

	if _, err := s.SaveAndNext(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	view, _ := s.Current()
	if view.Index != 0 || view.Status.Answered {
		t.Fatalf("failed save must not advance or answer, got %+v", view)
	}
	if _, err := s.Select("Z"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestSessionNavigation(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.start(t)
	s := f.session

	if v, _ := s.Prev(); v.Index != 0 {
		t.Fatalf("prev at start must stay, got %d", v.Index)
	}
	if v, _ := s.Jump(2); v.Index != 2 || v.Question.QuestionID != 3 {
		t.Fatalf("unexpected jump result %+v", v)
	}
	if v, _ := s.Next(); v.Index != 2 {
		t.Fatalf("next at end must stay, got %d", v.Index)
	}
	if _, err := s.Jump(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	marked, err := s.ToggleReview()
	if err != nil || !marked {
		t.Fatalf("toggle review: %v %v", marked, err)
	}
	if snap := s.Snapshot(); snap.Counts.Marked != 1 || snap.Index != 2 {
		t.Fatalf("unexpected snapshot %+v", snap.Counts)
	}
}

func TestSessionFinishAndExpiryRace(t *testing.T) {
	f := newSessionFixture(t, 1, 0)
	f.start(t)
	s := f.session

	f.clock.Advance(60 * time.Second)
	if _, err := s.Finish(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if f.submit.count() != 1 {
		t.Fatalf("expected exactly one submission, got %d", f.submit.count())
	}
}

func TestSessionFinishFailureIsRetryable(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.submit.failures = 1
	f.start(t)
	s := f.session

	_, _ = s.Select("A")
	_, _ = s.SaveAndNext(context.Background())

	if _, err := s.Finish(context.Background()); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("expected attempt to stay active, got %s", s.State())
	}
	if f.events.count(EventSubmitFailed) != 1 {
		t.Fatal("expected a submit_failed event")
	}
	if snap := s.Snapshot(); snap.Counts.Answered != 1 {
		t.Fatal("local answers must be preserved after a failed submit")
	}

	if _, err := s.Finish(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(f.submit.last().Answers) != 1 {
		t.Fatal("retry must carry the preserved answers")
	}
}

func TestSessionRetryAfterExpiryIsEnded(t *testing.T) {
	f := newSessionFixture(t, 1, 0)
	f.submit.failures = 1
	f.start(t)
	s := f.session

	f.clock.Advance(time.Minute)
	if f.submit.count() != 0 {
		t.Fatal("expiry submission should have failed")
	}
	if _, err := s.Select("A"); !errors.Is(err, ErrTimeUp) {
		t.Fatalf("expected ErrTimeUp, got %v", err)
	}

	if _, err := s.Finish(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := f.submit.last().SubmissionStatus; got != model.SubmissionEnded {
		t.Fatalf("expected ended, got %s", got)
	}
}

func TestSessionUnload(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.start(t)
	s := f.session

	_, _ = s.Select("D")
	_, _ = s.SaveAndNext(context.Background())
	f.clock.Advance(90 * time.Second)

	if err := s.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	req := f.beacon.waitSent(time.Second)
	if req == nil {
		t.Fatal("expected a best-effort submission")
	}
	if req.SubmissionStatus != model.SubmissionEnded || req.TimeTaken != 90 || len(req.Answers) != 1 {
		t.Fatalf("unexpected payload %+v", req)
	}
	if f.submit.count() != 0 {
		t.Fatal("unload must not use the confirmable transport")
	}
	if f.clock.Pending() != 0 {
		t.Fatal("unload must stop the timer")
	}

	f.clock.Advance(time.Hour)
	if f.submit.count() != 0 || f.beacon.count() != 1 {
		t.Fatal("no submission may follow an unload")
	}
}

func TestSessionCloseDoesNotSubmit(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.start(t)
	f.clock.Advance(45 * time.Second)

	f.session.Close()
	f.clock.Advance(time.Hour)

	if f.submit.count() != 0 || f.beacon.count() != 0 {
		t.Fatal("close must not submit")
	}
	if f.clock.Pending() != 0 {
		t.Fatal("close must stop the timer")
	}
	if got := f.recorder.progressCalls(); len(got) != 1 || got[0] != 45 {
		t.Fatalf("expected a final checkpoint at 45s, got %v", got)
	}
	if _, err := f.session.Finish(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after close, got %v", err)
	}
}

func TestSessionCheckpoints(t *testing.T) {
	f := newSessionFixture(t, 30, 30)
	f.resume.progress = &model.Progress{TimeTaken: 100}
	f.start(t)

	f.clock.Advance(95 * time.Second)
	f.session.Close()

	got := f.recorder.progressCalls()
	want := []int{130, 160, 190, 195}
	if len(got) != len(want) {
		t.Fatalf("expected checkpoints %v, got %v", want, got)
	}
	seen := map[int]bool{}
	for _, v := range got {
		seen[v] = true
	}
	for _, v := range want {
		if !seen[v] {
			t.Fatalf("expected checkpoints %v, got %v", want, got)
		}
	}
}

func TestSessionUnloadDispatchesBeforeReturning(t *testing.T) {
	f := newSessionFixture(t, 30, 0)
	f.start(t)
	f.clock.Advance(20 * time.Second)

	if err := f.session.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	// A quitting caller may exit right after Unload.
	if got := f.beacon.count(); got != 1 {
		t.Fatalf("expected the beacon to be handed off by Unload, got %d sends", got)
	}
}

func TestSessionStartRequiresTransport(t *testing.T) {
	s := NewSession(7, Identity{UserID: 3}, Deps{
		Exams: &fakeExams{
			exam:      &model.Exam{ExamID: 7, Name: "Math Olympiad", Duration: 30, NumOfQues: 3},
			questions: testQuestions(3),
		},
		Log: zerolog.Nop(),
	})

	if err := s.Start(context.Background()); !errors.Is(err, ErrMissingDeps) {
		t.Fatalf("expected ErrMissingDeps, got %v", err)
	}
	if got := s.Snapshot().State; got != StateClosed {
		t.Fatalf("expected closed, got %s", got)
	}
	if _, err := s.Finish(context.Background()); err == nil {
		t.Fatal("finish on a rejected session must fail")
	}
}
