package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

var (
	// ErrLoadFailed means the exam or its questions could not be loaded.
	// The caller should send the student back to the exam landing page.
	ErrLoadFailed = errors.New("exam could not be loaded")
	// ErrUnknownOption is returned when selecting a string that is not one of the question's options.
	ErrUnknownOption = errors.New("option not offered by question")
	// ErrNotActive is returned for interactions outside the active phase.
	ErrNotActive = errors.New("attempt is not active")
	// ErrTimeUp is returned for answer changes after the countdown expired.
	ErrTimeUp = errors.New("exam time is up")
	// ErrIndexOutOfRange is returned by Jump for an index outside the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrMissingDeps is returned by Start when Exams or Confirmed is nil.
	ErrMissingDeps = errors.New("session needs an exam source and a submission transport")
)

const defaultSubmitTimeout = 30 * time.Second

// Identity is the explicit session context of the student taking the exam.
type Identity struct {
	UserID int
	Token  func() string
}

// SessionState is the lifecycle phase of a Session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateLoading    SessionState = "loading"
	StateActive     SessionState = "active"
	StateSubmitting SessionState = "submitting"
	StateSubmitted  SessionState = "submitted"
	StateClosed     SessionState = "closed"
)

// EventKind names a Listener notification.
type EventKind string

const (
	EventTick         EventKind = "tick"
	EventExpired      EventKind = "expired"
	EventSubmitted    EventKind = "submitted"
	EventSubmitFailed EventKind = "submit_failed"
)

// Event is delivered to the Listener outside the session lock.
type Event struct {
	Kind      EventKind
	Remaining int
	Trigger   Trigger
	Result    *model.SubmitResult
	Err       error
}

// Listener receives session events. It may be called from the timer goroutine.
type Listener func(Event)

// Deps are the collaborators of a Session. Exams and Confirmed are required;
// a nil BestEffort sends unload submissions through Confirmed.
type Deps struct {
	Exams      ExamSource
	Resume     ResumeSource
	Recorder   AnswerRecorder
	Confirmed  Transport
	BestEffort Transport

	Clock     Clock
	Scheduler Scheduler
	Log       zerolog.Logger
	Listener  Listener

	// CheckpointEvery is the progress checkpoint interval in seconds. 0 disables it.
	CheckpointEvery int
	SubmitTimeout   time.Duration
}

// SaveOutcome tells the caller what SaveAndNext did.
type SaveOutcome string

const (
	SaveRecorded      SaveOutcome = "saved"
	SaveSkippedLocked SaveOutcome = "locked"
)

// QuestionView is the question under the cursor.
type QuestionView struct {
	Index    int                      `json:"index"`
	Total    int                      `json:"total"`
	Question model.QuestionForStudent `json:"question"`
	Status   QuestionStatus           `json:"status"`
}

// Snapshot is a point-in-time copy of the session, safe to render.
type Snapshot struct {
	ExamID     int64                      `json:"exam_id"`
	ExamName   string                     `json:"exam_name"`
	State      SessionState               `json:"state"`
	TimerState TimerState                 `json:"timer_state"`
	Index      int                        `json:"index"`
	Remaining  int                        `json:"remaining"`
	Total      int                        `json:"total"`
	Questions  []model.QuestionForStudent `json:"questions"`
	Entries    []Entry                    `json:"entries"`
	Counts     Counts                     `json:"counts"`
	Resumed    bool                       `json:"resumed"`
	Result     *model.SubmitResult        `json:"result,omitempty"`
}

// Session is one student's attempt at one exam. It owns the tracker, the
// countdown and the submission latch, and is discarded after submission.
type Session struct {
	identity Identity
	examID   int64
	deps     Deps
	log      zerolog.Logger

	countdown   *Countdown
	coordinator *Coordinator
	loader      *ResumeLoader

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu             sync.Mutex
	state          SessionState
	exam           *model.Exam
	questions      []model.QuestionForStudent
	byID           map[int64]int
	tracker        *Tracker
	index          int
	total          int
	resumed        bool
	lastCheckpoint int
	result         *model.SubmitResult
}

// NewSession creates an idle session for examID. Missing clock and scheduler
// default to the wall clock.
func NewSession(examID int64, identity Identity, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = TickerScheduler{}
	}
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = defaultSubmitTimeout
	}

	log := deps.Log.With().
		Str("component", "attempt_session").
		Int64("exam_id", examID).
		Int("user_id", identity.UserID).
		Logger()

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		identity:    identity,
		examID:      examID,
		deps:        deps,
		log:         log,
		countdown:   NewCountdown(deps.Clock, deps.Scheduler),
		coordinator: NewCoordinator(deps.Confirmed, deps.BestEffort, deps.Log),
		loader:      NewResumeLoader(deps.Resume, deps.Log),
		bgCtx:       bgCtx,
		bgCancel:    cancel,
		state:       StateIdle,
		tracker:     &Tracker{},
	}
}

// Start loads the exam, applies any resume data and starts the countdown.
// Seeding is complete before Start returns.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.deps.Exams == nil || s.deps.Confirmed == nil {
		s.state = StateClosed
		s.mu.Unlock()
		return ErrMissingDeps
	}
	s.state = StateLoading
	s.mu.Unlock()

	exam, questions, err := s.load(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("Failed to load exam")
		return err
	}

	total := exam.DurationSeconds()
	resume := s.loader.Load(ctx, s.examID, s.identity.UserID, total)

	s.mu.Lock()
	if s.state != StateLoading {
		// Closed while loading.
		s.mu.Unlock()
		return ErrNotActive
	}
	s.exam = exam
	s.questions = questions
	s.byID = make(map[int64]int, len(questions))
	for i, q := range questions {
		if _, dup := s.byID[q.QuestionID]; !dup {
			s.byID[q.QuestionID] = i
		}
	}
	s.tracker.Initialize(questions)
	if dropped := s.tracker.SeedFromPriorAttempt(resume.Rows); len(dropped) > 0 {
		s.log.Warn().Ints64("question_ids", dropped).Msg("Ignored saved answers for questions no longer in exam")
	}
	s.total = total
	s.resumed = resume.PriorElapsed > 0 || len(resume.Rows) > 0
	s.lastCheckpoint = resume.PriorElapsed
	s.index = 0
	s.state = StateActive
	resumed := s.resumed
	s.mu.Unlock()

	s.log.Info().
		Int("questions", len(questions)).
		Int("remaining", resume.RemainingSeconds).
		Bool("resumed", resumed).
		Bool("fallback", resume.Fallback).
		Msg("Attempt started")

	s.countdown.Start(resume.RemainingSeconds, s.onTick, s.onExpire)
	return nil
}

func (s *Session) load(ctx context.Context) (*model.Exam, []model.QuestionForStudent, error) {
	exam, err := s.deps.Exams.Exam(ctx, s.examID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: exam: %w", ErrLoadFailed, err)
	}
	questions, err := s.deps.Exams.Questions(ctx, s.examID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: questions: %w", ErrLoadFailed, err)
	}
	if len(questions) == 0 {
		return nil, nil, fmt.Errorf("%w: exam has no questions", ErrLoadFailed)
	}
	return exam, questions, nil
}

// Current returns the question under the cursor.
func (s *Session) Current() (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded() {
		return QuestionView{}, ErrNotActive
	}
	return s.viewLocked(), nil
}

// Next moves to the following question. It stays on the last one.
func (s *Session) Next() (QuestionView, error) {
	return s.move(func(i int) int { return i + 1 })
}

// Prev moves to the preceding question. It stays on the first one.
func (s *Session) Prev() (QuestionView, error) {
	return s.move(func(i int) int { return i - 1 })
}

// Jump moves to the question at index.
func (s *Session) Jump(index int) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded() {
		return QuestionView{}, ErrNotActive
	}
	if index < 0 || index >= len(s.questions) {
		return QuestionView{}, ErrIndexOutOfRange
	}
	s.index = index
	return s.viewLocked(), nil
}

func (s *Session) move(step func(int) int) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded() {
		return QuestionView{}, ErrNotActive
	}
	next := step(s.index)
	if next >= 0 && next < len(s.questions) {
		s.index = next
	}
	return s.viewLocked(), nil
}

// Select sets the selected option on the current question. Selecting on a
// locked question is ignored and reported as applied=false.
func (s *Session) Select(option string) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return false, err
	}
	q := s.questions[s.index]
	if !q.HasOption(option) {
		return false, ErrUnknownOption
	}
	return s.tracker.SelectOption(q.QuestionID, option)
}

// SaveAndNext saves the current selection and advances. ErrNoSelection keeps
// the cursor in place; a locked question advances without saving.
func (s *Session) SaveAndNext(ctx context.Context) (SaveOutcome, error) {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	q := s.questions[s.index]
	elapsed := s.elapsedLocked()

	err := s.tracker.SaveCurrent(q.QuestionID, elapsed)
	switch {
	case errors.Is(err, ErrAlreadyLocked):
		s.advanceLocked()
		s.mu.Unlock()
		return SaveSkippedLocked, nil
	case err != nil:
		s.mu.Unlock()
		return "", err
	}

	st, _ := s.tracker.Status(q.QuestionID)
	s.advanceLocked()
	s.mu.Unlock()

	s.recordAnswer(ctx, &model.RecordAttemptRequest{
		QuestionID:     q.QuestionID,
		SelectedOption: st.SelectedOption,
		SavedAt:        st.SavedAt,
	})
	return SaveRecorded, nil
}

// ToggleReview flips the review mark on the current question.
func (s *Session) ToggleReview() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded() || s.state != StateActive {
		return false, ErrNotActive
	}
	return s.tracker.ToggleReview(s.questions[s.index].QuestionID)
}

// Finish submits the attempt at the student's request. On failure the
// attempt stays active and Finish may be called again.
func (s *Session) Finish(ctx context.Context) (*model.SubmitResult, error) {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateSubmitting {
		st := s.state
		s.mu.Unlock()
		if st == StateSubmitted {
			return nil, ErrAlreadySubmitted
		}
		return nil, ErrNotActive
	}
	s.mu.Unlock()
	return s.submit(ctx, TriggerFinish)
}

// Unload is the page-close path: it hands the attempt to the best-effort
// transport and tears the session down without waiting for an outcome.
func (s *Session) Unload() error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	var err error
	switch st {
	case StateActive, StateSubmitting:
		_, err = s.coordinator.Submit(context.Background(), TriggerUnload, s.buildPayload)
		if err == nil {
			s.log.Info().Msg("Attempt handed to best-effort transport on unload")
		}
	case StateSubmitted:
		err = ErrAlreadySubmitted
	default:
		err = ErrNotActive
	}

	s.teardown(false)
	return err
}

// Close tears the session down without submitting. Elapsed time is
// checkpointed so a later resume is charged for it.
func (s *Session) Close() {
	s.teardown(true)
}

func (s *Session) teardown(checkpoint bool) {
	s.countdown.Stop()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	elapsed := s.elapsedLocked()
	s.state = StateClosed
	s.mu.Unlock()

	if checkpoint && wasActive {
		s.checkpoint(elapsed)
	}
	s.bgCancel()
	s.bg.Wait()
}

// Snapshot returns a copy of the session for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs := make([]model.QuestionForStudent, len(s.questions))
	copy(qs, s.questions)

	snap := Snapshot{
		ExamID:     s.examID,
		State:      s.state,
		TimerState: s.countdown.State(),
		Index:      s.index,
		Remaining:  s.remainingLocked(),
		Total:      s.total,
		Questions:  qs,
		Entries:    s.tracker.Entries(),
		Counts:     s.tracker.Counts(),
		Resumed:    s.resumed,
		Result:     s.result,
	}
	if s.exam != nil {
		snap.ExamName = s.exam.Name
	}
	return snap
}

// State returns the lifecycle phase.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the remaining seconds on the countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

// ─── Timer callbacks ───

func (s *Session) onTick(remaining int) {
	s.mu.Lock()
	elapsed := s.total - remaining
	doCheckpoint := false
	if s.deps.CheckpointEvery > 0 && s.state == StateActive && remaining > 0 &&
		elapsed-s.lastCheckpoint >= s.deps.CheckpointEvery {
		s.lastCheckpoint = elapsed
		doCheckpoint = true
	}
	s.mu.Unlock()

	if doCheckpoint {
		s.goBackground(func(ctx context.Context) { s.checkpointCtx(ctx, elapsed) })
	}
	s.emit(Event{Kind: EventTick, Remaining: remaining})
}

func (s *Session) onExpire() {
	s.log.Info().Msg("Time is up, submitting attempt")
	s.emit(Event{Kind: EventExpired})

	ctx, cancel := context.WithTimeout(s.bgCtx, s.deps.SubmitTimeout)
	defer cancel()
	if _, err := s.submit(ctx, TriggerExpiry); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		s.log.Error().Err(err).Msg("Auto-submit on expiry failed")
	}
}

// ─── Submission ───

func (s *Session) submit(ctx context.Context, trigger Trigger) (*model.SubmitResult, error) {
	res, err := s.coordinator.Submit(ctx, trigger, s.buildPayload)
	if errors.Is(err, ErrAlreadySubmitted) {
		return nil, err
	}
	if err != nil {
		s.mu.Lock()
		if s.state == StateSubmitting {
			s.state = StateActive
		}
		s.mu.Unlock()
		s.emit(Event{Kind: EventSubmitFailed, Trigger: trigger, Err: err})
		return nil, err
	}

	s.countdown.Stop()
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.state = StateSubmitted
	}
	s.result = res
	s.mu.Unlock()

	s.emit(Event{Kind: EventSubmitted, Trigger: trigger, Result: res})
	return res, nil
}

// buildPayload runs once the coordinator latch is held. A retry after the
// countdown expired is still an involuntary submission.
func (s *Session) buildPayload(trigger Trigger) *model.SubmitAttemptRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := trigger.Status()
	if s.countdown.Expired() {
		status = model.SubmissionEnded
	}
	if s.state == StateActive {
		s.state = StateSubmitting
	}

	return &model.SubmitAttemptRequest{
		ExamID:           s.examID,
		UserID:           s.identity.UserID,
		Answers:          s.tracker.Answers(s.questionText),
		TimeTaken:        s.elapsedLocked(),
		SubmissionStatus: status,
	}
}

// ─── Recording ───

func (s *Session) recordAnswer(ctx context.Context, req *model.RecordAttemptRequest) {
	if s.deps.Recorder == nil {
		return
	}
	if err := s.deps.Recorder.RecordAnswer(ctx, s.examID, s.identity.UserID, req); err != nil {
		s.log.Warn().Err(err).Int64("question_id", req.QuestionID).Msg("Failed to record answer")
	}
}

func (s *Session) checkpoint(elapsed int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.SubmitTimeout)
	defer cancel()
	s.checkpointCtx(ctx, elapsed)
}

func (s *Session) checkpointCtx(ctx context.Context, elapsed int) {
	if s.deps.Recorder == nil {
		return
	}
	if err := s.deps.Recorder.RecordProgress(ctx, s.examID, s.identity.UserID, elapsed); err != nil {
		s.log.Warn().Err(err).Int("time_taken", elapsed).Msg("Failed to checkpoint progress")
	}
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, s.deps.SubmitTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// ─── Helpers (callers hold mu) ───

func (s *Session) loaded() bool {
	return len(s.questions) > 0 && s.state != StateIdle && s.state != StateLoading
}

func (s *Session) mutableLocked() error {
	if !s.loaded() || s.state != StateActive {
		return ErrNotActive
	}
	if s.countdown.Expired() {
		return ErrTimeUp
	}
	return nil
}

func (s *Session) advanceLocked() {
	if s.index < len(s.questions)-1 {
		s.index++
	}
}

func (s *Session) remainingLocked() int {
	if s.state == StateIdle || s.state == StateLoading {
		return s.total
	}
	return s.countdown.Remaining()
}

// elapsedLocked is seconds used so far, including time from a prior attempt.
func (s *Session) elapsedLocked() int {
	return clampNonNegative(s.total - s.remainingLocked())
}

func (s *Session) questionText(id int64) string {
	if i, ok := s.byID[id]; ok {
		return s.questions[i].Question
	}
	return ""
}

func (s *Session) viewLocked() QuestionView {
	q := s.questions[s.index]
	st, _ := s.tracker.Status(q.QuestionID)
	return QuestionView{Index: s.index, Total: len(s.questions), Question: q, Status: st}
}

func (s *Session) emit(e Event) {
	if s.deps.Listener != nil {
		s.deps.Listener(e)
	}
}
