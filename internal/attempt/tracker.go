package attempt

import (
	"errors"

	"github.com/olympiad/exam-portal/internal/model"
)

var (
	// ErrNoSelection is returned when saving a question with no selected option.
	ErrNoSelection = errors.New("no option selected")
	// ErrAlreadyLocked is returned when saving a question answered in a prior attempt.
	// Callers treat it as "move on", not as a failure.
	ErrAlreadyLocked = errors.New("question locked by prior attempt")
	// ErrUnknownQuestion is returned for question ids outside the loaded exam.
	ErrUnknownQuestion = errors.New("unknown question")
)

// QuestionStatus is the per-question state of an attempt.
// SelectedOption holds the option text; empty means nothing is selected.
type QuestionStatus struct {
	Answered        bool   `json:"answered"`
	MarkedForReview bool   `json:"marked_for_review"`
	SelectedOption  string `json:"selected_option,omitempty"`
	SavedAt         *int   `json:"saved_at,omitempty"`
	Locked          bool   `json:"locked"`
}

// Entry pairs a question id with its status.
type Entry struct {
	QuestionID int64          `json:"question_id"`
	Status     QuestionStatus `json:"status"`
}

// Counts summarises the tracker for the question palette.
type Counts struct {
	Answered   int `json:"answered"`
	Marked     int `json:"marked"`
	Locked     int `json:"locked"`
	Unanswered int `json:"unanswered"`
}

// Tracker holds the status of every question in an attempt and enforces the
// lock invariant: a locked question's answer never changes.
//
// Tracker is not safe for concurrent use; Session serialises access.
type Tracker struct {
	order    []int64
	statuses map[int64]*QuestionStatus
}

// NewTracker creates a tracker with one default entry per question.
func NewTracker(questions []model.QuestionForStudent) *Tracker {
	t := &Tracker{}
	t.Initialize(questions)
	return t
}

// Initialize resets the tracker to one default entry per question.
func (t *Tracker) Initialize(questions []model.QuestionForStudent) {
	t.order = make([]int64, 0, len(questions))
	t.statuses = make(map[int64]*QuestionStatus, len(questions))
	for _, q := range questions {
		if _, dup := t.statuses[q.QuestionID]; dup {
			continue
		}
		t.order = append(t.order, q.QuestionID)
		t.statuses[q.QuestionID] = &QuestionStatus{}
	}
}

// SelectOption sets the selected option. It is ignored for locked questions and
// reports whether the selection was applied.
func (t *Tracker) SelectOption(questionID int64, option string) (bool, error) {
	st, ok := t.statuses[questionID]
	if !ok {
		return false, ErrUnknownQuestion
	}
	if st.Locked {
		return false, nil
	}
	st.SelectedOption = option
	return true, nil
}

// SaveCurrent marks the question answered at elapsedSeconds.
func (t *Tracker) SaveCurrent(questionID int64, elapsedSeconds int) error {
	st, ok := t.statuses[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if st.Locked {
		return ErrAlreadyLocked
	}
	if st.SelectedOption == "" {
		return ErrNoSelection
	}
	saved := elapsedSeconds
	st.Answered = true
	st.MarkedForReview = false
	st.SavedAt = &saved
	return nil
}

// ToggleReview flips the review mark. Locked questions may be marked too.
func (t *Tracker) ToggleReview(questionID int64) (bool, error) {
	st, ok := t.statuses[questionID]
	if !ok {
		return false, ErrUnknownQuestion
	}
	st.MarkedForReview = !st.MarkedForReview
	return st.MarkedForReview, nil
}

// SeedFromPriorAttempt locks in answers saved by an earlier attempt. Rows for
// questions no longer in the exam are skipped and returned.
func (t *Tracker) SeedFromPriorAttempt(rows []model.AttemptRow) (dropped []int64) {
	for _, row := range rows {
		st, ok := t.statuses[row.QuestionID]
		if !ok {
			dropped = append(dropped, row.QuestionID)
			continue
		}
		saved := row.SavedAt
		*st = QuestionStatus{
			Answered:       true,
			SelectedOption: row.SelectedOption,
			SavedAt:        &saved,
			Locked:         true,
		}
	}
	return dropped
}

// Status returns a copy of one question's status.
func (t *Tracker) Status(questionID int64) (QuestionStatus, bool) {
	st, ok := t.statuses[questionID]
	if !ok {
		return QuestionStatus{}, false
	}
	return st.clone(), true
}

// Entries returns copies of all statuses in question order.
func (t *Tracker) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, Entry{QuestionID: id, Status: t.statuses[id].clone()})
	}
	return out
}

// Len returns the number of tracked questions.
func (t *Tracker) Len() int {
	return len(t.order)
}

// Counts tallies the palette categories.
func (t *Tracker) Counts() Counts {
	var c Counts
	for _, id := range t.order {
		st := t.statuses[id]
		if st.Answered {
			c.Answered++
		} else {
			c.Unanswered++
		}
		if st.MarkedForReview {
			c.Marked++
		}
		if st.Locked {
			c.Locked++
		}
	}
	return c
}

// Answers builds the submission map: only questions that were saved with a
// selection are included, keyed by id, carrying the full option text.
func (t *Tracker) Answers(questionText func(int64) string) map[int64]model.AnswerEntry {
	out := make(map[int64]model.AnswerEntry)
	for _, id := range t.order {
		st := t.statuses[id]
		if !st.Answered || st.SelectedOption == "" {
			continue
		}
		entry := model.AnswerEntry{SelectedOption: st.SelectedOption}
		if st.SavedAt != nil {
			saved := *st.SavedAt
			entry.SavedAt = &saved
		}
		if questionText != nil {
			entry.Question = questionText(id)
		}
		out[id] = entry
	}
	return out
}

func (s *QuestionStatus) clone() QuestionStatus {
	c := *s
	if s.SavedAt != nil {
		saved := *s.SavedAt
		c.SavedAt = &saved
	}
	return c
}
