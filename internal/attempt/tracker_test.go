package attempt

import (
	"errors"
	"testing"

	"github.com/olympiad/exam-portal/internal/model"
)

func TestTrackerInitializeDefaults(t *testing.T) {
	qs := testQuestions(5)
	qs = append(qs, qs[0]) // duplicate id must not create a second entry
	tr := NewTracker(qs)

	if tr.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", tr.Len())
	}
	for i, e := range tr.Entries() {
		if e.QuestionID != int64(i+1) {
			t.Errorf("entry %d: expected question %d, got %d", i, i+1, e.QuestionID)
		}
		if e.Status != (QuestionStatus{}) {
			t.Errorf("question %d: expected default status, got %+v", e.QuestionID, e.Status)
		}
	}
}

func TestTrackerSaveCurrent(t *testing.T) {
	tests := []struct {
		name       string
		selectOpt  string
		elapsed    int
		wantErr    error
		wantAnswer bool
	}{
		{name: "no selection", wantErr: ErrNoSelection},
		{name: "selected", selectOpt: "C", elapsed: 42, wantAnswer: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(testQuestions(3))
			if _, err := tr.ToggleReview(2); err != nil {
				t.Fatal(err)
			}
			if tt.selectOpt != "" {
				if _, err := tr.SelectOption(2, tt.selectOpt); err != nil {
					t.Fatal(err)
				}
			}

			err := tr.SaveCurrent(2, tt.elapsed)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}

			st, _ := tr.Status(2)
			if st.Answered != tt.wantAnswer {
				t.Fatalf("expected answered=%v, got %v", tt.wantAnswer, st.Answered)
			}
			if !tt.wantAnswer {
				if !st.MarkedForReview || st.SavedAt != nil {
					t.Fatalf("failed save must not touch state, got %+v", st)
				}
				return
			}
			if st.SavedAt == nil || *st.SavedAt != tt.elapsed {
				t.Fatalf("expected savedAt=%d, got %v", tt.elapsed, st.SavedAt)
			}
			if st.MarkedForReview {
				t.Fatal("save must clear the review mark")
			}
		})
	}
}

func TestTrackerSelectDoesNotAnswer(t *testing.T) {
	tr := NewTracker(testQuestions(2))
	applied, err := tr.SelectOption(1, "B")
	if err != nil || !applied {
		t.Fatalf("expected selection applied, got %v %v", applied, err)
	}
	st, _ := tr.Status(1)
	if st.Answered || st.SelectedOption != "B" {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(tr.Answers(nil)) != 0 {
		t.Fatal("unsaved selection must not appear in answers")
	}
}

func TestTrackerSeedLocksQuestions(t *testing.T) {
	tr := NewTracker(testQuestions(3))
	if _, err := tr.ToggleReview(1); err != nil {
		t.Fatal(err)
	}

	dropped := tr.SeedFromPriorAttempt([]model.AttemptRow{
		{QuestionID: 1, SelectedOption: "A", SavedAt: 30},
		{QuestionID: 99, SelectedOption: "B", SavedAt: 31},
	})
	if len(dropped) != 1 || dropped[0] != 99 {
		t.Fatalf("expected question 99 dropped, got %v", dropped)
	}

	st, _ := tr.Status(1)
	if !st.Answered || !st.Locked || st.SelectedOption != "A" || st.MarkedForReview {
		t.Fatalf("unexpected seeded status %+v", st)
	}

	applied, err := tr.SelectOption(1, "D")
	if err != nil || applied {
		t.Fatalf("select on locked question must be ignored, got %v %v", applied, err)
	}
	if err := tr.SaveCurrent(1, 500); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}

	st, _ = tr.Status(1)
	if st.SelectedOption != "A" || *st.SavedAt != 30 {
		t.Fatalf("locked question changed: %+v", st)
	}

	marked, err := tr.ToggleReview(1)
	if err != nil || !marked {
		t.Fatalf("review mark must be allowed on locked question, got %v %v", marked, err)
	}
}

func TestTrackerUnknownQuestion(t *testing.T) {
	tr := NewTracker(testQuestions(1))
	if _, err := tr.SelectOption(5, "A"); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("SelectOption: expected ErrUnknownQuestion, got %v", err)
	}
	if err := tr.SaveCurrent(5, 1); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("SaveCurrent: expected ErrUnknownQuestion, got %v", err)
	}
	if _, err := tr.ToggleReview(5); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("ToggleReview: expected ErrUnknownQuestion, got %v", err)
	}
}

func TestTrackerAnswersAndCounts(t *testing.T) {
	tr := NewTracker(testQuestions(4))
	tr.SeedFromPriorAttempt([]model.AttemptRow{{QuestionID: 4, SelectedOption: "D", SavedAt: 5}})
	_, _ = tr.SelectOption(1, "B")
	_ = tr.SaveCurrent(1, 12)
	_, _ = tr.SelectOption(2, "C") // selected, never saved
	_, _ = tr.ToggleReview(3)

	answers := tr.Answers(func(id int64) string { return "text" })
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d: %+v", len(answers), answers)
	}
	if _, ok := answers[2]; ok {
		t.Fatal("unsaved question 2 must not be submitted")
	}
	a := answers[1]
	if a.SelectedOption != "B" || a.SavedAt == nil || *a.SavedAt != 12 || a.Question != "text" {
		t.Fatalf("unexpected answer %+v", a)
	}

	c := tr.Counts()
	want := Counts{Answered: 2, Marked: 1, Locked: 1, Unanswered: 2}
	if c != want {
		t.Fatalf("expected counts %+v, got %+v", want, c)
	}
}
