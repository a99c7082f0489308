package seed

import (
	"strings"
	"testing"

	"github.com/olympiad/exam-portal/internal/model"
)

const validExam = `
name: Junior Math Olympiad
exam_type: olympiad
duration: 30
pass_percentage: 40
publish: true
questions:
  - question: "2 + 2 = ?"
    options: ["3", "4", "5", "22"]
    answer: "4"
  - question: "Largest prime below 10?"
    image_url: https://cdn.example.com/primes.png
    options: ["5", "7", "9"]
    answer: "7"
`

func TestParseBuildsOrderedExam(t *testing.T) {
	f, err := Parse([]byte(validExam))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	exam, questions := f.Build()
	if exam.Status != model.ExamStatusPublished {
		t.Errorf("status = %s, want PUBLISHED", exam.Status)
	}
	if exam.DurationSeconds() != 1800 || exam.NumOfQues != 2 {
		t.Errorf("exam = %+v", exam)
	}
	if len(questions) != 2 {
		t.Fatalf("len(questions) = %d, want 2", len(questions))
	}
	if questions[0].OrderNum != 1 || questions[1].OrderNum != 2 {
		t.Errorf("order = %d, %d", questions[0].OrderNum, questions[1].OrderNum)
	}
	if got := strings.Join(questions[0].Options, ","); got != "3,4,5,22" {
		t.Errorf("options = %s, want file order", got)
	}
	if questions[1].ImageURL == nil || questions[1].CorrectOption != "7" {
		t.Errorf("question 2 = %+v", questions[1])
	}
	if questions[0].ImageURL != nil {
		t.Error("question 1 should have no image")
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: X\nduration: 10\nlevel: hard\nquestions: []\n",
			wantErr: "parse yaml",
		},
		{
			name:    "no questions",
			yaml:    "name: X\nduration: 10\n",
			wantErr: "at least one question",
		},
		{
			name:    "zero duration",
			yaml:    "name: X\nduration: 0\nquestions:\n  - {question: q, options: [a, b], answer: a}\n",
			wantErr: "duration",
		},
		{
			name:    "answer not an option",
			yaml:    "name: X\nduration: 5\nquestions:\n  - {question: q, options: [a, b], answer: c}\n",
			wantErr: "not one of the options",
		},
		{
			name:    "duplicate option",
			yaml:    "name: X\nduration: 5\nquestions:\n  - {question: q, options: [a, a], answer: a}\n",
			wantErr: "duplicate option",
		},
		{
			name:    "multiple documents",
			yaml:    "name: X\nduration: 5\nquestions:\n  - {question: q, options: [a, b], answer: a}\n---\nname: Y\n",
			wantErr: "parse yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
