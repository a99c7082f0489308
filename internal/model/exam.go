package model

import (
	"time"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents an Olympiad exam as seen by a student.
type Exam struct {
	ExamID         int64      `json:"exam_id"`
	Name           string     `json:"name"`
	ExamType       string     `json:"exam_type"`
	Duration       int        `json:"duration"` // minutes
	NumOfQues      int        `json:"num_of_ques"`
	PassPercentage float64    `json:"pass_percentage"`
	Status         ExamStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DurationSeconds returns the full exam duration in seconds.
func (e *Exam) DurationSeconds() int {
	return e.Duration * 60
}

// ExamPayload is the Redis-cached exam with its student-facing questions.
type ExamPayload struct {
	Exam      Exam                 `json:"exam"`
	Questions []QuestionForStudent `json:"questions"`
}
