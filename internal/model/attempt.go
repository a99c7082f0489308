package model

import "time"

// SubmissionStatus tags how an attempt ended.
type SubmissionStatus string

const (
	// SubmissionSubmitted is an explicit finish by the student.
	SubmissionSubmitted SubmissionStatus = "submitted"
	// SubmissionEnded is an involuntary submission (timer expiry or page close).
	SubmissionEnded SubmissionStatus = "ended"
)

// AttemptRow is one previously saved answer, used to resume an attempt.
type AttemptRow struct {
	QuestionID     int64  `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	SavedAt        int    `json:"saved_at"`
}

// RecordAttemptRequest is the payload for saving a single answer during an attempt.
type RecordAttemptRequest struct {
	QuestionID     int64  `json:"question_id" binding:"required,min=1"`
	SelectedOption string `json:"selected_option" binding:"required,max=2000"`
	SavedAt        *int   `json:"saved_at" binding:"required,min=0"`
}

// Progress is the elapsed time of an unfinished attempt.
type Progress struct {
	TimeTaken int `json:"time_taken"`
}

// ProgressRequest is the payload for checkpointing elapsed time.
type ProgressRequest struct {
	TimeTaken *int `json:"time_taken" binding:"required,min=0"`
}

// AnswerEntry is one answered question inside a submission.
type AnswerEntry struct {
	Question       string `json:"question"`
	SelectedOption string `json:"selectedOption"`
	SavedAt        *int   `json:"savedAt"`
}

// SubmitAttemptRequest is the terminal submission of an attempt.
type SubmitAttemptRequest struct {
	ExamID           int64                 `json:"exam_id" binding:"required,min=1"`
	UserID           int                   `json:"user_id" binding:"required,min=1"`
	Answers          map[int64]AnswerEntry `json:"answers"`
	TimeTaken        int                   `json:"time_taken" binding:"min=0"`
	SubmissionStatus SubmissionStatus      `json:"submission_status" binding:"required,submission_status"`
}

// SubmitResult is the graded outcome returned for a submission.
type SubmitResult struct {
	ResultID       string  `json:"result_id"`
	ExamName       string  `json:"exam_name"`
	ExamType       string  `json:"exam_type"`
	Score          float64 `json:"score"`
	Total          float64 `json:"total"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	TotalQuestions int     `json:"total_questions"`
	Percentage     float64 `json:"percentage"`
	Passed         bool    `json:"passed"`
}

// Result is a persisted graded attempt.
type Result struct {
	SubmitResult
	ExamID           int64                 `json:"exam_id"`
	UserID           int                   `json:"user_id"`
	TimeTaken        int                   `json:"time_taken"`
	SubmissionStatus SubmissionStatus      `json:"submission_status"`
	Answers          map[int64]AnswerEntry `json:"answers,omitempty"`
	SubmittedAt      time.Time             `json:"submitted_at"`
}
