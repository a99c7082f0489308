package model

// Question represents a single exam question including its answer.
type Question struct {
	QuestionID    int64    `json:"question_id"`
	ExamID        int64    `json:"exam_id"`
	Question      string   `json:"question"`
	ImageURL      *string  `json:"image_url,omitempty"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
	OrderNum      int      `json:"order_num"`
}

// ForStudent strips the correct answer.
func (q *Question) ForStudent() QuestionForStudent {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return QuestionForStudent{
		QuestionID: q.QuestionID,
		ExamID:     q.ExamID,
		Question:   q.Question,
		ImageURL:   q.ImageURL,
		Options:    opts,
	}
}

// QuestionForStudent is a question without the correct answer, sent to students.
// Options keep their stored order.
type QuestionForStudent struct {
	QuestionID int64    `json:"question_id"`
	ExamID     int64    `json:"exam_id"`
	Question   string   `json:"question"`
	ImageURL   *string  `json:"image_url,omitempty"`
	Options    []string `json:"options"`
}

// HasOption reports whether option is one of the question's option strings.
func (q *QuestionForStudent) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}
