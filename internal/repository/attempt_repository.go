package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olympiad/exam-portal/internal/model"
)

// AttemptRepository stores in-flight attempt data: saved answers and elapsed time.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// ListAnswers returns the saved answers of a student for an exam.
func (r *AttemptRepository) ListAnswers(ctx context.Context, examID int64, studentID int) ([]model.AttemptRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option, saved_at
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY question_id`, examID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptRow
	for rows.Next() {
		var a model.AttemptRow
		if err := rows.Scan(&a.QuestionID, &a.SelectedOption, &a.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAnswer creates or replaces one saved answer.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, examID int64, studentID int, a model.AttemptRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_attempts (exam_id, student_id, question_id, selected_option, saved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option,
		     saved_at = EXCLUDED.saved_at,
		     updated_at = NOW()`,
		examID, studentID, a.QuestionID, a.SelectedOption, a.SavedAt,
	)
	return err
}

// GetProgress returns the elapsed time checkpoint, or nil when none exists.
func (r *AttemptRepository) GetProgress(ctx context.Context, examID int64, studentID int) (*model.Progress, error) {
	p := &model.Progress{}
	err := r.pool.QueryRow(ctx,
		`SELECT time_taken FROM exam_progress WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID,
	).Scan(&p.TimeTaken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertProgress records elapsed time. A checkpoint never moves time backwards.
func (r *AttemptRepository) UpsertProgress(ctx context.Context, examID int64, studentID int, timeTaken int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_progress (exam_id, student_id, time_taken)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET time_taken = GREATEST(exam_progress.time_taken, EXCLUDED.time_taken),
		     updated_at = NOW()`,
		examID, studentID, timeTaken,
	)
	return err
}
