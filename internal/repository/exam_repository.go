package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olympiad/exam-portal/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `e.exam_id, e.name, e.exam_type, e.duration_minutes,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.exam_id),
	e.pass_percentage, e.status, e.created_at`

func scanExam(row interface{ Scan(...any) error }, e *model.Exam) error {
	return row.Scan(&e.ExamID, &e.Name, &e.ExamType, &e.Duration,
		&e.NumOfQues, &e.PassPercentage, &e.Status, &e.CreatedAt)
}

// GetByID retrieves an exam by id.
func (r *ExamRepository) GetByID(ctx context.Context, id int64) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.exam_id = $1`, id), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.status = $1
		 ORDER BY e.created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (name, exam_type, duration_minutes, pass_percentage, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING exam_id, created_at`,
		e.Name, e.ExamType, e.Duration, e.PassPercentage, e.Status,
	).Scan(&e.ExamID, &e.CreatedAt)
}
