package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olympiad/exam-portal/internal/model"
)

// ResultRepository handles graded result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const resultColumns = `result_id, exam_id, student_id, exam_name, exam_type, score, total,
	correct, incorrect, total_questions, percentage, passed, time_taken,
	submission_status, answers, submitted_at`

func scanResult(row pgx.Row) (*model.Result, error) {
	var (
		res     model.Result
		id      uuid.UUID
		answers []byte
	)
	err := row.Scan(&id, &res.ExamID, &res.UserID, &res.ExamName, &res.ExamType,
		&res.Score, &res.Total, &res.Correct, &res.Incorrect, &res.TotalQuestions,
		&res.Percentage, &res.Passed, &res.TimeTaken, &res.SubmissionStatus,
		&answers, &res.SubmittedAt)
	if err != nil {
		return nil, err
	}
	res.ResultID = id.String()
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &res, nil
}

// GetByID retrieves a result by its id.
func (r *ResultRepository) GetByID(ctx context.Context, resultID uuid.UUID) (*model.Result, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE result_id = $1`, resultID))
}

// ExistsForStudent reports whether the student already has a result for the exam.
func (r *ResultRepository) ExistsForStudent(ctx context.Context, examID int64, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM results WHERE exam_id = $1 AND student_id = $2)`,
		examID, studentID,
	).Scan(&exists)
	return exists, err
}

// Upsert writes a single result.
func (r *ResultRepository) Upsert(ctx context.Context, res *model.Result) error {
	id, err := uuid.Parse(res.ResultID)
	if err != nil {
		return fmt.Errorf("parse result id: %w", err)
	}
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		id, res.ExamID, res.UserID, res.ExamName, res.ExamType, res.Score, res.Total,
		res.Correct, res.Incorrect, res.TotalQuestions, res.Percentage, res.Passed,
		res.TimeTaken, res.SubmissionStatus, answers, res.SubmittedAt,
	)
	return err
}

// BulkUpsert writes a batch of results in one statement using UNNEST.
func (r *ResultRepository) BulkUpsert(ctx context.Context, batch []*model.Result) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	var (
		ids         = make([]uuid.UUID, 0, n)
		examIDs     = make([]int64, 0, n)
		students    = make([]int32, 0, n)
		names       = make([]string, 0, n)
		types       = make([]string, 0, n)
		scores      = make([]float64, 0, n)
		totals      = make([]float64, 0, n)
		corrects    = make([]int32, 0, n)
		incorrects  = make([]int32, 0, n)
		questions   = make([]int32, 0, n)
		percentages = make([]float64, 0, n)
		passed      = make([]bool, 0, n)
		timeTaken   = make([]int32, 0, n)
		statuses    = make([]string, 0, n)
		answers     = make([]string, 0, n)
		submittedAt = make([]time.Time, 0, n)
	)

	for _, res := range batch {
		id, err := uuid.Parse(res.ResultID)
		if err != nil {
			return fmt.Errorf("parse result id: %w", err)
		}
		raw, err := json.Marshal(res.Answers)
		if err != nil {
			return fmt.Errorf("encode answers: %w", err)
		}
		ids = append(ids, id)
		examIDs = append(examIDs, res.ExamID)
		students = append(students, int32(res.UserID))
		names = append(names, res.ExamName)
		types = append(types, res.ExamType)
		scores = append(scores, res.Score)
		totals = append(totals, res.Total)
		corrects = append(corrects, int32(res.Correct))
		incorrects = append(incorrects, int32(res.Incorrect))
		questions = append(questions, int32(res.TotalQuestions))
		percentages = append(percentages, res.Percentage)
		passed = append(passed, res.Passed)
		timeTaken = append(timeTaken, int32(res.TimeTaken))
		statuses = append(statuses, string(res.SubmissionStatus))
		answers = append(answers, string(raw))
		submittedAt = append(submittedAt, res.SubmittedAt)
	}

	query := `
		INSERT INTO results (` + resultColumns + `)
		SELECT u.result_id, u.exam_id, u.student_id, u.exam_name, u.exam_type, u.score, u.total,
		       u.correct, u.incorrect, u.total_questions, u.percentage, u.passed, u.time_taken,
		       u.submission_status, u.answers::jsonb, u.submitted_at
		FROM UNNEST(
			$1::uuid[], $2::bigint[], $3::int[], $4::text[], $5::text[],
			$6::float8[], $7::float8[], $8::int[], $9::int[], $10::int[],
			$11::float8[], $12::bool[], $13::int[], $14::text[], $15::text[],
			$16::timestamptz[]
		) AS u (result_id, exam_id, student_id, exam_name, exam_type, score, total,
		        correct, incorrect, total_questions, percentage, passed, time_taken,
		        submission_status, answers, submitted_at)
		ON CONFLICT (exam_id, student_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		ids, examIDs, students, names, types, scores, totals, corrects, incorrects,
		questions, percentages, passed, timeTaken, statuses, answers, submittedAt)
	return err
}

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
