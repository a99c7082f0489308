package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/metrics"
	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Attempt errors.
var (
	ErrUnknownQuestion  = errors.New("question does not belong to exam")
	ErrUnknownOption    = errors.New("option not offered by question")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrIdentityMismatch = errors.New("submission does not match caller")
	ErrResultNotFound   = errors.New("result not found")
)

const (
	resultTTL     = 24 * time.Hour
	pendingLatch  = "pending"
	beaconTimeout = 30 * time.Second
	percentScale  = 100
)

// raiseProgress sets the key to ARGV[1] only when it is larger than the stored value.
var raiseProgress = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '-1')
local val = tonumber(ARGV[1])
if val > cur then
	redis.call('SET', KEYS[1], val)
	return val
end
return cur
`)

// AttemptService records in-flight answers and grades submissions.
type AttemptService struct {
	examService *ExamService
	attemptRepo *repository.AttemptRepository
	resultRepo  *repository.ResultRepository
	rdb         *redis.Client
	log         zerolog.Logger

	inflight sync.WaitGroup
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	examService *ExamService,
	attemptRepo *repository.AttemptRepository,
	resultRepo *repository.ResultRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		examService: examService,
		attemptRepo: attemptRepo,
		resultRepo:  resultRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

type attemptQueueItem struct {
	ExamID    int64            `json:"exam_id"`
	StudentID int              `json:"student_id"`
	Row       model.AttemptRow `json:"row"`
}

type progressQueueItem struct {
	ExamID    int64 `json:"exam_id"`
	StudentID int   `json:"student_id"`
	TimeTaken int   `json:"time_taken"`
}

// ─── In-flight recording ───

// RecordAnswer saves one answer into the Redis hash and queues it for PostgreSQL.
func (s *AttemptService) RecordAnswer(ctx context.Context, examID int64, studentID int, req *model.RecordAttemptRequest) error {
	payload, err := s.examService.GetExamPayload(ctx, examID)
	if err != nil {
		return err
	}
	q := findQuestion(payload.Questions, req.QuestionID)
	if q == nil {
		return ErrUnknownQuestion
	}
	if !q.HasOption(req.SelectedOption) {
		return ErrUnknownOption
	}
	if err := s.ensureNotSubmitted(ctx, examID, studentID); err != nil {
		return err
	}

	row := model.AttemptRow{QuestionID: req.QuestionID, SelectedOption: req.SelectedOption}
	if req.SavedAt != nil {
		row.SavedAt = *req.SavedAt
	}
	rowJSON, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	item, err := json.Marshal(attemptQueueItem{ExamID: examID, StudentID: studentID, Row: row})
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, config.CacheKey.StudentAttemptsKey(examID, studentID), strconv.FormatInt(row.QuestionID, 10), rowJSON)
	pipe.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, item)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// RecordProgress checkpoints elapsed seconds. The stored value never decreases.
func (s *AttemptService) RecordProgress(ctx context.Context, examID int64, studentID int, timeTaken int) error {
	if timeTaken < 0 {
		timeTaken = 0
	}
	if err := s.ensureNotSubmitted(ctx, examID, studentID); err != nil {
		return err
	}

	stored, err := raiseProgress.Run(ctx, s.rdb,
		[]string{config.CacheKey.StudentProgressKey(examID, studentID)}, timeTaken).Int()
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	if stored != timeTaken {
		return nil
	}

	item, err := json.Marshal(progressQueueItem{ExamID: examID, StudentID: studentID, TimeTaken: timeTaken})
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistProgressQueue, item).Err(); err != nil {
		return fmt.Errorf("queue progress: %w", err)
	}
	return nil
}

// ─── Resume data ───

// PriorProgress returns the last checkpointed elapsed time, or nil if there is none.
func (s *AttemptService) PriorProgress(ctx context.Context, examID int64, studentID int) (*model.Progress, error) {
	key := config.CacheKey.StudentProgressKey(examID, studentID)
	val, err := s.rdb.Get(ctx, key).Int()
	if err == nil {
		return &model.Progress{TimeTaken: val}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	// Cache miss: PostgreSQL is the source of truth.
	p, err := s.attemptRepo.GetProgress(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get progress from db: %w", err)
	}
	if p != nil {
		_ = raiseProgress.Run(ctx, s.rdb, []string{key}, p.TimeTaken).Err()
	}
	return p, nil
}

// PriorAttempts returns the saved answers ordered by question id.
func (s *AttemptService) PriorAttempts(ctx context.Context, examID int64, studentID int) ([]model.AttemptRow, error) {
	key := config.CacheKey.StudentAttemptsKey(examID, studentID)
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get attempts: %w", err)
	}

	if len(raw) == 0 {
		rows, err := s.attemptRepo.ListAnswers(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("get attempts from db: %w", err)
		}
		s.healAttempts(ctx, key, rows)
		if rows == nil {
			rows = []model.AttemptRow{}
		}
		return rows, nil
	}

	rows := make([]model.AttemptRow, 0, len(raw))
	for field, v := range raw {
		var row model.AttemptRow
		if err := json.Unmarshal([]byte(v), &row); err != nil {
			s.log.Warn().Err(err).Str("field", field).Msg("Skipping corrupt attempt entry")
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QuestionID < rows[j].QuestionID })
	return rows, nil
}

func (s *AttemptService) healAttempts(ctx context.Context, key string, rows []model.AttemptRow) {
	if len(rows) == 0 {
		return
	}
	fields := make(map[string]interface{}, len(rows))
	for _, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			continue
		}
		fields[strconv.FormatInt(row.QuestionID, 10)] = b
	}
	_ = s.rdb.HSet(ctx, key, fields).Err()
}

// ─── Submission ───

// Submit grades the attempt in RAM against the cached answer key. The first
// submission per exam and student wins; later ones get ErrAlreadySubmitted.
func (s *AttemptService) Submit(ctx context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	log := s.log.With().Int64("exam_id", req.ExamID).Int("user_id", req.UserID).Logger()

	if err := s.ensureNotSubmitted(ctx, req.ExamID, req.UserID); err != nil {
		metrics.SubmissionRejections.WithLabelValues("duplicate").Inc()
		return nil, err
	}

	resultID := uuid.New().String()
	latchKey := config.CacheKey.StudentResultKey(req.ExamID, req.UserID)
	ok, err := s.rdb.SetNX(ctx, latchKey, pendingLatch, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("latch submission: %w", err)
	}
	if !ok {
		metrics.SubmissionRejections.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadySubmitted
	}

	res, err := s.gradeAndStore(ctx, resultID, req)
	if err != nil {
		// Release the latch so the student can retry.
		_ = s.rdb.Del(context.WithoutCancel(ctx), latchKey).Err()
		metrics.SubmissionRejections.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Submission failed")
		return nil, err
	}

	metrics.Submissions.WithLabelValues(string(req.SubmissionStatus)).Inc()
	log.Info().
		Str("result_id", res.ResultID).
		Str("status", string(req.SubmissionStatus)).
		Int("correct", res.Correct).
		Int("total_questions", res.TotalQuestions).
		Int("time_taken", req.TimeTaken).
		Msg("Attempt graded")
	return &res.SubmitResult, nil
}

// SubmitAsync grades a best-effort submission in the background.
func (s *AttemptService) SubmitAsync(req *model.SubmitAttemptRequest) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		if _, err := s.Submit(ctx, req); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			s.log.Warn().Err(err).
				Int64("exam_id", req.ExamID).
				Int("user_id", req.UserID).
				Msg("Best-effort submission dropped")
		}
	}()
}

// Drain waits for background submissions, bounded by ctx.
func (s *AttemptService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AttemptService) gradeAndStore(ctx context.Context, resultID string, req *model.SubmitAttemptRequest) (*model.Result, error) {
	payload, err := s.examService.GetExamPayload(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}
	key, err := s.examService.GetAnswerKey(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	graded := Grade(&payload.Exam, payload.Questions, key, req.Answers)
	graded.ResultID = resultID

	res := &model.Result{
		SubmitResult:     graded,
		ExamID:           req.ExamID,
		UserID:           req.UserID,
		TimeTaken:        clampTime(req.TimeTaken, payload.Exam.DurationSeconds()),
		SubmissionStatus: req.SubmissionStatus,
		Answers:          req.Answers,
		SubmittedAt:      time.Now().UTC(),
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ResultKey(resultID), resJSON, resultTTL)
	pipe.Set(ctx, config.CacheKey.StudentResultKey(req.ExamID, req.UserID), resultID, 0)
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, resJSON)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	return res, nil
}

// GetResult returns a result owned by studentID.
func (s *AttemptService) GetResult(ctx context.Context, resultID string, studentID int) (*model.Result, error) {
	id, err := uuid.Parse(resultID)
	if err != nil {
		return nil, ErrResultNotFound
	}

	var res *model.Result
	data, err := s.rdb.Get(ctx, config.CacheKey.ResultKey(id.String())).Bytes()
	switch {
	case err == nil:
		res = &model.Result{}
		if err := json.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	case errors.Is(err, redis.Nil):
		res, err = s.resultRepo.GetByID(ctx, id)
		if repository.IsNotFound(err) {
			return nil, ErrResultNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get result: %w", err)
		}
	default:
		return nil, fmt.Errorf("get result: %w", err)
	}

	if res.UserID != studentID {
		return nil, ErrResultNotFound
	}
	return res, nil
}

func (s *AttemptService) ensureNotSubmitted(ctx context.Context, examID int64, studentID int) error {
	n, err := s.rdb.Exists(ctx, config.CacheKey.StudentResultKey(examID, studentID)).Result()
	if err != nil {
		return fmt.Errorf("check submission: %w", err)
	}
	if n > 0 {
		return ErrAlreadySubmitted
	}
	exists, err := s.resultRepo.ExistsForStudent(ctx, examID, studentID)
	if err != nil {
		return fmt.Errorf("check submission in db: %w", err)
	}
	if exists {
		return ErrAlreadySubmitted
	}
	return nil
}

// ─── Grading ───

// Grade scores answers against the key, one point per correct answer. Options
// are compared by their text. Answers for questions outside the exam are ignored.
func Grade(exam *model.Exam, questions []model.QuestionForStudent, key map[int64]string, answers map[int64]model.AnswerEntry) model.SubmitResult {
	res := model.SubmitResult{
		ExamName:       exam.Name,
		ExamType:       exam.ExamType,
		TotalQuestions: len(questions),
		Total:          float64(len(questions)),
	}

	for _, q := range questions {
		a, ok := answers[q.QuestionID]
		if !ok || a.SelectedOption == "" {
			continue
		}
		if correct, ok := key[q.QuestionID]; ok && correct == a.SelectedOption {
			res.Correct++
		} else {
			res.Incorrect++
		}
	}

	res.Score = float64(res.Correct)
	if res.Total > 0 {
		pct := res.Score / res.Total * 100
		res.Percentage = math.Round(pct*percentScale) / percentScale
	}
	res.Passed = res.Total > 0 && res.Percentage >= exam.PassPercentage
	return res
}

func findQuestion(questions []model.QuestionForStudent, id int64) *model.QuestionForStudent {
	for i := range questions {
		if questions[i].QuestionID == id {
			return &questions[i]
		}
	}
	return nil
}

func clampTime(timeTaken, limit int) int {
	if timeTaken < 0 {
		return 0
	}
	if limit > 0 && timeTaken > limit {
		return limit
	}
	return timeTaken
}
