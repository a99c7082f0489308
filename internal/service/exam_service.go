package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain Errors
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotAvailable = errors.New("exam is not published")
	ErrNoQuestions      = errors.New("exam has no questions")
)

// ExamService serves exams to students from the Redis fast lane, falling back
// to PostgreSQL on a cache miss.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// ListPublished returns the exams a student can start.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// GetExam returns exam metadata for a published exam.
func (s *ExamService) GetExam(ctx context.Context, examID int64) (*model.Exam, error) {
	payload, err := s.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, err
	}
	return &payload.Exam, nil
}

// GetQuestions returns the ordered student-facing questions of a published exam.
func (s *ExamService) GetQuestions(ctx context.Context, examID int64) ([]model.QuestionForStudent, error) {
	payload, err := s.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

// GetExamPayload retrieves the cached student payload, warming the cache on a miss.
func (s *ExamService) GetExamPayload(ctx context.Context, examID int64) (*model.ExamPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID)).Bytes()
	if err == nil {
		var payload model.ExamPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &payload, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	payload, _, err := s.warm(ctx, examID)
	return payload, err
}

// GetAnswerKey retrieves the answer key (question id -> correct option) for RAM grading.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID int64) (map[int64]string, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey(examID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(raw) == 0 {
		_, key, err := s.warm(ctx, examID)
		return key, err
	}

	key := make(map[int64]string, len(raw))
	for field, option := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid question id %q in answer key: %w", field, err)
		}
		key[id] = option
	}
	return key, nil
}

func (s *ExamService) warm(ctx context.Context, examID int64) (*model.ExamPayload, map[int64]string, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, nil, ErrExamNotAvailable
	}
	return s.WarmExamCache(ctx, exam)
}

// WarmExamCache loads an exam's payload and answer key from PostgreSQL into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) (*model.ExamPayload, map[int64]string, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	answerKey := make(map[int64]string, len(questions))
	hash := make(map[string]interface{}, len(questions))
	for i := range questions {
		studentQuestions[i] = questions[i].ForStudent()
		answerKey[questions[i].QuestionID] = questions[i].CorrectOption
		hash[strconv.FormatInt(questions[i].QuestionID, 10)] = questions[i].CorrectOption
	}

	exam.NumOfQues = len(questions)
	payload := &model.ExamPayload{Exam: *exam, Questions: studentQuestions}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	// Cache both atomically via pipeline.
	keyName := config.CacheKey.ExamAnswerKey(exam.ExamID)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ExamID), payloadJSON, 0)
	pipe.Del(ctx, keyName)
	pipe.HSet(ctx, keyName, hash)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Int64("exam_id", exam.ExamID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return payload, answerKey, nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if _, _, err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Int64("exam_id", exams[i].ExamID).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}
