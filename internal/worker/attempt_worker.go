package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/metrics"
	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	attemptPollTimeout = time.Second
	attemptRetryDelay  = 5 * time.Second
)

// AttemptWorker consumes the saved-answer and progress queues and UPSERTs them
// into PostgreSQL.
type AttemptWorker struct {
	repo *repository.AttemptRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAttemptWorker creates a new AttemptWorker.
func NewAttemptWorker(repo *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "attempt_worker").Logger(),
	}
}

type attemptItem struct {
	ExamID    int64            `json:"exam_id"`
	StudentID int              `json:"student_id"`
	Row       model.AttemptRow `json:"row"`
}

type progressItem struct {
	ExamID    int64 `json:"exam_id"`
	StudentID int   `json:"student_id"`
	TimeTaken int   `json:"time_taken"`
}

func (w *AttemptWorker) queues() []string {
	return []string{config.WorkerKey.PersistAttemptsQueue, config.WorkerKey.PersistProgressQueue}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AttemptWorker) processNext(ctx context.Context) {
	// BLPop returns the queue name and the item.
	result, err := w.rdb.BLPop(ctx, attemptPollTimeout, w.queues()...).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	queue, raw := result[0], result[1]
	if err := w.persist(ctx, queue, raw); err != nil {
		w.log.Error().Err(err).Str("queue", queue).Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, queue, raw)
		time.Sleep(attemptRetryDelay)
	}
}

func (w *AttemptWorker) persist(ctx context.Context, queue, raw string) error {
	switch queue {
	case config.WorkerKey.PersistAttemptsQueue:
		var item attemptItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			// A malformed item can never succeed; drop it.
			w.log.Error().Err(err).Msg("Unmarshal attempt error")
			return nil
		}
		return w.repo.UpsertAnswer(ctx, item.ExamID, item.StudentID, item.Row)

	case config.WorkerKey.PersistProgressQueue:
		var item progressItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			w.log.Error().Err(err).Msg("Unmarshal progress error")
			return nil
		}
		return w.repo.UpsertProgress(ctx, item.ExamID, item.StudentID, item.TimeTaken)
	}
	return fmt.Errorf("unknown queue %q", queue)
}

// drain processes all remaining items before shutdown.
func (w *AttemptWorker) drain(ctx context.Context) {
	drained := 0
	for _, queue := range w.queues() {
		for {
			raw, err := w.rdb.LPop(ctx, queue).Result()
			if err != nil {
				break
			}
			if err := w.persist(ctx, queue, raw); err != nil {
				w.log.Error().Err(err).Str("queue", queue).Msg("Drain persist error")
				w.rdb.RPush(ctx, queue, raw)
				break
			}
			drained++
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

// SampleQueueDepth publishes the length of every persist queue until ctx is done.
func SampleQueueDepth(ctx context.Context, rdb *redis.Client, every time.Duration) {
	queues := []string{
		config.WorkerKey.PersistAttemptsQueue,
		config.WorkerKey.PersistProgressQueue,
		config.WorkerKey.PersistResultsQueue,
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range queues {
				if n, err := rdb.LLen(ctx, q).Result(); err == nil {
					metrics.QueueDepth.WithLabelValues(q).Set(float64(n))
				}
			}
		}
	}
}
