package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/database"
	"github.com/olympiad/exam-portal/internal/logger"
	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/repository"
	"github.com/olympiad/exam-portal/internal/seed"
)

func main() {
	var path string
	flag.StringVar(&path, "file", "", "Path to the exam YAML file")
	flag.Parse()
	if path == "" {
		fmt.Println("Usage: seed-exam -file exam.yaml")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	f, err := seed.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Invalid exam file")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	exam, questions := f.Build()

	fmt.Printf("=== Seeding exam %q (%d questions) ===\n", exam.Name, len(questions))

	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	for i := range questions {
		questions[i].ExamID = exam.ExamID
		if err := questionRepo.Create(ctx, &questions[i]); err != nil {
			log.Fatal().Err(err).Int("order", questions[i].OrderNum).Msg("Failed to create question")
		}
	}

	fmt.Printf("\nSeed completed! Exam ID %d, status %s.\n", exam.ExamID, exam.Status)
	if exam.Status != model.ExamStatusPublished {
		fmt.Println("The exam is a draft; set publish: true to make it available to students.")
	}
}
