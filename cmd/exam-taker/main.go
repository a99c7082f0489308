package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/olympiad/exam-portal/internal/attempt"
	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/gateway"
	"github.com/olympiad/exam-portal/internal/logger"
	"github.com/olympiad/exam-portal/internal/tui"
	"golang.org/x/term"
)

func main() {
	examID := flag.Int64("exam", 0, "exam id to take")
	noColor := flag.Bool("no-color", false, "disable colors")
	flag.Parse()

	if *examID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: exam-taker -exam <id>")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log, closer, err := logger.SetupFile(cfg.LogLevel, cfg.ClientLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open log file: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	// ─── Login ─────────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	var token string
	client := gateway.NewClient(cfg.APIBaseURL, cfg.SubmitTimeout, func() string { return token }, log)

	ctx := context.Background()
	login, err := client.Login(ctx, username, string(bytePassword))
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			fmt.Printf("Login failed: %s\n", apiErr.Message)
			return
		}
		log.Error().Err(err).Msg("Login failed")
		fmt.Printf("Login failed: %v\n", err)
		return
	}
	token = login.Token
	log = log.With().Int("user_id", login.Student.ID).Logger()

	// ─── Start Attempt ─────────────────────────────────────────────────
	bridge := tui.NewBridge()
	session := attempt.NewSession(*examID, attempt.Identity{
		UserID: login.Student.ID,
		Token:  func() string { return token },
	}, attempt.Deps{
		Exams:           client,
		Resume:          client,
		Recorder:        client,
		Confirmed:       client.Submit(),
		BestEffort:      client.Beacon(),
		Log:             log,
		Listener:        bridge.Listener(),
		CheckpointEvery: int(cfg.CheckpointInterval.Seconds()),
		SubmitTimeout:   cfg.SubmitTimeout,
	})

	if err := session.Start(ctx); err != nil {
		if errors.Is(err, attempt.ErrLoadFailed) {
			fmt.Println("The exam could not be loaded. Check the exam id and try again.")
		} else {
			fmt.Printf("Could not start the exam: %v\n", err)
		}
		return
	}

	model := tui.NewModel(session, bridge.Events(), tui.Options{
		NoColor:       *noColor,
		ActionTimeout: cfg.SubmitTimeout,
	})
	final, runErr := tea.NewProgram(model, tea.WithAltScreen()).Run()

	// ─── Teardown ──────────────────────────────────────────────────────
	// Leaving mid-attempt hands the answers to the best-effort transport.
	switch session.State() {
	case attempt.StateActive, attempt.StateSubmitting:
		if err := session.Unload(); err != nil && !errors.Is(err, attempt.ErrAlreadySubmitted) {
			log.Warn().Err(err).Msg("Unload submission not sent")
		}
	default:
		session.Close()
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.BeaconGrace)
	if err := client.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("Best-effort submission still in flight at exit")
	}
	cancel()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}

	if m, ok := final.(tui.Model); ok && m.Result() != nil {
		res := m.Result()
		fmt.Printf("Submitted. Score %.2f / %.2f (%.1f%%), result id %s\n", res.Score, res.Total, res.Percentage, res.ResultID)
		return
	}
	fmt.Println("Exam closed. Your answers were sent for submission.")
}
