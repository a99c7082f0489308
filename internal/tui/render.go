package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/olympiad/exam-portal/internal/attempt"
	"github.com/olympiad/exam-portal/internal/model"
)

const (
	colorMuted    = lipgloss.Color("244")
	colorAnswered = lipgloss.Color("42")
	colorMarked   = lipgloss.Color("214")
	colorLocked   = lipgloss.Color("39")
	colorError    = lipgloss.Color("196")

	// Under this many seconds the timer turns red.
	lowTimeSeconds = 60
	paletteColumns = 10
)

func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

func bold(text string, noColor bool) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Bold(true).Render(text)
}

// formatClock renders seconds as mm:ss, or h:mm:ss for an hour or more.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func renderHeader(snap attempt.Snapshot, bar progress.Model, noColor bool) string {
	clock := formatClock(snap.Remaining)
	if snap.Remaining <= lowTimeSeconds {
		clock = stylize(clock, noColor, colorError)
	}

	percent := 0.0
	if snap.Total > 0 {
		percent = float64(snap.Remaining) / float64(snap.Total)
	}

	title := bold(snap.ExamName, noColor)
	if snap.Resumed {
		title += stylize(" (resumed)", noColor, colorMuted)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		fmt.Sprintf("%s  %s", bar.ViewAs(percent), clock),
	)
}

func renderQuestion(snap attempt.Snapshot, cursor int, noColor bool) string {
	if snap.Index < 0 || snap.Index >= len(snap.Questions) {
		return stylize("No questions loaded.", noColor, colorMuted)
	}
	q := snap.Questions[snap.Index]
	var st attempt.QuestionStatus
	if snap.Index < len(snap.Entries) {
		st = snap.Entries[snap.Index].Status
	}

	var b strings.Builder
	heading := fmt.Sprintf("Question %d of %d", snap.Index+1, len(snap.Questions))
	b.WriteString(bold(heading, noColor))
	if tag := statusTag(st); tag != "" {
		b.WriteString("  " + stylize(tag, noColor, statusColor(st)))
	}
	b.WriteString("\n\n")
	b.WriteString(q.Question)
	if q.ImageURL != nil && *q.ImageURL != "" {
		b.WriteString("\n" + stylize("[image] "+*q.ImageURL, noColor, colorMuted))
	}
	b.WriteString("\n\n")

	for i, opt := range q.Options {
		pointer := "  "
		if i == cursor {
			pointer = "> "
		}
		mark := "( )"
		if opt == st.SelectedOption {
			mark = "(*)"
		}
		line := fmt.Sprintf("%s%s %d. %s", pointer, mark, i+1, opt)
		if opt == st.SelectedOption {
			line = stylize(line, noColor, statusColor(st))
		}
		b.WriteString(line)
		if i < len(q.Options)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func statusTag(st attempt.QuestionStatus) string {
	switch {
	case st.Locked:
		return "[locked]"
	case st.MarkedForReview:
		return "[review]"
	case st.Answered:
		return "[saved]"
	}
	return ""
}

func statusColor(st attempt.QuestionStatus) lipgloss.Color {
	switch {
	case st.Locked:
		return colorLocked
	case st.MarkedForReview:
		return colorMarked
	case st.Answered:
		return colorAnswered
	}
	return colorMuted
}

// renderPalette draws one cell per question. The current question is bracketed.
func renderPalette(snap attempt.Snapshot, noColor bool) string {
	var rows []string
	var row []string
	for i, e := range snap.Entries {
		cell := fmt.Sprintf(" %2d ", i+1)
		if i == snap.Index {
			cell = fmt.Sprintf("[%2d]", i+1)
		}
		row = append(row, stylize(cell, noColor, statusColor(e.Status)))
		if len(row) == paletteColumns {
			rows = append(rows, strings.Join(row, " "))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, strings.Join(row, " "))
	}

	c := snap.Counts
	legend := fmt.Sprintf("%s  %s  %s  %s",
		stylize(fmt.Sprintf("answered %d", c.Answered), noColor, colorAnswered),
		stylize(fmt.Sprintf("review %d", c.Marked), noColor, colorMarked),
		stylize(fmt.Sprintf("locked %d", c.Locked), noColor, colorLocked),
		stylize(fmt.Sprintf("unanswered %d", c.Unanswered), noColor, colorMuted),
	)
	rows = append(rows, legend)
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderStatus(status string, isError bool, noColor bool) string {
	if status == "" {
		return ""
	}
	if isError {
		return stylize(status, noColor, colorError)
	}
	return stylize(status, noColor, colorMuted)
}

func renderResult(snap attempt.Snapshot, res *model.SubmitResult, noColor bool) string {
	verdict := stylize("NOT PASSED", noColor, colorError)
	if res.Passed {
		verdict = stylize("PASSED", noColor, colorAnswered)
	}
	name := res.ExamName
	if name == "" {
		name = snap.ExamName
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		bold(name+" submitted", noColor),
		"",
		fmt.Sprintf("Score:      %.2f / %.2f (%.1f%%)", res.Score, res.Total, res.Percentage),
		fmt.Sprintf("Correct:    %d of %d", res.Correct, res.TotalQuestions),
		fmt.Sprintf("Incorrect:  %d", res.Incorrect),
		fmt.Sprintf("Result:     %s", verdict),
		"",
		stylize("Press any key to exit.", noColor, colorMuted),
	)
}
