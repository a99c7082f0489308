// Package seed loads exam definitions from YAML files.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olympiad/exam-portal/internal/model"
	"gopkg.in/yaml.v3"
)

// ExamFile is the on-disk shape of one exam.
type ExamFile struct {
	Name           string         `yaml:"name"`
	ExamType       string         `yaml:"exam_type"`
	Duration       int            `yaml:"duration"`
	PassPercentage float64        `yaml:"pass_percentage"`
	Publish        bool           `yaml:"publish"`
	Questions      []QuestionFile `yaml:"questions"`
}

// QuestionFile is one question. Options keep file order.
type QuestionFile struct {
	Question string   `yaml:"question"`
	ImageURL string   `yaml:"image_url"`
	Options  []string `yaml:"options"`
	Answer   string   `yaml:"answer"`
}

// Load reads and validates an exam file.
func Load(path string) (*ExamFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exam file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a single YAML document and validates it. Unknown keys are rejected.
func Parse(data []byte) (*ExamFile, error) {
	var f ExamFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("parse yaml: multiple documents are not supported")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the invariants the attempt workflow relies on.
func (f *ExamFile) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("exam name is required")
	}
	if f.Duration <= 0 {
		return fmt.Errorf("exam %q: duration must be positive minutes", f.Name)
	}
	if f.PassPercentage < 0 || f.PassPercentage > 100 {
		return fmt.Errorf("exam %q: pass_percentage must be within 0..100", f.Name)
	}
	if len(f.Questions) == 0 {
		return fmt.Errorf("exam %q: at least one question is required", f.Name)
	}

	for i, q := range f.Questions {
		n := i + 1
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("question %d: text is required", n)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d: at least two options are required", n)
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if strings.TrimSpace(o) == "" {
				return fmt.Errorf("question %d: empty option", n)
			}
			if _, dup := seen[o]; dup {
				return fmt.Errorf("question %d: duplicate option %q", n, o)
			}
			seen[o] = struct{}{}
		}
		if _, ok := seen[q.Answer]; !ok {
			return fmt.Errorf("question %d: answer %q is not one of the options", n, q.Answer)
		}
	}
	return nil
}

// Build converts the file into models ready to insert. Question ids and the
// exam id are assigned by the database.
func (f *ExamFile) Build() (*model.Exam, []model.Question) {
	status := model.ExamStatusDraft
	if f.Publish {
		status = model.ExamStatusPublished
	}
	exam := &model.Exam{
		Name:           f.Name,
		ExamType:       f.ExamType,
		Duration:       f.Duration,
		NumOfQues:      len(f.Questions),
		PassPercentage: f.PassPercentage,
		Status:         status,
	}

	questions := make([]model.Question, 0, len(f.Questions))
	for i, q := range f.Questions {
		mq := model.Question{
			Question:      q.Question,
			Options:       append([]string(nil), q.Options...),
			CorrectOption: q.Answer,
			OrderNum:      i + 1,
		}
		if q.ImageURL != "" {
			url := q.ImageURL
			mq.ImageURL = &url
		}
		questions = append(questions, mq)
	}
	return exam, questions
}
