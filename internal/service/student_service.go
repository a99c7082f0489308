package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/repository"
)

// ErrStudentNotFound is returned when no student matches.
var ErrStudentNotFound = errors.New("student not found")

// StudentService handles student business logic.
type StudentService struct {
	studentRepo *repository.StudentRepository
	authService *AuthService
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, authService *AuthService) *StudentService {
	return &StudentService{studentRepo: studentRepo, authService: authService}
}

// GetByUsername retrieves a student by username.
func (s *StudentService) GetByUsername(ctx context.Context, username string) (*model.Student, error) {
	st, err := s.studentRepo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if repository.IsNotFound(err) {
		return nil, ErrStudentNotFound
	}
	return st, err
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	st, err := s.studentRepo.GetByID(ctx, id)
	if repository.IsNotFound(err) {
		return nil, ErrStudentNotFound
	}
	return st, err
}

// Create inserts a new student. password is hashed with the configured cost.
func (s *StudentService) Create(ctx context.Context, student *model.Student, password string) error {
	hashed, err := s.authService.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	student.Username = strings.ToLower(strings.TrimSpace(student.Username))
	student.PasswordHash = hashed
	return s.studentRepo.Create(ctx, student)
}
