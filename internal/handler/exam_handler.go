package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/olympiad/exam-portal/internal/response"
	"github.com/olympiad/exam-portal/internal/service"
)

// ExamHandler serves exam metadata and questions to students.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// ListExams godoc
// GET /api/v1/student/exams
// Lists published exams.
func (h *ExamHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.ListPublished(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, exams)
}

// GetExam godoc
// GET /api/v1/student/exams/:exam_id
// Returns exam metadata: name, type, duration in minutes and question count.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// GetQuestions godoc
// GET /api/v1/student/exams/:exam_id/questions
// Returns the ordered questions without their answers.
func (h *ExamHandler) GetQuestions(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	questions, err := h.examService.GetQuestions(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, questions)
}
