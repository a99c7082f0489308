package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/olympiad/exam-portal/internal/middleware"
	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/response"
	"github.com/olympiad/exam-portal/internal/service"
	"github.com/olympiad/exam-portal/internal/validator"
)

// AttemptHandler handles in-flight answers, progress, submission and results.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// GetProgress godoc
// GET /api/v1/student/exams/:exam_id/progress
// Returns the elapsed seconds of an unfinished attempt, or 404 when there is none.
func (h *AttemptHandler) GetProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	progress, err := h.attemptService.PriorProgress(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}
	if progress == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoProgress)
		return
	}
	response.Success(c, http.StatusOK, progress)
}

// RecordProgress godoc
// PUT /api/v1/student/exams/:exam_id/progress
// Checkpoints elapsed seconds. Lower values than the stored one are ignored.
func (h *AttemptHandler) RecordProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.ProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.RecordProgress(c.Request.Context(), examID, claims.UserID, *req.TimeTaken); err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"time_taken": *req.TimeTaken})
}

// ListAttempts godoc
// GET /api/v1/student/exams/:exam_id/attempts
// Returns the answers saved so far.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	rows, err := h.attemptService.PriorAttempts(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// RecordAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Saves one answer.
func (h *AttemptHandler) RecordAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.RecordAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.RecordAnswer(c.Request.Context(), examID, claims.UserID, &req); err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"status": "saved"})
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the attempt and returns the result. Only the first submission counts.
func (h *AttemptHandler) Submit(c *gin.Context) {
	req, ok := h.bindSubmission(c)
	if !ok {
		return
	}

	res, err := h.attemptService.Submit(c.Request.Context(), req)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// SubmitBeacon godoc
// POST /api/v1/student/exams/:exam_id/submit/beacon
// Accepts a submission sent while the client is going away and grades it in
// the background. The client never reads the outcome.
func (h *AttemptHandler) SubmitBeacon(c *gin.Context) {
	req, ok := h.bindSubmission(c)
	if !ok {
		return
	}

	h.attemptService.SubmitAsync(req)
	response.Accepted(c)
}

// GetResult godoc
// GET /api/v1/student/results/:result_id
// Returns a graded result owned by the caller.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)

	res, err := h.attemptService.GetResult(c.Request.Context(), c.Param("result_id"), claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// bindSubmission validates a submission body against the route and the caller.
func (h *AttemptHandler) bindSubmission(c *gin.Context) (*model.SubmitAttemptRequest, bool) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return nil, false
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return nil, false
	}

	if req.ExamID != examID || req.UserID != claims.UserID {
		failFromError(c, service.ErrIdentityMismatch)
		return nil, false
	}
	if req.Answers == nil {
		req.Answers = map[int64]model.AnswerEntry{}
	}
	return &req, true
}
