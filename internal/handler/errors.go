package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/olympiad/exam-portal/internal/attempt"
	"github.com/olympiad/exam-portal/internal/response"
	"github.com/olympiad/exam-portal/internal/service"
)

// errorStatus maps a domain error to an HTTP status and API error code.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrExamNotAvailable), errors.Is(err, attempt.ErrLoadFailed):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusConflict, response.ErrNoQuestions
	case errors.Is(err, service.ErrUnknownQuestion), errors.Is(err, attempt.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	case errors.Is(err, service.ErrUnknownOption), errors.Is(err, attempt.ErrUnknownOption):
		return http.StatusBadRequest, response.ErrUnknownOption
	case errors.Is(err, service.ErrAlreadySubmitted), errors.Is(err, attempt.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrIdentityMismatch):
		return http.StatusForbidden, response.ErrIdentityMismatch
	case errors.Is(err, service.ErrResultNotFound):
		return http.StatusNotFound, response.ErrResultNotFound
	case errors.Is(err, attempt.ErrNoSelection):
		return http.StatusBadRequest, response.ErrNoSelection
	case errors.Is(err, attempt.ErrTimeUp):
		return http.StatusConflict, response.ErrTimeUp
	case errors.Is(err, attempt.ErrNotActive):
		return http.StatusConflict, response.ErrAttemptNotActive
	case errors.Is(err, attempt.ErrIndexOutOfRange):
		return http.StatusBadRequest, response.ErrValidation
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failFromError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	response.Fail(c, status, code)
}

// examIDParam parses :exam_id and writes a 400 when it is not a positive integer.
func examIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
