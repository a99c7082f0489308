package validator

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/olympiad/exam-portal/internal/model"
)

func TestTranslateErrors(t *testing.T) {
	Setup()

	req := model.SubmitAttemptRequest{ExamID: 1, UserID: 2, SubmissionStatus: "paused"}
	fields := TranslateErrors(binding.Validator.ValidateStruct(&req))
	if got := fields["submission_status"]; got != "submission_status must be 'submitted' or 'ended'" {
		t.Fatalf("submission_status message = %q (all: %v)", got, fields)
	}

	req = model.SubmitAttemptRequest{SubmissionStatus: model.SubmissionEnded}
	fields = TranslateErrors(binding.Validator.ValidateStruct(&req))
	if fields["exam_id"] == "" || fields["user_id"] == "" {
		t.Fatalf("expected required errors, got %v", fields)
	}

	fields = TranslateErrors(errors.New("unexpected EOF"))
	if fields["detail"] != "unexpected EOF" {
		t.Fatalf("non-validation error: %v", fields)
	}
}
