package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/olympiad/exam-portal/internal/response"
	"github.com/rs/zerolog"
)

// APIError is a non-2xx reply from the exam backend.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the exam backend's student REST API.
type Client struct {
	baseURL string
	client  *http.Client
	token   func() string
	log     zerolog.Logger

	beacons sync.WaitGroup
}

// NewClient constructs a client for baseURL. token is read on every request.
func NewClient(baseURL string, timeout time.Duration, token func() string, log zerolog.Logger) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   token,
		log:     log.With().Str("component", "gateway_client").Logger(),
	}
}

// ─── Auth ───

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*model.StudentLoginResponse, error) {
	var out model.StudentLoginResponse
	req := model.StudentLoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/student/login", req, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &out, nil
}

// Logout ends the current single-device session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/student/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ─── Exam source ───

// Exam fetches exam metadata.
func (c *Client) Exam(ctx context.Context, examID int64) (*model.Exam, error) {
	var out model.Exam
	if err := c.do(ctx, http.MethodGet, examPath(examID, ""), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch exam: %w", err)
	}
	return &out, nil
}

// Questions fetches the ordered question list.
func (c *Client) Questions(ctx context.Context, examID int64) ([]model.QuestionForStudent, error) {
	var out []model.QuestionForStudent
	if err := c.do(ctx, http.MethodGet, examPath(examID, "/questions"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	return out, nil
}

// ─── Resume source ───

// PriorProgress fetches the elapsed time of an unfinished attempt. A 404 means
// there is none and returns nil, nil.
func (c *Client) PriorProgress(ctx context.Context, examID int64, _ int) (*model.Progress, error) {
	var out model.Progress
	err := c.do(ctx, http.MethodGet, examPath(examID, "/progress"), nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch progress: %w", err)
	}
	return &out, nil
}

// PriorAttempts fetches previously saved answers.
func (c *Client) PriorAttempts(ctx context.Context, examID int64, _ int) ([]model.AttemptRow, error) {
	var out []model.AttemptRow
	if err := c.do(ctx, http.MethodGet, examPath(examID, "/attempts"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch attempts: %w", err)
	}
	return out, nil
}

// ─── Answer recorder ───

// RecordAnswer saves one answer.
func (c *Client) RecordAnswer(ctx context.Context, examID int64, _ int, req *model.RecordAttemptRequest) error {
	if err := c.do(ctx, http.MethodPost, examPath(examID, "/attempts"), req, nil); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// RecordProgress checkpoints elapsed time.
func (c *Client) RecordProgress(ctx context.Context, examID int64, _ int, timeTaken int) error {
	body := model.ProgressRequest{TimeTaken: &timeTaken}
	if err := c.do(ctx, http.MethodPut, examPath(examID, "/progress"), body, nil); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// ─── Results ───

// Result fetches a graded result by id.
func (c *Client) Result(ctx context.Context, resultID string) (*model.Result, error) {
	var out model.Result
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/results/"+url.PathEscape(resultID), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	return &out, nil
}

// ─── Submission transports ───

// SubmitTransport is the confirmable submission path.
type SubmitTransport struct{ c *Client }

// BeaconTransport is the best-effort submission path: Send returns as soon as
// the request is dispatched.
type BeaconTransport struct{ c *Client }

// Submit returns the confirmable transport.
func (c *Client) Submit() *SubmitTransport { return &SubmitTransport{c: c} }

// Beacon returns the best-effort transport.
func (c *Client) Beacon() *BeaconTransport { return &BeaconTransport{c: c} }

// Send posts the submission and returns the graded result.
func (t *SubmitTransport) Send(ctx context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	var out model.SubmitResult
	if err := t.c.do(ctx, http.MethodPost, examPath(req.ExamID, "/submit"), req, &out); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return &out, nil
}

// Send dispatches the submission on a background goroutine and does not wait
// for it. The outcome is only logged.
func (t *BeaconTransport) Send(_ context.Context, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode beacon: %w", err)
	}
	token := t.c.token()

	t.c.beacons.Add(1)
	go func() {
		defer t.c.beacons.Done()
		// Detached from the caller: the page is going away.
		ctx, cancel := context.WithTimeout(context.Background(), t.c.client.Timeout+time.Second)
		defer cancel()
		_, status, err := t.c.send(ctx, http.MethodPost, examPath(req.ExamID, "/submit/beacon"), payload, token)
		if err == nil && status >= 300 {
			err = fmt.Errorf("http %d", status)
		}
		if err != nil {
			t.c.log.Warn().Err(err).Int64("exam_id", req.ExamID).Msg("Beacon submission failed")
			return
		}
		t.c.log.Debug().Int64("exam_id", req.ExamID).Msg("Beacon submission delivered")
	}()
	return nil, nil
}

// Wait blocks until dispatched beacons finish or ctx is done. A quitting
// process calls it with a short grace period.
func (c *Client) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Plumbing ───

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	body, status, err := c.send(ctx, method, path, payload, c.token())
	if err != nil {
		return err
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil && status < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if status >= 300 {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func examPath(examID int64, suffix string) string {
	return fmt.Sprintf("/api/v1/student/exams/%d%s", examID, suffix)
}
