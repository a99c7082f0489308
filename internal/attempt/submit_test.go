package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

func buildFor(status model.SubmissionStatus) func(Trigger) *model.SubmitAttemptRequest {
	return func(Trigger) *model.SubmitAttemptRequest {
		return &model.SubmitAttemptRequest{ExamID: 7, UserID: 3, SubmissionStatus: status}
	}
}

func TestCoordinatorFirstTriggerWins(t *testing.T) {
	tr := newFakeTransport()
	c := NewCoordinator(tr, nil, zerolog.Nop())

	if _, err := c.Submit(context.Background(), TriggerExpiry, buildFor(model.SubmissionEnded)); err != nil {
		t.Fatalf("expiry submit: %v", err)
	}
	built := false
	_, err := c.Submit(context.Background(), TriggerFinish, func(Trigger) *model.SubmitAttemptRequest {
		built = true
		return nil
	})
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if built {
		t.Fatal("losing trigger must not build a payload")
	}
	if tr.count() != 1 {
		t.Fatalf("expected exactly one submission, got %d", tr.count())
	}
	if res, ok := c.Result(); !ok || res.ResultID != "result-1" {
		t.Fatalf("expected stored result, got %+v %v", res, ok)
	}
}

func TestCoordinatorConcurrentTriggers(t *testing.T) {
	tr := newFakeTransport()
	c := NewCoordinator(tr, nil, zerolog.Nop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, trig := range []Trigger{TriggerFinish, TriggerExpiry, TriggerFinish, TriggerExpiry} {
		wg.Add(1)
		go func(trig Trigger) {
			defer wg.Done()
			if _, err := c.Submit(context.Background(), trig, buildFor(trig.Status())); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(trig)
	}
	wg.Wait()

	if wins != 1 || tr.count() != 1 {
		t.Fatalf("expected one winner and one send, got wins=%d sends=%d", wins, tr.count())
	}
}

func TestCoordinatorFailureReleasesLatch(t *testing.T) {
	tr := newFakeTransport()
	tr.failures = 1
	c := NewCoordinator(tr, nil, zerolog.Nop())

	if _, err := c.Submit(context.Background(), TriggerFinish, buildFor(model.SubmissionSubmitted)); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if c.Latched() {
		t.Fatal("failed explicit submit must release the latch")
	}
	if _, err := c.Submit(context.Background(), TriggerFinish, buildFor(model.SubmissionSubmitted)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if tr.count() != 1 {
		t.Fatalf("expected one successful send, got %d", tr.count())
	}
}

func TestCoordinatorUnloadIsBestEffort(t *testing.T) {
	confirmed := newFakeTransport()
	beacon := newFakeTransport()
	beacon.failures = 1
	c := NewCoordinator(confirmed, beacon, zerolog.Nop())

	res, err := c.Submit(context.Background(), TriggerUnload, buildFor(model.SubmissionEnded))
	if err != nil || res != nil {
		t.Fatalf("unload must return immediately, got %+v %v", res, err)
	}
	if !c.Latched() {
		t.Fatal("unload must keep the latch even when the send fails")
	}

	// The failed beacon is not retried.
	if req := beacon.waitSent(50 * time.Millisecond); req != nil {
		t.Fatal("best-effort send must not be retried")
	}
	if confirmed.count() != 0 {
		t.Fatal("unload must not use the confirmable transport")
	}
	if _, err := c.Submit(context.Background(), TriggerFinish, buildFor(model.SubmissionSubmitted)); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted after unload, got %v", err)
	}
}

func TestTriggerStatus(t *testing.T) {
	tests := map[Trigger]model.SubmissionStatus{
		TriggerFinish: model.SubmissionSubmitted,
		TriggerExpiry: model.SubmissionEnded,
		TriggerUnload: model.SubmissionEnded,
	}
	for trig, want := range tests {
		if got := trig.Status(); got != want {
			t.Errorf("%s: expected %s, got %s", trig, want, got)
		}
	}
}
