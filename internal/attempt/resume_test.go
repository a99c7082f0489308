package attempt

import (
	"context"
	"testing"

	"github.com/olympiad/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

func TestResumeLoaderLoad(t *testing.T) {
	tests := []struct {
		name          string
		src           ResumeSource
		wantRemaining int
		wantRows      int
		wantFallback  bool
	}{
		{
			name:          "fresh attempt",
			src:           &fakeResume{},
			wantRemaining: 1800,
		},
		{
			name: "resume with prior elapsed",
			src: &fakeResume{
				progress: &model.Progress{TimeTaken: 600},
				rows:     []model.AttemptRow{{QuestionID: 1, SelectedOption: "A", SavedAt: 100}},
			},
			wantRemaining: 1200,
			wantRows:      1,
		},
		{
			name:          "prior elapsed beyond duration",
			src:           &fakeResume{progress: &model.Progress{TimeTaken: 4000}},
			wantRemaining: 0,
		},
		{
			name:          "negative prior elapsed",
			src:           &fakeResume{progress: &model.Progress{TimeTaken: -20}},
			wantRemaining: 1800,
		},
		{
			name:          "progress fetch fails",
			src:           &fakeResume{progressErr: errBackendDown, rows: []model.AttemptRow{{QuestionID: 1}}},
			wantRemaining: 1800,
			wantFallback:  true,
		},
		{
			name:          "attempts fetch fails",
			src:           &fakeResume{progress: &model.Progress{TimeTaken: 600}, rowsErr: errBackendDown},
			wantRemaining: 1800,
			wantFallback:  true,
		},
		{
			name:          "no source",
			wantRemaining: 1800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewResumeLoader(tt.src, zerolog.Nop())
			got := l.Load(context.Background(), 7, 3, 1800)

			if got.RemainingSeconds != tt.wantRemaining {
				t.Errorf("expected remaining %d, got %d", tt.wantRemaining, got.RemainingSeconds)
			}
			if len(got.Rows) != tt.wantRows {
				t.Errorf("expected %d rows, got %d", tt.wantRows, len(got.Rows))
			}
			if got.Fallback != tt.wantFallback {
				t.Errorf("expected fallback=%v, got %v", tt.wantFallback, got.Fallback)
			}
		})
	}
}
