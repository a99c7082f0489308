package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"https://a.example", []string{"https://a.example"}},
		{" https://a.example , ,https://b.example ", []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		if got := parseOrigins(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseOrigins(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SUBMIT_TIMEOUT_SECONDS", "7")
	t.Setenv("CHECKPOINT_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("AUTH_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("API_BASE_URL", "https://exam.example")

	cfg := Load()
	if cfg.SubmitTimeout != 7*time.Second {
		t.Errorf("SubmitTimeout = %v", cfg.SubmitTimeout)
	}
	if cfg.CheckpointInterval != 30*time.Second {
		t.Errorf("invalid int should fall back, got %v", cfg.CheckpointInterval)
	}
	if cfg.AuthRateLimit != 5 {
		t.Errorf("AuthRateLimit = %d", cfg.AuthRateLimit)
	}
	if cfg.APIBaseURL != "https://exam.example" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
}

func TestCacheKeys(t *testing.T) {
	if got := CacheKey.StudentAttemptsKey(7, 3); got != "student:3:exam:7:attempts" {
		t.Errorf("attempts key = %q", got)
	}
	if got := CacheKey.StudentSessionKey(3); got != "login:3" {
		t.Errorf("session key = %q", got)
	}
}
