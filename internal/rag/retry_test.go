package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/duvidaki/duvidaki/internal/log"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("Rate Limit exceeded"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("context deadline exceeded (Client.Timeout)"), true},
		{errors.New("invalid API key"), false},
		{errors.New("model not found"), false},
	}

	for _, tt := range tests {
		if got := retryableError(tt.err); got != tt.want {
			t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithRetry_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), DefaultRetryConfig(), log.NewNop(), func() (string, error) {
		calls++
		return "", errors.New("invalid API key")
	})
	if err == nil {
		t.Fatal("withRetry() succeeded, want error")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestWithRetry_EventualSuccess(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialInterval: 1, MaxInterval: 1}
	calls := 0
	got, err := withRetry(context.Background(), cfg, log.NewNop(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 unavailable")
		}
		return "answer", nil
	})
	if err != nil {
		t.Fatalf("withRetry() error: %v", err)
	}
	if got != "answer" || calls != 3 {
		t.Errorf("got %q after %d calls, want \"answer\" after 3", got, calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxRetries: 3, InitialInterval: 1, MaxInterval: 1}
	_, err := withRetry(ctx, cfg, log.NewNop(), func() (string, error) {
		return "", errors.New("timeout")
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("withRetry() error = %v, want context.Canceled", err)
	}
}
