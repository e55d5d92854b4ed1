package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: 5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("expected 1 second retry delay, got %v", cfg.RetryDelay)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("expected 60 second timeout, got %v", cfg.Timeout)
	}
}

func TestRetryProvider_Name(t *testing.T) {
	retry := NewRetryProvider(&mockRetryProvider{name: "gateway"}, nil)
	if retry.Name() != "gateway" {
		t.Errorf("expected 'gateway', got %s", retry.Name())
	}
}

func TestRetryProvider_Complete_SucceedsFirstTry(t *testing.T) {
	inner := &mockRetryProvider{
		name:      "test",
		responses: []*Response{{Body: `{"content":"ok"}`, ContentField: "content"}},
	}

	resp, err := NewRetryProvider(inner, fastRetry(3)).Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body != `{"content":"ok"}` {
		t.Errorf("unexpected body %q", resp.Body)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RetriesOnRetryableError(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errors: []error{
			errors.New("500 Internal Server Error"),
			&StatusError{Provider: "openai", StatusCode: 503, Status: "503 Service Unavailable"},
		},
		responses: []*Response{{Body: "{}"}},
	}

	_, err := NewRetryProvider(inner, fastRetry(3)).Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_FailsNonRetryableError(t *testing.T) {
	inner := &mockRetryProvider{
		name:   "test",
		errors: []error{&StatusError{Provider: "openai", StatusCode: 401, Status: "401 Unauthorized"}},
	}

	_, err := NewRetryProvider(inner, fastRetry(3)).Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("expected 'non-retryable' in error, got: %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 401 {
		t.Errorf("expected wrapped StatusError, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call (no retries), got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RespectsMaxRetries(t *testing.T) {
	inner := &mockRetryProvider{
		name:   "test",
		errors: []error{errors.New("500"), errors.New("500"), errors.New("500"), errors.New("500")},
	}

	_, err := NewRetryProvider(inner, fastRetry(2)).Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries") {
		t.Errorf("expected 'max retries' in error, got: %v", err)
	}
	// initial + 2 retries
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RespectsContextCancellation(t *testing.T) {
	inner := &mockRetryProvider{name: "test", errors: []error{errors.New("500")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRetryProvider(inner, fastRetry(3)).Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestRetryProvider_Embed_FollowsRetryLogic(t *testing.T) {
	inner := &mockRetryProvider{
		name:           "test",
		embedErrors:    []error{errors.New("503 Service Unavailable")},
		embedResponses: [][][]float32{{{0.1, 0.2, 0.3}}},
	}

	embeddings, err := NewRetryProvider(inner, fastRetry(3)).Embed(context.Background(), []string{"INSERT INTO t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(embeddings))
	}
	if inner.embedCalls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.embedCalls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"429 text", errors.New("429 Too Many Requests"), true},
		{"429 daily limit", errors.New("429: Rate limit reached on tokens per day (TPD)"), false},
		{"500 text", errors.New("500 Internal Server Error"), true},
		{"bad gateway text", errors.New(http502), true},
		{"401 text", errors.New("401 Unauthorized"), false},
		{"404 text", errors.New("404 Not Found"), false},
		{"status 429", &StatusError{StatusCode: 429}, true},
		{"status 429 daily", &StatusError{StatusCode: 429, Body: "tokens per day"}, false},
		{"status 502", &StatusError{StatusCode: 502}, true},
		{"status 400", &StatusError{StatusCode: 400, Body: "retry 500 times"}, false},
		{"unknown", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

const http502 = "upstream said Bad Gateway"

func TestWrapWithRetry(t *testing.T) {
	if WrapWithRetry(nil, ProviderConfig{}) != nil {
		t.Fatal("expected nil for nil provider")
	}

	result := WrapWithRetry(&mockRetryProvider{name: "test"}, ProviderConfig{
		Timeout:    3 * time.Minute,
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
	})
	retry, ok := result.(*RetryProvider)
	if !ok {
		t.Fatalf("expected RetryProvider, got %T", result)
	}
	if retry.config.Timeout != 3*time.Minute {
		t.Errorf("expected 3 minute timeout, got %v", retry.config.Timeout)
	}
	if retry.config.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.RetryDelay != 2*time.Second {
		t.Errorf("expected 2s retry delay, got %v", retry.config.RetryDelay)
	}

	defaults := WrapWithRetry(&mockRetryProvider{name: "test"}, ProviderConfig{}).(*RetryProvider)
	if defaults.config.MaxRetries != 3 || defaults.config.Timeout != 60*time.Second {
		t.Errorf("unexpected defaults %+v", defaults.config)
	}
}

// mockRetryProvider fails with the queued errors, then returns the queued
// responses.
type mockRetryProvider struct {
	name           string
	responses      []*Response
	errors         []error
	embedResponses [][][]float32
	embedErrors    []error
	calls          int
	embedCalls     int
}

func (m *mockRetryProvider) Name() string {
	return m.name
}

func (m *mockRetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	m.calls++
	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more responses configured")
}

func (m *mockRetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedCalls++
	if len(m.embedErrors) > 0 {
		err := m.embedErrors[0]
		m.embedErrors = m.embedErrors[1:]
		return nil, err
	}
	if len(m.embedResponses) > 0 {
		resp := m.embedResponses[0]
		m.embedResponses = m.embedResponses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more embed responses configured")
}
