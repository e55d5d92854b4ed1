package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/efebarandurmaz/sqllineage/internal/llm"
)

func TestNew_SetsDefaults(t *testing.T) {
	client := New("test-key", "claude-sonnet", "")
	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default baseURL %q, got %q", defaultBaseURL, client.baseURL)
	}
	if client.Name() != "anthropic" {
		t.Errorf("unexpected name %q", client.Name())
	}
}

func TestComplete_RequestAndRawBody(t *testing.T) {
	var (
		headers http.Header
		body    map[string]any
	)
	reply := `{"model":"claude-sonnet","content":[{"type":"text","text":"{\"lineages\":[{\"sourceTable\":\"S\",\"targetTable\":\"T\"}]}"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":20}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		io.WriteString(w, reply)
	}))
	defer server.Close()

	client := New("test-key", "claude-sonnet", server.URL)
	resp, err := client.Complete(context.Background(), llm.NewPrompt("be exact", "INSERT INTO T SELECT * FROM S"), &llm.RequestOptions{
		MaxTokens:   llm.Int(1024),
		Temperature: llm.Float(0.2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("x-api-key") != "test-key" || headers.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("unexpected headers %v", headers)
	}
	if body["system"] != "be exact" || body["max_tokens"] != float64(1024) || body["temperature"] != 0.2 {
		t.Errorf("unexpected body %v", body)
	}

	if resp.Body != reply {
		t.Errorf("body not passed through")
	}
	if resp.ContentField != "text" {
		t.Errorf("expected content field 'text', got %q", resp.ContentField)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 20 || resp.StopReason != "end_turn" {
		t.Errorf("unexpected metadata %+v", resp)
	}
}

func TestComplete_HandlesNon200StatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"invalid key"}`)
	}))
	defer server.Close()

	_, err := New("bad", "m", server.URL).Complete(context.Background(), llm.NewPrompt("", "x"), nil)
	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusUnauthorized || se.Retryable() {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestEmbed_ReturnsError(t *testing.T) {
	_, err := New("k", "m", "").Embed(context.Background(), []string{"x"})
	if !errors.Is(err, ErrEmbedUnsupported) {
		t.Fatalf("expected ErrEmbedUnsupported, got %v", err)
	}
}
