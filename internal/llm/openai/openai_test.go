package openai

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

type captured struct {
	path   string
	auth   string
	body   map[string]any
	status int
	reply  string
}

func newServer(t *testing.T, c *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &c.body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if c.status != 0 {
			w.WriteHeader(c.status)
		}
		io.WriteString(w, c.reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const chatReply = `{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"{\"lineages\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`

func TestComplete_ChatShape(t *testing.T) {
	c := &captured{reply: chatReply}
	srv := newServer(t, c)

	client := New("key", "gpt-4o-mini", srv.URL+"/v1", "")
	resp, err := client.Complete(context.Background(), llm.NewPrompt("sys", "usr"), &llm.RequestOptions{
		MaxTokens:   llm.Int(16384),
		Temperature: llm.Float(0.2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.path != "/v1/chat/completions" {
		t.Errorf("unexpected path %q", c.path)
	}
	if c.auth != "Bearer key" {
		t.Errorf("unexpected auth header %q", c.auth)
	}
	if c.body["temperature"] != 0.2 || c.body["max_tokens"] != float64(16384) || c.body["stream"] != false {
		t.Errorf("unexpected chat body %v", c.body)
	}
	if _, ok := c.body["max_completion_tokens"]; ok {
		t.Error("chat shape must not send max_completion_tokens")
	}
	msgs := c.body["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Errorf("unexpected messages %v", msgs)
	}

	if resp.Body != chatReply || resp.ContentField != "content" {
		t.Errorf("body not passed through: %+v", resp)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 5 || resp.StopReason != "stop" || resp.Model != "gpt-4o-mini" {
		t.Errorf("unexpected metadata %+v", resp)
	}
}

func TestComplete_ReasoningShape(t *testing.T) {
	c := &captured{reply: `{"choices":[{"message":{"content":"{}"}}]}`}
	srv := newServer(t, c)

	client := New("", "o3-mini", srv.URL+"/v1", "", WithCompletionPath("/chat/completions-o3mini"))
	if client.Variant() != llm.VariantReasoning {
		t.Fatalf("expected reasoning variant, got %q", client.Variant())
	}
	_, err := client.Complete(context.Background(), llm.NewPrompt("sys", "usr"), &llm.RequestOptions{
		MaxTokens:   llm.Int(4096),
		Temperature: llm.Float(0.2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.path != "/v1/chat/completions-o3mini" {
		t.Errorf("unexpected path %q", c.path)
	}
	if c.auth != "" {
		t.Errorf("expected no auth header without a key, got %q", c.auth)
	}
	if c.body["max_completion_tokens"] != float64(4096) {
		t.Errorf("expected max_completion_tokens, got %v", c.body)
	}
	for _, k := range []string{"temperature", "max_tokens"} {
		if _, ok := c.body[k]; ok {
			t.Errorf("reasoning shape must not send %s", k)
		}
	}
}

func TestComplete_StatusError(t *testing.T) {
	c := &captured{status: http.StatusTooManyRequests, reply: `{"error":"slow down"}`}
	srv := newServer(t, c)

	_, err := New("k", "gpt-4o", srv.URL, "").Complete(context.Background(), llm.NewPrompt("", "x"), nil)
	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != 429 || !se.Retryable() {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestEmbed(t *testing.T) {
	c := &captured{reply: `{"data":[{"embedding":[0.5,0.25]},{"embedding":[1]}]}`}
	srv := newServer(t, c)

	vecs, err := New("k", "gpt-4o", srv.URL, "embed-small").Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.path != "/embeddings" || c.body["model"] != "embed-small" {
		t.Errorf("unexpected request %s %v", c.path, c.body)
	}
	if len(vecs) != 2 || vecs[0][1] != 0.25 {
		t.Errorf("unexpected vectors %v", vecs)
	}
}

func TestFromConfig(t *testing.T) {
	client := FromConfig(llm.ProviderConfig{Model: "gpt-4o", Variant: llm.VariantReasoning, BaseURL: "http://x/v1/"})
	if client.Variant() != llm.VariantReasoning {
		t.Errorf("explicit variant ignored: %q", client.Variant())
	}
	if client.baseURL != "http://x/v1" || client.completionPath != "/chat/completions" {
		t.Errorf("unexpected endpoint %s%s", client.baseURL, client.completionPath)
	}
}
