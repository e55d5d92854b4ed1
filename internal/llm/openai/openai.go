package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/efebarandurmaz/sqllineage/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements llm.Provider for OpenAI-compatible APIs (OpenAI, vLLM,
// internal gateways). It sends one of two request shapes: chat models get
// temperature and max_tokens, reasoning models get max_completion_tokens only.
type Client struct {
	apiKey         string
	model          string
	baseURL        string
	embedModel     string
	variant        string
	completionPath string
	http           *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithVariant forces the request shape (llm.VariantChat or
// llm.VariantReasoning).
func WithVariant(v string) Option { return func(c *Client) { c.variant = v } }

// WithCompletionPath overrides the completion endpoint, relative to the base
// URL.
func WithCompletionPath(p string) Option { return func(c *Client) { c.completionPath = p } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// New creates an OpenAI-compatible provider.
func New(apiKey, model, baseURL, embedModel string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		http:       &http.Client{Timeout: 300 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if c.variant == "" {
		c.variant = llm.ResolveVariant(llm.ProviderConfig{Model: model})
	}
	if c.completionPath == "" {
		c.completionPath = "/chat/completions"
	}
	return c
}

// FromConfig builds a client from factory configuration.
func FromConfig(cfg llm.ProviderConfig) *Client {
	return New(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.EmbedModel,
		WithVariant(llm.ResolveVariant(cfg)),
		WithCompletionPath(cfg.CompletionPath),
	)
}

func (c *Client) Name() string { return "openai" }

// Variant returns the request shape this client sends.
func (c *Client) Variant() string { return c.variant }

func (c *Client) requestBody(prompt *llm.Prompt, opts *llm.RequestOptions) map[string]any {
	var msgs []map[string]string
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, map[string]string{"role": string(llm.RoleSystem), "content": prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}

	body := map[string]any{
		"model":    c.model,
		"messages": msgs,
		"stream":   false,
	}
	maxTokens := 16384
	if opts != nil && opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	if c.variant == llm.VariantReasoning {
		body["max_completion_tokens"] = maxTokens
	} else {
		body["max_tokens"] = maxTokens
		if opts != nil && opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
		if opts != nil && opts.TopP != nil {
			body["top_p"] = *opts.TopP
		}
	}
	if opts != nil && len(opts.StopSeqs) > 0 {
		body["stop"] = opts.StopSeqs
	}
	return body
}

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	respBody, err := c.post(ctx, c.completionPath, c.requestBody(prompt, opts))
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(respBody)
	return &llm.Response{
		Body:         string(respBody),
		ContentField: "content",
		Model:        res.Get("model").String(),
		InputTokens:  int(res.Get("usage.prompt_tokens").Int()),
		OutputTokens: int(res.Get("usage.completion_tokens").Int()),
		StopReason:   res.Get("choices.0.finish_reason").String(),
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	respBody, err := c.post(ctx, "/embeddings", map[string]any{
		"model": c.embedModel,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.StatusError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}
