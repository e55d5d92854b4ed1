// Package analyzer asks the classifier for the table lineage of one statement
// and keeps only the pairs that can be found in the statement text.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/efebarandurmaz/sqllineage/internal/agents"
	"github.com/efebarandurmaz/sqllineage/internal/extract"
	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
)

// ErrNoQuery is returned when Run is called without a statement.
var ErrNoQuery = errors.New("analyzer: no query provided")

// Options are the sampling settings sent with every request.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int

	// Variant is the request shape, empty to pick it from Model.
	Variant string

	// MaxCompletionTokens caps reasoning-model output. Zero falls back to
	// MaxTokens.
	MaxCompletionTokens int
}

// DefaultOptions mirrors the settings the gateway was tuned with.
func DefaultOptions() Options {
	return Options{Temperature: 0.2, MaxTokens: 16384}
}

// Analyzer is the lineage agent.
type Analyzer struct {
	opts Options
}

func New(opts Options) *Analyzer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultOptions().MaxTokens
	}
	return &Analyzer{opts: opts}
}

func (a *Analyzer) Name() string { return "analyzer" }

// Options returns the settings the analyzer sends.
func (a *Analyzer) Options() Options { return a.opts }

func (a *Analyzer) requestOptions() *llm.RequestOptions {
	maxTokens := a.opts.MaxTokens
	variant := llm.ResolveVariant(llm.ProviderConfig{Model: a.opts.Model, Variant: a.opts.Variant})
	if variant == llm.VariantReasoning && a.opts.MaxCompletionTokens > 0 {
		maxTokens = a.opts.MaxCompletionTokens
	}
	return &llm.RequestOptions{
		MaxTokens:   llm.Int(maxTokens),
		Temperature: llm.Float(a.opts.Temperature),
	}
}

// Run analyzes ac.Query. Statements that do not write a table are skipped
// without a call. Classifier and decoding failures leave the result without
// pairs; only a failed call is returned as an error.
func (a *Analyzer) Run(ctx context.Context, ac *agents.AgentContext) (*agents.AgentResult, error) {
	result := agents.NewAgentResult()
	if ac.Query == nil {
		result.Status = agents.StatusFailed
		result.AddError(ErrNoQuery.Error())
		result.Finalize()
		return result, ErrNoQuery
	}
	q := ac.Query
	log := ac.Logger.With().Str("file", q.FilePath).Int("statement", q.Index).Logger()

	result.Metrics.InputItems = 1
	result.Metadata["file_path"] = q.FilePath
	result.Metadata["model"] = a.opts.Model

	if !q.NeedsLineage {
		result.Metrics.SkippedItems = 1
		result.Metadata["skipped"] = "statement writes no table"
		result.Finalize()
		return result, nil
	}

	if ac.LLM == nil {
		result.SetPassthrough("no LLM provider configured")
		result.Finalize()
		return result, nil
	}

	tokens := llm.EstimateTokens(q.Text)
	log.Info().Int("length", len(q.Text)).Int("estimated_tokens", tokens).Msg("analyzing statement")
	if limit := llm.ContextWindow(a.opts.Model); tokens > limit {
		msg := fmt.Sprintf("statement is about %d tokens, over the %d token window; extraction may be inaccurate", tokens, limit)
		log.Warn().Int("estimated_tokens", tokens).Int("limit", limit).Msg("statement near context window")
		result.AddWarning(msg)
	}

	ctx, span := observability.StartLLMSpan(ctx, ac.LLM.Name(), a.opts.Model)
	defer span.End()

	start := time.Now()
	resp, err := ac.LLM.Complete(ctx, llm.NewPrompt(SystemPrompt(), UserPrompt(q.Text)), a.requestOptions())
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		ac.Metrics.RecordLLMRequest(elapsed, 0, 0, err)
		result.RecordLLMCall(elapsed, 0, 0)
		result.Status = agents.StatusFailed
		result.AddError(fmt.Sprintf("classifier call: %v", err))
		result.Finalize()
		return result, fmt.Errorf("analyze %s#%d: %w", q.FilePath, q.Index, err)
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens)
	ac.Metrics.RecordLLMRequest(elapsed, resp.InputTokens, resp.OutputTokens, nil)
	result.RecordLLMCall(elapsed, resp.InputTokens, resp.OutputTokens)

	candidates, err := extract.Candidates(extract.StripThinking(Content(resp)))
	if err != nil {
		log.Error().Err(err).Str("body", preview(resp.Body, 500)).Msg("unusable classifier response")
		result.Status = agents.StatusFailed
		result.AddError(fmt.Sprintf("decode response: %v", err))
		result.Finalize()
		return result, nil
	}

	pairs := lineage.NewValidator(log).Validate(q.Text, candidates)
	observability.RecordValidation(span, len(candidates), len(pairs))
	ac.Metrics.RecordValidation(len(pairs), len(candidates)-len(pairs))

	result.Pairs = pairs
	result.Metrics.OutputItems = len(pairs)
	result.Metadata["candidates"] = fmt.Sprintf("%d", len(candidates))
	log.Info().Int("candidates", len(candidates)).Int("accepted", len(pairs)).Msg("lineage extracted")

	result.Finalize()
	return result, nil
}

// Content pulls the answer text out of a raw response body. The literal
// field scan runs first; OpenAI-shaped bodies that it cannot read (for
// example pretty-printed ones) are retried as JSON.
func Content(resp *llm.Response) string {
	if resp == nil {
		return ""
	}
	if s, ok := extract.Field(resp.Body, resp.ContentField); ok {
		return s
	}
	for _, path := range []string{"choices.0.message.content", "content.0.text"} {
		if r := gjson.Get(resp.Body, path); r.Exists() {
			return r.String()
		}
	}
	return ""
}

// Edges turns accepted pairs into persistable edges for q.
func Edges(result *agents.AgentResult, filePath, queryText, model string) []lineage.Edge {
	if result == nil || len(result.Pairs) == 0 {
		return nil
	}
	out := make([]lineage.Edge, 0, len(result.Pairs))
	for _, p := range result.Pairs {
		out = append(out, lineage.NewEdge(p, filePath, queryText, model))
	}
	return out
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
