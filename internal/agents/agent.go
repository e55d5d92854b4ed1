// Package agents defines the contract shared by pipeline steps that call the
// classifier, and the result record they report back.
package agents

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
	"github.com/efebarandurmaz/sqllineage/internal/query"
)

// ResultVersion is the schema version of AgentResult.
const ResultVersion = "1.0.0"

// AgentStatus is the outcome of one agent run.
type AgentStatus string

const (
	StatusSuccess     AgentStatus = "success"
	StatusPartial     AgentStatus = "partial"
	StatusFailed      AgentStatus = "failed"
	StatusPassthrough AgentStatus = "passthrough"
)

// Agent is the interface for all pipeline agents.
type Agent interface {
	// Name returns the agent identifier.
	Name() string
	// Run executes the agent's task.
	Run(ctx context.Context, ac *AgentContext) (*AgentResult, error)
}

// AgentContext provides shared resources to agents.
type AgentContext struct {
	Query   *query.Query
	LLM     llm.Provider
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Params  map[string]string
}

// ResultMetrics are the counters an agent fills in while running.
type ResultMetrics struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	InputItems   int
	OutputItems  int
	SkippedItems int

	LLMCalls         int
	LLMDuration      time.Duration
	PromptTokens     int
	CompletionTokens int
}

// AgentResult captures agent output.
type AgentResult struct {
	Version  string
	Status   AgentStatus
	Pairs    []lineage.Pair
	Errors   []string
	Warnings []string
	Metrics  *ResultMetrics
	Metadata map[string]string
}

// NewAgentResult returns a successful, empty result with its clock started.
func NewAgentResult() *AgentResult {
	return &AgentResult{
		Version:  ResultVersion,
		Status:   StatusSuccess,
		Errors:   []string{},
		Warnings: []string{},
		Metrics:  &ResultMetrics{StartTime: time.Now()},
		Metadata: make(map[string]string),
	}
}

// AddError records an error. A successful result becomes partial.
func (r *AgentResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	if r.Status == StatusSuccess {
		r.Status = StatusPartial
	}
}

// AddWarning records a warning without touching the status.
func (r *AgentResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// SetPassthrough marks the result as produced without the classifier.
func (r *AgentResult) SetPassthrough(reason string) {
	r.Status = StatusPassthrough
	r.Metadata["mode"] = "passthrough"
	r.Metadata["passthrough_reason"] = reason
}

// RecordLLMCall accumulates one classifier call.
func (r *AgentResult) RecordLLMCall(d time.Duration, promptTokens, completionTokens int) {
	r.Metrics.LLMCalls++
	r.Metrics.LLMDuration += d
	r.Metrics.PromptTokens += promptTokens
	r.Metrics.CompletionTokens += completionTokens
}

// Finalize stops the clock. Errors on a successful result downgrade it to
// partial.
func (r *AgentResult) Finalize() {
	r.Metrics.EndTime = time.Now()
	r.Metrics.Duration = r.Metrics.EndTime.Sub(r.Metrics.StartTime)
	if len(r.Errors) > 0 && r.Status == StatusSuccess {
		r.Status = StatusPartial
	}
}
