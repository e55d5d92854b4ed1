// Package llmutil wires the built-in classifier backends into a factory.
package llmutil

import (
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/llm/anthropic"
	"github.com/efebarandurmaz/sqllineage/internal/llm/openai"
)

// gatewayReasoningPath is where the in-house gateway serves reasoning models.
const gatewayReasoningPath = "/chat/completions-o3mini"

// RegisterDefaultProviders registers all built-in provider constructors
// (anthropic, openai, the in-house gateway and the OpenAI-compatible presets)
// into factory. Both cmd/sqllineage and cmd/worker call this.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.FromConfig(c), nil
	})
	factory.Register("gateway", func(c llm.ProviderConfig) (llm.Provider, error) {
		if c.BaseURL == "" {
			c.BaseURL = llm.KnownProviders["gateway"]
		}
		if c.CompletionPath == "" && llm.ResolveVariant(c) == llm.VariantReasoning {
			c.CompletionPath = gatewayReasoningPath
		}
		return openai.FromConfig(c), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			if c.BaseURL == "" {
				c.BaseURL = p.url
			}
			return openai.FromConfig(c), nil
		})
	}
}
