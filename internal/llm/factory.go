package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownProvider is returned by Create for an unregistered provider name.
var ErrUnknownProvider = errors.New("unknown LLM provider")

// Request shapes understood by OpenAI-compatible gateways.
const (
	VariantChat      = "chat"      // temperature + max_tokens
	VariantReasoning = "reasoning" // max_completion_tokens, no temperature
)

// ProviderConfig holds all configuration needed to create any LLM provider.
type ProviderConfig struct {
	Provider   string // "gateway", "openai", "anthropic", "ollama", ...
	APIKey     string
	Model      string
	BaseURL    string // Override for self-hosted / custom endpoints
	EmbedModel string // Embedding model (OpenAI-compatible providers only)

	// Variant picks the request shape for OpenAI-compatible providers. Empty
	// selects from the model name (see ResolveVariant).
	Variant string
	// CompletionPath overrides the completion endpoint path, relative to
	// BaseURL.
	CompletionPath string

	// Timeout and retry configuration
	Timeout    time.Duration // Per-attempt timeout (default: 60s)
	MaxRetries int           // Retry attempts after the first (default: 3)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// ResolveVariant returns cfg.Variant, or the reasoning shape for o1/o3/o4
// model families and the chat shape for everything else.
func ResolveVariant(cfg ProviderConfig) string {
	if cfg.Variant != "" {
		return cfg.Variant
	}
	if IsReasoningModel(cfg.Model) {
		return VariantReasoning
	}
	return VariantChat
}

// IsReasoningModel reports whether model belongs to a reasoning family that
// rejects temperature and max_tokens.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

// ContextWindow is the token budget above which a statement is likely to be
// truncated or poorly analyzed by model.
func ContextWindow(model string) int {
	if IsReasoningModel(model) {
		return 195000
	}
	return 120000
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. Returns nil (no error) when provider is
// empty or "none", which runs the pipeline without a classifier.
// The returned provider is wrapped with retry logic if configured.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownProvider, cfg.Provider, strings.Join(f.Names(), ", "))
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}

	return provider, nil
}

// Names lists registered provider names in sorted order.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps provider presets to their default base URLs.
// Any OpenAI-compatible API can also be reached with "custom" and a base_url.
var KnownProviders = map[string]string{
	"gateway":   "http://150.6.15.80:9393/v1",
	"anthropic": "https://api.anthropic.com/v1",
	"openai":    "https://api.openai.com/v1",
	"groq":      "https://api.groq.com/openai/v1",
	"ollama":    "http://localhost:11434/v1",
	"together":  "https://api.together.xyz/v1",
	"deepseek":  "https://api.deepseek.com/v1",
}
