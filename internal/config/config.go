package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/qualitygate"
)

// EnvPrefix prefixes every environment override, e.g. SQLLINEAGE_LLM_MODEL.
const EnvPrefix = "SQLLINEAGE"

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Store    StoreConfig    `mapstructure:"store"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Run      RunConfig      `mapstructure:"run"`

	Gates   qualitygate.GateConfig `mapstructure:"gates"`
	Secrets SecretsConfig          `mapstructure:"secrets"`
}

type LLMConfig struct {
	Provider            string  `mapstructure:"provider"`
	Model               string  `mapstructure:"model"`
	APIKey              string  `mapstructure:"api_key"`
	BaseURL             string  `mapstructure:"base_url"`
	EmbedModel          string  `mapstructure:"embed_model"`
	Variant             string  `mapstructure:"variant"`
	CompletionPath      string  `mapstructure:"completion_path"`
	Temperature         float64 `mapstructure:"temperature"`
	MaxTokens           int     `mapstructure:"max_tokens"`
	MaxCompletionTokens int     `mapstructure:"max_completion_tokens"`

	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`

	// Per-agent overrides. Keys are agent names ("analyzer", "embedder").
	// Each override inherits unset fields from the top-level LLM config.
	Agents map[string]LLMAgentOverride `mapstructure:"agents"`
}

// LLMAgentOverride allows per-agent LLM provider configuration.
type LLMAgentOverride struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ResolveForAgent returns an LLMConfig with agent-specific overrides applied.
func (c LLMConfig) ResolveForAgent(agentName string) LLMConfig {
	override, ok := c.Agents[agentName]
	if !ok {
		return c
	}
	resolved := c
	if override.Provider != "" {
		resolved.Provider = override.Provider
	}
	if override.Model != "" {
		resolved.Model = override.Model
	}
	if override.APIKey != "" {
		resolved.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	return resolved
}

// ProviderConfig converts c into the factory's input.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:       c.Provider,
		APIKey:         c.APIKey,
		Model:          c.Model,
		BaseURL:        c.BaseURL,
		EmbedModel:     c.EmbedModel,
		Variant:        c.Variant,
		CompletionPath: c.CompletionPath,
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
		RetryDelay:     c.RetryDelay,
	}
}

// RateLimit returns the limiter settings, or nil when both limits are off.
func (c LLMConfig) RateLimit() *llm.RateLimitConfig {
	if c.RequestsPerMinute <= 0 && c.TokensPerMinute <= 0 {
		return nil
	}
	return &llm.RateLimitConfig{
		RequestsPerMinute: c.RequestsPerMinute,
		TokensPerMinute:   c.TokensPerMinute,
		BurstSize:         1,
	}
}

// StoreConfig selects the relational sink. An empty DSN disables it.
type StoreConfig struct {
	DSN            string        `mapstructure:"dsn"`
	BatchSize      int           `mapstructure:"batch_size"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	MaxQueryLength int           `mapstructure:"max_query_length"`
}

// GraphConfig points at Neo4j. An empty URI disables the graph sink.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// VectorConfig points at Qdrant. An empty host disables statement indexing.
type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig enables the /metrics and /api/ listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type RunConfig struct {
	ReportDir     string `mapstructure:"report_dir"`
	SkipProcessed bool   `mapstructure:"skip_processed"`
	Concurrency   int    `mapstructure:"concurrency"`
}

// SecretsConfig selects where "secret:<key>" values are resolved from.
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"` // env, file or vault
	File       string `mapstructure:"file"`
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
	VaultMount string `mapstructure:"vault_mount"`
	VaultPath  string `mapstructure:"vault_path"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// The gateway runs without keys; hosted providers need one.
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "gateway" &&
		c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.LLM.Variant != "" && c.LLM.Variant != llm.VariantChat && c.LLM.Variant != llm.VariantReasoning {
		warnings = append(warnings, fmt.Sprintf("LLM variant %q is not one of %q, %q", c.LLM.Variant, llm.VariantChat, llm.VariantReasoning))
	}

	if c.Store.BatchSize < 0 {
		warnings = append(warnings, fmt.Sprintf("store batch_size %d is negative", c.Store.BatchSize))
	}

	if c.Run.Concurrency < 0 {
		warnings = append(warnings, fmt.Sprintf("run concurrency %d is negative", c.Run.Concurrency))
	}

	if c.Gates.MinSuccessRate < 0 || c.Gates.MinSuccessRate > 1 {
		warnings = append(warnings, fmt.Sprintf("gates min_success_rate %.2f is outside [0, 1]", c.Gates.MinSuccessRate))
	}

	if c.Graph.URI != "" && c.Graph.Username == "" {
		warnings = append(warnings, "graph uri is set but username is empty")
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gateway")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.embed_model", "")
	v.SetDefault("llm.variant", "")
	v.SetDefault("llm.completion_path", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 16384)
	v.SetDefault("llm.max_completion_tokens", 0)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.tokens_per_minute", 0)

	v.SetDefault("store.dsn", "sqllineage.db")
	v.SetDefault("store.batch_size", 100)
	v.SetDefault("store.flush_interval", 5*time.Second)
	v.SetDefault("store.max_query_length", 60000)

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")

	v.SetDefault("vector.host", "")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "sql_statements")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "sqllineage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("run.report_dir", ".")
	v.SetDefault("run.skip_processed", false)
	v.SetDefault("run.concurrency", 1)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.file", "")
	v.SetDefault("secrets.vault_addr", "")
	v.SetDefault("secrets.vault_token", "")
	v.SetDefault("secrets.vault_mount", "secret")
	v.SetDefault("secrets.vault_path", "sqllineage")

	gates := qualitygate.DefaultConfig()
	v.SetDefault("gates.enabled", gates.Enabled)
	v.SetDefault("gates.min_success_rate", gates.MinSuccessRate)
	v.SetDefault("gates.success_severity", gates.SuccessSeverity)
	v.SetDefault("gates.max_failed_files", gates.MaxFailedFiles)
	v.SetDefault("gates.failed_severity", gates.FailedSeverity)
	v.SetDefault("gates.max_statement_errors", gates.MaxStatementErrors)
	v.SetDefault("gates.statement_severity", gates.StatementSeverity)
	v.SetDefault("gates.min_lineages", gates.MinLineages)
	v.SetDefault("gates.lineage_severity", gates.LineageSeverity)
}

// legacyKeys maps the flat dotenv names used by earlier deployments.
var legacyKeys = map[string]string{
	"llm_server_url":            "llm.base_url",
	"llm_model_name":            "llm.model",
	"llm_timeout_ms":            "llm.timeout",
	"llm_temperature":           "llm.temperature",
	"llm_max_tokens":            "llm.max_tokens",
	"llm_max_completion_tokens": "llm.max_completion_tokens",
}

// Load reads configuration from defaults, an optional file and the
// environment, in increasing priority. YAML, JSON and TOML files are read as
// nested sections; a .env file holds flat SECTION_KEY=value lines.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if isDotenv(path) {
			if err := mergeDotenv(v, path); err != nil {
				return nil, err
			}
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// LoadAndWarn is Load plus printing Validate's warnings to stderr.
func LoadAndWarn(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	for _, warning := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	return cfg, nil
}

func isDotenv(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasSuffix(base, ".env")
}

func mergeDotenv(v *viper.Viper, path string) error {
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("reading dotenv: %w", err)
	}

	prefix := strings.ToLower(EnvPrefix) + "_"
	for _, raw := range env.AllKeys() {
		val := env.GetString(raw)
		key := strings.TrimPrefix(raw, prefix)
		if mapped, ok := legacyKeys[key]; ok {
			switch key {
			case "llm_server_url":
				val = strings.TrimRight(val, "/") + "/v1"
			case "llm_timeout_ms":
				val += "ms"
			}
			v.SetDefault(mapped, val)
			continue
		}
		section, rest, ok := strings.Cut(key, "_")
		if !ok || !v.IsSet(section+"."+rest) {
			continue
		}
		v.SetDefault(section+"."+rest, val)
	}
	return nil
}
