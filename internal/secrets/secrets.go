// Package secrets resolves "secret:<key>" references in configuration from
// the environment, a JSON file or HashiCorp Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// RefPrefix marks a configuration value that names a secret instead of
// holding it, e.g. api_key: secret:llm_api_key.
const RefPrefix = "secret:"

// ErrNotFound is returned when no backend holds a key.
var ErrNotFound = errors.New("secret not found")

// Provider is a secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Config configures the secrets manager.
type Config struct {
	// Provider selects the backend: "env", "file" or "vault".
	Provider    string
	VaultConfig *VaultConfig
	FileConfig  *FileConfig
	// EnvPrefix prefixes environment variable names (default: "SQLLINEAGE_").
	EnvPrefix string
}

// DefaultConfig returns the env-backed configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "env",
		EnvPrefix: "SQLLINEAGE_",
	}
}

// Manager reads secrets from a primary backend with the environment as
// fallback. Values are cached for the life of the manager.
type Manager struct {
	primary  Provider
	fallback Provider
	cache    map[string]string
	cacheMu  sync.RWMutex
	useCache bool
}

// NewManager creates a secrets manager with the specified configuration.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var primary Provider
	var err error

	switch cfg.Provider {
	case "vault":
		if cfg.VaultConfig == nil {
			return nil, fmt.Errorf("vault config required for vault provider")
		}
		primary, err = NewVaultProvider(cfg.VaultConfig)
		if err != nil {
			return nil, fmt.Errorf("create vault provider: %w", err)
		}
	case "file":
		if cfg.FileConfig == nil {
			return nil, fmt.Errorf("file config required for file provider")
		}
		primary, err = NewFileProvider(cfg.FileConfig)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
	case "env", "":
		primary = NewEnvProvider(cfg.EnvPrefix)
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}

	m := &Manager{
		primary:  primary,
		cache:    make(map[string]string),
		useCache: true,
	}
	if primary.Name() != "env" {
		m.fallback = NewEnvProvider(cfg.EnvPrefix)
	}
	return m, nil
}

// Name returns the primary backend name.
func (m *Manager) Name() string { return m.primary.Name() }

// Get retrieves a secret, trying primary then fallback.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if m.useCache {
		m.cacheMu.RLock()
		val, ok := m.cache[key]
		m.cacheMu.RUnlock()
		if ok {
			return val, nil
		}
	}

	val, err := m.primary.Get(ctx, key)
	if err == nil && val != "" {
		m.cacheSet(key, val)
		return val, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if m.fallback != nil {
		if fv, ferr := m.fallback.Get(ctx, key); ferr == nil && fv != "" {
			m.cacheSet(key, fv)
			return fv, nil
		}
	}

	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%s: %w", m.primary.Name(), err)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Resolve returns value unchanged unless it is a secret reference, in which
// case the referenced secret is returned.
func (m *Manager) Resolve(ctx context.Context, value string) (string, error) {
	key, ok := strings.CutPrefix(value, RefPrefix)
	if !ok {
		return value, nil
	}
	return m.Get(ctx, strings.TrimSpace(key))
}

// ResolveAll resolves each field in place. Every field is attempted; the
// errors are joined.
func (m *Manager) ResolveAll(ctx context.Context, fields ...*string) error {
	var errs []error
	for _, f := range fields {
		if f == nil {
			continue
		}
		v, err := m.Resolve(ctx, *f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f = v
	}
	return errors.Join(errs...)
}

// IsRef reports whether value is a secret reference.
func IsRef(value string) bool { return strings.HasPrefix(value, RefPrefix) }

// ClearCache clears the secrets cache.
func (m *Manager) ClearCache() {
	m.cacheMu.Lock()
	m.cache = make(map[string]string)
	m.cacheMu.Unlock()
}

// DisableCache disables caching.
func (m *Manager) DisableCache() {
	m.useCache = false
}

func (m *Manager) cacheSet(key, value string) {
	if m.useCache {
		m.cacheMu.Lock()
		m.cache[key] = value
		m.cacheMu.Unlock()
	}
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based secrets provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "SQLLINEAGE_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

// Get looks up PREFIX_KEY, then KEY.
func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: env %s", ErrNotFound, envKey)
}
