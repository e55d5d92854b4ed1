package secrets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// VaultConfig configures the HashiCorp Vault provider.
type VaultConfig struct {
	// Address is the Vault server address (e.g., "http://localhost:8200")
	Address string
	// Token is the Vault authentication token
	Token string
	// MountPath is the KV v2 mount (default: "secret")
	MountPath string
	// SecretPath is the path under the mount (default: "sqllineage")
	SecretPath string
	// Timeout for Vault API requests
	Timeout time.Duration
}

// DefaultVaultConfig returns default Vault configuration.
func DefaultVaultConfig() *VaultConfig {
	return &VaultConfig{
		Address:    "http://localhost:8200",
		MountPath:  "secret",
		SecretPath: "sqllineage",
		Timeout:    10 * time.Second,
	}
}

// VaultProvider reads one KV v2 secret and serves its keys. The secret is
// fetched once.
type VaultProvider struct {
	config *VaultConfig
	client *http.Client

	mu   sync.Mutex
	data map[string]string
}

// NewVaultProvider creates a Vault secrets provider.
func NewVaultProvider(config *VaultConfig) (*VaultProvider, error) {
	if config == nil {
		config = DefaultVaultConfig()
	}
	if config.Address == "" {
		return nil, fmt.Errorf("vault address required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("vault token required")
	}
	if config.MountPath == "" {
		config.MountPath = "secret"
	}
	if config.SecretPath == "" {
		config.SecretPath = "sqllineage"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &VaultProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data == nil {
		data, err := p.fetch(ctx)
		if err != nil {
			return "", err
		}
		p.data = data
	}
	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in vault %s", ErrNotFound, key, p.config.SecretPath)
	}
	return val, nil
}

func (p *VaultProvider) fetch(ctx context.Context) (map[string]string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s",
		strings.TrimSuffix(p.config.Address, "/"),
		p.config.MountPath,
		p.config.SecretPath,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.config.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: vault path %s", ErrNotFound, p.config.SecretPath)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vault error %d: %s", resp.StatusCode, body)
	}

	payload := gjson.GetBytes(body, "data.data")
	if !payload.IsObject() {
		return nil, fmt.Errorf("vault response has no data.data object")
	}
	data := make(map[string]string)
	payload.ForEach(func(k, v gjson.Result) bool {
		data[k.String()] = v.String()
		return true
	})
	return data, nil
}
