package app

import (
	"context"
	"fmt"
	"os"

	"github.com/efebarandurmaz/sqllineage/internal/config"
	"github.com/efebarandurmaz/sqllineage/internal/secrets"
)

// ResolveSecrets replaces "secret:<key>" values in credential fields of cfg.
// No backend is contacted when nothing references a secret.
func ResolveSecrets(ctx context.Context, cfg *config.Config) error {
	fields := []*string{&cfg.LLM.APIKey, &cfg.Graph.Username, &cfg.Graph.Password, &cfg.Store.DSN}
	refs := false
	for _, f := range fields {
		refs = refs || secrets.IsRef(*f)
	}
	for _, o := range cfg.LLM.Agents {
		refs = refs || secrets.IsRef(o.APIKey)
	}
	if !refs {
		return nil
	}

	m, err := secrets.NewManager(managerConfig(cfg.Secrets))
	if err != nil {
		return err
	}
	if err := m.ResolveAll(ctx, fields...); err != nil {
		return fmt.Errorf("resolve secrets (%s): %w", m.Name(), err)
	}
	for name, o := range cfg.LLM.Agents {
		if err := m.ResolveAll(ctx, &o.APIKey); err != nil {
			return fmt.Errorf("resolve secrets for agent %s (%s): %w", name, m.Name(), err)
		}
		cfg.LLM.Agents[name] = o
	}
	return nil
}

func managerConfig(c config.SecretsConfig) *secrets.Config {
	out := &secrets.Config{Provider: c.Provider, EnvPrefix: config.EnvPrefix + "_"}
	switch c.Provider {
	case "file":
		out.FileConfig = &secrets.FileConfig{Path: c.File}
	case "vault":
		token := c.VaultToken
		if token == "" {
			token = os.Getenv("VAULT_TOKEN")
		}
		out.VaultConfig = &secrets.VaultConfig{
			Address:    c.VaultAddr,
			Token:      token,
			MountPath:  c.VaultMount,
			SecretPath: c.VaultPath,
		}
	}
	return out
}
