package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeSecrets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ==================== EnvProvider Tests ====================

func TestEnvProvider_Get(t *testing.T) {
	t.Setenv("SQLLINEAGE_TEST_SECRET", "prefixed")
	t.Setenv("TEST_SECRET_NO_PREFIX", "direct")

	p := NewEnvProvider("")
	if p.Name() != "env" {
		t.Fatalf("expected 'env', got %s", p.Name())
	}
	if val, err := p.Get(context.Background(), "test_secret"); err != nil || val != "prefixed" {
		t.Errorf("prefixed lookup = %q, %v", val, err)
	}
	if val, err := p.Get(context.Background(), "test_secret_no_prefix"); err != nil || val != "direct" {
		t.Errorf("bare lookup = %q, %v", val, err)
	}
}

func TestEnvProvider_Get_NotFound(t *testing.T) {
	_, err := NewEnvProvider("X_").Get(context.Background(), "nonexistent_secret_xyz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ==================== FileProvider Tests ====================

func TestFileProvider_GetAndReload(t *testing.T) {
	path := writeSecrets(t, `{"llm_api_key": "sk-file"}`)
	p, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if val, err := p.Get(ctx, "llm_api_key"); err != nil || val != "sk-file" {
		t.Fatalf("got %q, %v", val, err)
	}
	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"llm_api_key": "sk-rotated"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if val, _ := p.Get(ctx, "llm_api_key"); val != "sk-rotated" {
		t.Errorf("reload not applied, got %q", val)
	}
}

func TestFileProvider_Errors(t *testing.T) {
	if _, err := NewFileProvider(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewFileProvider(&FileConfig{Path: filepath.Join(t.TempDir(), "none.json")}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewFileProvider(&FileConfig{Path: writeSecrets(t, "not json")}); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ==================== VaultProvider Tests ====================

func newVault(t *testing.T, status int, body string, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.URL.Path != "/v1/kv/data/etl" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Vault-Token") != "root" {
			t.Errorf("missing token header")
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultProvider_Get(t *testing.T) {
	calls := 0
	srv := newVault(t, http.StatusOK, `{"data":{"data":{"graph_password":"neo","port":7687}}}`, &calls)

	p, err := NewVaultProvider(&VaultConfig{Address: srv.URL + "/", Token: "root", MountPath: "kv", SecretPath: "etl"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if val, err := p.Get(ctx, "graph_password"); err != nil || val != "neo" {
		t.Fatalf("got %q, %v", val, err)
	}
	if val, _ := p.Get(ctx, "port"); val != "7687" {
		t.Errorf("non-string values are stringified, got %q", val)
	}
	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one fetch, got %d", calls)
	}
}

func TestVaultProvider_Errors(t *testing.T) {
	calls := 0
	srv := newVault(t, http.StatusForbidden, `{"errors":["permission denied"]}`, &calls)
	p, _ := NewVaultProvider(&VaultConfig{Address: srv.URL, Token: "root", MountPath: "kv", SecretPath: "etl"})
	if _, err := p.Get(context.Background(), "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected status error, got %v", err)
	}

	if _, err := NewVaultProvider(&VaultConfig{Address: "http://x"}); err == nil {
		t.Error("expected error without token")
	}
}

// ==================== Manager Tests ====================

func TestManager_DefaultConfig(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != "env" || m.fallback != nil {
		t.Errorf("expected env manager without fallback, got %s", m.Name())
	}
}

func TestManager_FileWithEnvFallback(t *testing.T) {
	t.Setenv("SQLLINEAGE_GRAPH_PASSWORD", "from-env")
	m, err := NewManager(&Config{
		Provider:   "file",
		FileConfig: &FileConfig{Path: writeSecrets(t, `{"llm_api_key": "sk-file"}`)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if val, _ := m.Get(ctx, "llm_api_key"); val != "sk-file" {
		t.Errorf("primary lookup got %q", val)
	}
	if val, _ := m.Get(ctx, "graph_password"); val != "from-env" {
		t.Errorf("fallback lookup got %q", val)
	}
	if _, err := m.Get(ctx, "nothing_here_xyz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_Cache(t *testing.T) {
	t.Setenv("SQLLINEAGE_CACHED", "v1")
	m, _ := NewManager(nil)
	ctx := context.Background()

	m.Get(ctx, "cached")
	t.Setenv("SQLLINEAGE_CACHED", "v2")
	if val, _ := m.Get(ctx, "cached"); val != "v1" {
		t.Errorf("expected cached v1, got %q", val)
	}

	m.ClearCache()
	if val, _ := m.Get(ctx, "cached"); val != "v2" {
		t.Errorf("expected v2 after clear, got %q", val)
	}

	m.DisableCache()
	t.Setenv("SQLLINEAGE_CACHED", "v3")
	if val, _ := m.Get(ctx, "cached"); val != "v3" {
		t.Errorf("expected v3 with cache disabled, got %q", val)
	}
}

func TestManager_ResolveAll(t *testing.T) {
	t.Setenv("SQLLINEAGE_LLM_API_KEY", "sk-env")
	m, _ := NewManager(nil)

	apiKey := "secret:llm_api_key"
	plain := "literal"
	missing := "secret:absent_key_xyz"
	err := m.ResolveAll(context.Background(), &apiKey, &plain, nil, &missing)

	if apiKey != "sk-env" || plain != "literal" {
		t.Errorf("unexpected values %q %q", apiKey, plain)
	}
	if !errors.Is(err, ErrNotFound) || missing != "secret:absent_key_xyz" {
		t.Errorf("expected unresolved reference to be reported, got %v (%q)", err, missing)
	}
	if !IsRef(missing) || IsRef(plain) {
		t.Error("IsRef mismatch")
	}
}

func TestManager_ConfigErrors(t *testing.T) {
	for name, cfg := range map[string]*Config{
		"unknown": {Provider: "s3"},
		"vault":   {Provider: "vault"},
		"file":    {Provider: "file"},
	} {
		if _, err := NewManager(cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
