package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse %s response: %v", path, err)
	}
	return w, resp
}

func TestNewHealthServer(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "1.0.0"})
	if s.version != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %s", s.version)
	}
	if s.ready {
		t.Fatal("expected not ready initially")
	}
	if !s.live {
		t.Fatal("expected live initially")
	}
}

func TestHealthServer_Probes(t *testing.T) {
	s := NewHealthServer(nil)
	h := s.Handler()

	tests := []struct {
		name  string
		path  string
		setup func()
		code  int
	}{
		{"not ready", "/ready", func() {}, http.StatusServiceUnavailable},
		{"ready", "/ready", func() { s.SetReady(true) }, http.StatusOK},
		{"readyz alias", "/readyz", func() {}, http.StatusOK},
		{"live", "/live", func() {}, http.StatusOK},
		{"not live", "/livez", func() { s.SetLive(false) }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			w, _ := get(t, h, tt.path)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestHealthServer_HandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthStatus
		want   HealthStatus
		code   int
	}{
		{"no checks", nil, HealthStatusHealthy, http.StatusOK},
		{"all healthy", map[string]HealthStatus{"sqlite": HealthStatusHealthy, "temporal": HealthStatusHealthy}, HealthStatusHealthy, http.StatusOK},
		{"degraded", map[string]HealthStatus{"sqlite": HealthStatusHealthy, "neo4j": HealthStatusDegraded}, HealthStatusDegraded, http.StatusOK},
		{"unhealthy wins", map[string]HealthStatus{"neo4j": HealthStatusDegraded, "temporal": HealthStatusUnhealthy}, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHealthServer(&HealthConfig{Version: "0.3.0"})
			for name, status := range tt.checks {
				s.RegisterCheck(name, func(context.Context) HealthCheck { return HealthCheck{Status: status} })
			}
			w, resp := get(t, s.Handler(), "/healthz")
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			if resp.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, resp.Status)
			}
			if resp.Version != "0.3.0" || len(resp.Checks) != len(tt.checks) {
				t.Fatalf("unexpected response %+v", resp)
			}
			if w.Header().Get("Content-Type") != "application/json" {
				t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHealthServer_ChecksSortedByName(t *testing.T) {
	s := NewHealthServer(nil)
	for _, n := range []string{"temporal", "neo4j", "sqlite"} {
		s.RegisterCheck(n, func(context.Context) HealthCheck { return HealthCheck{Status: HealthStatusHealthy} })
	}
	_, resp := get(t, s.Handler(), "/health")
	if resp.Checks[0].Name != "neo4j" || resp.Checks[2].Name != "temporal" {
		t.Fatalf("unexpected order %+v", resp.Checks)
	}
}

func TestHealthServer_Mount(t *testing.T) {
	s := NewHealthServer(nil)
	s.Mount("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "sqllineage_files_total 0\n")
	}))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "sqllineage_files_total 0\n" {
		t.Fatalf("mounted handler not served: %d %q", w.Code, w.Body.String())
	}
}

func TestHealthServer_ListenAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := NewHealthServer(nil)
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/live")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHealthServer_ShutdownBeforeListen(t *testing.T) {
	s := NewHealthServer(nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.ListenAndServe("127.0.0.1:0"); err != nil {
		t.Fatalf("expected immediate nil return, got %v", err)
	}
}

func TestRequiredCheckers(t *testing.T) {
	fail := func(context.Context) error { return errors.New("connection refused") }
	ok := func(context.Context) error { return nil }

	for name, mk := range map[string]func(func(context.Context) error) HealthChecker{
		"temporal": TemporalHealthChecker,
		"database": DatabaseHealthChecker,
	} {
		t.Run(name, func(t *testing.T) {
			if c := mk(ok)(context.Background()); c.Status != HealthStatusHealthy {
				t.Fatalf("expected healthy, got %s", c.Status)
			}
			c := mk(fail)(context.Background())
			if c.Status != HealthStatusUnhealthy {
				t.Fatalf("expected unhealthy, got %s", c.Status)
			}
			if c.Message == "" {
				t.Fatal("expected a message")
			}
		})
	}
}

func TestSinkHealthChecker(t *testing.T) {
	c := SinkHealthChecker("neo4j", func(context.Context) error { return errors.New("no route") })(context.Background())
	if c.Status != HealthStatusDegraded || c.Details["sink"] != "neo4j" {
		t.Fatalf("unexpected check %+v", c)
	}
	c = SinkHealthChecker("qdrant", func(context.Context) error { return nil })(context.Background())
	if c.Status != HealthStatusHealthy {
		t.Fatalf("unexpected check %+v", c)
	}
}

func TestLLMHealthChecker(t *testing.T) {
	c := LLMHealthChecker("gateway", nil)(context.Background())
	if c.Status != HealthStatusHealthy || c.Details["provider"] != "gateway" {
		t.Fatalf("unexpected check %+v", c)
	}
	c = LLMHealthChecker("gateway", func(context.Context) error { return errors.New("429") })(context.Background())
	if c.Status != HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", c.Status)
	}
}
