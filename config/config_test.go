package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildMergesSourcesInOrder(t *testing.T) {
	cfg, err := NewBuilder().
		AddInMemory(map[string]any{
			"server": map[string]any{"host": "localhost", "port": 8080},
		}).
		AddInMemory(map[string]any{
			"server": map[string]any{"port": 9090},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := cfg.Get("server.host"); got != "localhost" {
		t.Errorf("Expected 'localhost', got '%s'", got)
	}
	port, err := cfg.GetInt("server.port")
	if err != nil || port != 9090 {
		t.Errorf("later sources should override, got %d (%v)", port, err)
	}
}

func TestPathSeparators(t *testing.T) {
	cfg, _ := NewBuilder().
		AddInMemory(map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}}).
		Build()

	if cfg.Get("a.b.c") != "deep" {
		t.Error("dot separator should work")
	}
	if cfg.Get("a:b:c") != "deep" {
		t.Error("colon separator should work")
	}
	if _, ok := cfg.Lookup("a.b.missing"); ok {
		t.Error("missing key should report absence")
	}
}

func TestYAMLFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	content := []byte("database:\n  dsn: file:test.db\n  pool: 5\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewBuilder().AddYAMLFile(path).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Get("database.dsn") != "file:test.db" {
		t.Errorf("Unexpected dsn: %s", cfg.Get("database.dsn"))
	}
	pool, err := cfg.GetInt("database.pool")
	if err != nil || pool != 5 {
		t.Errorf("Expected pool 5, got %d (%v)", pool, err)
	}
}

func TestJSONFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	if err := os.WriteFile(path, []byte(`{"feature":{"enabled":true}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewBuilder().AddJSONFile(path).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	enabled, err := cfg.GetBool("feature.enabled")
	if err != nil || !enabled {
		t.Errorf("Expected enabled=true, got %v (%v)", enabled, err)
	}
}

func TestMissingFileSource(t *testing.T) {
	if _, err := NewBuilder().AddJSONFile("/nonexistent.json").Build(); err == nil {
		t.Error("missing required file should fail the build")
	}
	if _, err := NewBuilder().AddJSONFile("/nonexistent.json", true).Build(); err != nil {
		t.Errorf("optional missing file should be skipped, got %v", err)
	}
}

func TestEtcdOptionsDefaults(t *testing.T) {
	// 字面量构造的源在 Load 内补齐默认超时，零值不会立刻过期
	opts := EtcdOptions{Endpoints: []string{"localhost:2379"}}.withDefaults()
	if opts.Timeout != 5*time.Second {
		t.Errorf("Expected 5s default timeout, got %v", opts.Timeout)
	}
	if opts.DialTimeout != 5*time.Second {
		t.Errorf("Expected 5s default dial timeout, got %v", opts.DialTimeout)
	}

	custom := EtcdOptions{Timeout: time.Second, DialTimeout: 2 * time.Second}.withDefaults()
	if custom.Timeout != time.Second || custom.DialTimeout != 2*time.Second {
		t.Error("explicit timeouts must not be overridden")
	}
}

func TestEnvironmentSource(t *testing.T) {
	t.Setenv("MYAPP_CACHE_TTL", "30")

	cfg, err := NewBuilder().AddEnvironment("MYAPP_").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ttl, err := cfg.GetInt("cache.ttl")
	if err != nil || ttl != 30 {
		t.Errorf("Expected ttl 30, got %d (%v)", ttl, err)
	}
}

func TestSectionAndBind(t *testing.T) {
	cfg, _ := NewBuilder().
		AddInMemory(map[string]any{
			"redis": map[string]any{"addr": "localhost:6379", "db": 2},
		}).
		Build()

	section := cfg.Section("redis")
	if section.Get("addr") != "localhost:6379" {
		t.Errorf("Unexpected section value: %s", section.Get("addr"))
	}

	var target struct {
		Addr string `json:"addr"`
		DB   int    `json:"db"`
	}
	if err := cfg.Bind("redis", &target); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if target.Addr != "localhost:6379" || target.DB != 2 {
		t.Errorf("Bind produced %+v", target)
	}
}

func TestResolverSinglePlaceholder(t *testing.T) {
	cfg, _ := NewBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"port": 8080}}).
		Build()
	r := NewResolver(cfg)

	value, err := r.Resolve("${server.port}")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// 整串占位符保留原始类型
	if value != 8080 {
		t.Errorf("Expected int 8080, got %v (%T)", value, value)
	}
}

func TestResolverDefaults(t *testing.T) {
	cfg, _ := NewBuilder().AddInMemory(map[string]any{}).Build()
	r := NewResolver(cfg)

	value, err := r.Resolve("${missing.key|fallback}")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if value != "fallback" {
		t.Errorf("Expected 'fallback', got %v", value)
	}

	if _, err := r.Resolve("${missing.key}"); err == nil {
		t.Error("missing key without default should fail")
	}
}

func TestResolverInterpolation(t *testing.T) {
	cfg, _ := NewBuilder().
		AddInMemory(map[string]any{
			"host": "db.internal",
			"port": 5432,
		}).
		Build()
	r := NewResolver(cfg)

	value, err := r.Resolve("postgres://${host}:${port}/app")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if value != "postgres://db.internal:5432/app" {
		t.Errorf("Unexpected interpolation: %v", value)
	}

	if _, err := r.Resolve("${unterminated"); err == nil {
		t.Error("unterminated placeholder should fail")
	}
}
