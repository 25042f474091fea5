package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":5001" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" || cfg.Cache.Kind != "memory" {
		t.Fatal("expected memory defaults")
	}
	if cfg.JWT.Issuer != "dify-console" {
		t.Fatalf("unexpected issuer %q", cfg.JWT.Issuer)
	}
	if len(cfg.Languages) == 0 || cfg.Languages[0] != "en-US" {
		t.Fatalf("unexpected languages %v", cfg.Languages)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
app:
  env: dev
server:
  addr: ":8080"
features:
  allow_register: true
  allow_create_workspace: true
languages: ["ja-JP", "en-US"]
providers:
  github:
    enabled: true
    client_id: from-yaml
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GITHUB_CLIENT_ID", "from-env")
	t.Setenv("ALLOW_REGISTER", "false")
	t.Setenv("CONSOLE_LANGUAGES", "es-ES, fr-FR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("yaml addr lost: %q", cfg.Server.Addr)
	}
	// env always wins
	if cfg.Providers.GitHub.ClientID != "from-env" {
		t.Fatalf("env override lost: %q", cfg.Providers.GitHub.ClientID)
	}
	if cfg.Features.AllowRegister {
		t.Fatal("ALLOW_REGISTER=false must override yaml")
	}
	if len(cfg.Languages) != 2 || cfg.Languages[0] != "es-ES" || cfg.Languages[1] != "fr-FR" {
		t.Fatalf("csv override lost: %v", cfg.Languages)
	}
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for postgres without dsn")
	}
}

func TestDur(t *testing.T) {
	if got := Dur("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("unexpected duration %v", got)
	}
	if got := Dur("garbage", time.Minute); got != time.Minute {
		t.Fatalf("fallback lost: %v", got)
	}
	if got := Dur("", 5*time.Second); got != 5*time.Second {
		t.Fatalf("fallback lost: %v", got)
	}
}
