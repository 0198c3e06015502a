package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "memory" || !cfg.Store.Seed {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Server.Addr != ":3001" || cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Auth.ChallengeTTL != 5*time.Minute || cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.AI.APIKey != "" || cfg.AI.MaxTokens != 500 {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.Policy.RequireFutureDeadline || cfg.Policy.RejectPendingOnAccept {
		t.Errorf("policy = %+v", cfg.Policy)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coai.yaml")
	content := `
store:
  driver: postgres
  pg_dsn: postgres://coai@localhost/coai
  seed: false
auth:
  session_ttl: 2h
  admin_wallets:
    - AdminWa11et
policy:
  reject_pending_on_accept: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.Seed || !strings.HasPrefix(cfg.Store.PGDSN, "postgres://") {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour || !slices.Equal(cfg.Auth.AdminWallets, []string{"AdminWa11et"}) {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if !cfg.Policy.RejectPendingOnAccept {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	// untouched keys keep their defaults
	if cfg.Auth.ChallengeTTL != 5*time.Minute {
		t.Errorf("challenge ttl = %v", cfg.Auth.ChallengeTTL)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("COAI_SERVER_ADDR", ":9000")
	t.Setenv("COAI_AUTH_SESSION_TTL", "90m")
	t.Setenv("COAI_AUTH_ADMIN_WALLETS", "WalletA,WalletB")
	t.Setenv("COAI_AI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Auth.SessionTTL != 90*time.Minute {
		t.Errorf("session ttl = %v", cfg.Auth.SessionTTL)
	}
	if !slices.Equal(cfg.Auth.AdminWallets, []string{"WalletA", "WalletB"}) {
		t.Errorf("admin wallets = %q", cfg.Auth.AdminWallets)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.AI.APIKey)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("COAI_STORE_DRIVER", "postgres")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "pg_dsn") {
		t.Errorf("postgres without dsn: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown driver": func(c *Config) { c.Store.Driver = "sqlite" },
		"zero session":   func(c *Config) { c.Auth.SessionTTL = 0 },
		"zero timeout":   func(c *Config) { c.Server.RequestTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{RequestTimeout: time.Second},
				Store:  StoreConfig{Driver: "memory"},
				Auth:   AuthConfig{ChallengeTTL: time.Minute, SessionTTL: time.Hour},
			}
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
