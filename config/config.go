package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COAI_STORE_PG_DSN.
const EnvPrefix = "COAI"

// Config is the full backend configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Auth   AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Escrow EscrowConfig `yaml:"escrow" mapstructure:"escrow"`
	AI     AIConfig     `yaml:"ai" mapstructure:"ai"`
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// Login attempts allowed per client IP per AuthRateWindow.
	AuthRateLimit  int           `yaml:"auth_rate_limit" mapstructure:"auth_rate_limit"`
	AuthRateWindow time.Duration `yaml:"auth_rate_window" mapstructure:"auth_rate_window"`
}

// StoreConfig selects the marketplace store.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // memory | postgres
	PGDSN  string `yaml:"pg_dsn" mapstructure:"pg_dsn"`
	Seed   bool   `yaml:"seed" mapstructure:"seed"`
}

// AuthConfig configures wallet login.
type AuthConfig struct {
	ChallengeTTL time.Duration `yaml:"challenge_ttl" mapstructure:"challenge_ttl"`
	SessionTTL   time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	AdminWallets []string      `yaml:"admin_wallets" mapstructure:"admin_wallets"`
}

// EscrowConfig names the wallet that holds escrowed funds.
type EscrowConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
}

// AIConfig configures the OpenAI-compatible suggestion endpoint. An empty
// APIKey disables suggestions.
type AIConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PolicyConfig toggles optional marketplace rules.
type PolicyConfig struct {
	RequireFutureDeadline bool `yaml:"require_future_deadline" mapstructure:"require_future_deadline"`
	RejectPendingOnAccept bool `yaml:"reject_pending_on_accept" mapstructure:"reject_pending_on_accept"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.auth_rate_limit", 20)
	v.SetDefault("server.auth_rate_window", time.Minute)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.pg_dsn", "")
	v.SetDefault("store.seed", true)

	v.SetDefault("auth.challenge_ttl", 5*time.Minute)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_wallets", []string{})

	v.SetDefault("escrow.address", "CoAiEscrowWa11et111111111111111111111111111")

	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 500)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 30*time.Second)

	v.SetDefault("policy.require_future_deadline", false)
	v.SetDefault("policy.reject_pending_on_accept", false)
}

// Load reads defaults, then the optional YAML file at path, then COAI_*
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.PGDSN == "" {
			return fmt.Errorf("store.pg_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.ChallengeTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth ttls must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	return nil
}
