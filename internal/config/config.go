// Package config loads the lina configuration file and watches the files that can
// change while the process runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/lina/internal/agent"
	"github.com/Kocoro-lab/lina/internal/auth"
	"github.com/Kocoro-lab/lina/internal/clients"
	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/policy"
	"github.com/Kocoro-lab/lina/internal/tracing"
)

// DefaultPath is read when CONFIG_PATH is not set.
const DefaultPath = "config/lina.yaml"

// EnvPrefix prefixes every environment override (LINA_LLM_BASE_URL, LINA_TOOLS_URL...).
const EnvPrefix = "LINA"

// Config is the full process configuration shared by the decision server, the
// gateway and the CLI.
type Config struct {
	Environment string `mapstructure:"environment"`

	Server    ServerConfig    `mapstructure:"server"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	LLM       llm.Config      `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Models    ModelsConfig    `mapstructure:"models"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Clients   clients.Config  `mapstructure:"clients"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Auth      auth.Config     `mapstructure:"auth"`
	Policy    policy.Config   `mapstructure:"policy"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
}

// ServerConfig configures the decision server (GET /tools, POST /execute).
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AdminPort       int           `mapstructure:"admin_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GatewayConfig configures the chat gateway.
type GatewayConfig struct {
	Port        int      `mapstructure:"port"`
	AdminPort   int      `mapstructure:"admin_port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ToolsConfig selects where tool calls run. An empty URL dispatches in-process.
type ToolsConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Remote reports whether tool calls go to a decision server over HTTP.
func (t ToolsConfig) Remote() bool { return t.URL != "" }

// AgentConfig configures the conversation loop.
type AgentConfig struct {
	agent.Config     `mapstructure:",squash"`
	SystemPromptPath string `mapstructure:"system_prompt_path"`
}

// ModelsConfig points at the model manifest.
type ModelsConfig struct {
	Manifest string `mapstructure:"manifest"`
}

// DecisionConfig tunes the decision pipeline gates.
type DecisionConfig struct {
	FraudThreshold float64 `mapstructure:"fraud_threshold"`
	TierRatio      float64 `mapstructure:"tier_ratio"`
}

// RedisConfig configures the shared rate limit store. An empty URL disables Redis.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// RateLimitConfig configures per-client request limits on the gateway.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.admin_port", 2112)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.admin_port", 2113)
	v.SetDefault("gateway.cors_origins", []string{"*"})

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.timeout", llm.DefaultTimeout)

	v.SetDefault("tools.url", "")
	v.SetDefault("tools.timeout", 60*time.Second)

	v.SetDefault("agent.model", "")
	v.SetDefault("agent.max_turns", agent.DefaultMaxTurns)
	v.SetDefault("agent.tool_gating", string(agent.GateAlways))
	v.SetDefault("agent.system_prompt_path", "SOUL.md")

	v.SetDefault("models.manifest", "models/models.yaml")

	v.SetDefault("decision.fraud_threshold", 0.5)
	v.SetDefault("decision.tier_ratio", 0.9)

	v.SetDefault("clients.driver", clients.DriverCSV)
	v.SetDefault("clients.financial_csv", "data/clientes.csv")
	v.SetDefault("clients.personal_csv", "data/clientes_dados.csv")
	v.SetDefault("clients.dsn", "")
	v.SetDefault("clients.auto_migrate", false)
	v.SetDefault("clients.max_open_conns", 10)

	v.SetDefault("redis.url", "")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 60)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "lina-gateway")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("policy.mode", string(policy.ModeOff))
	v.SetDefault("policy.path", "config/policies")
	v.SetDefault("policy.query", policy.DefaultQuery)
	v.SetDefault("policy.fail_closed", false)
	v.SetDefault("policy.environment", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "lina")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path (Path() when empty), applies LINA_ environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Short aliases kept for deployment scripts.
	_ = v.BindEnv("llm.base_url", "LINA_LLM_BASE_URL", "LINA_LLM_URL")
	_ = v.BindEnv("auth.jwt_secret", "LINA_AUTH_JWT_SECRET", "JWT_SECRET")

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Policy.Environment == "" {
		cfg.Policy.Environment = cfg.Environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.Tools.Timeout <= 0 {
		errs = append(errs, errors.New("tools.timeout must be positive"))
	}
	if c.Agent.MaxTurns < 1 {
		errs = append(errs, errors.New("agent.max_turns must be at least 1"))
	}
	if _, err := agent.ParseGating(string(c.Agent.Gating)); err != nil {
		errs = append(errs, fmt.Errorf("agent.tool_gating: %w", err))
	}
	if c.Decision.FraudThreshold < 0 || c.Decision.FraudThreshold > 1 {
		errs = append(errs, errors.New("decision.fraud_threshold must be in [0,1]"))
	}
	if c.Decision.TierRatio <= 0 || c.Decision.TierRatio > 1 {
		errs = append(errs, errors.New("decision.tier_ratio must be in (0,1]"))
	}
	switch c.Clients.Driver {
	case clients.DriverCSV, clients.DriverPostgres, clients.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("clients.driver %q is not one of csv, postgres, sqlite", c.Clients.Driver))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, errors.New("ratelimit.requests_per_minute must be at least 1"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
