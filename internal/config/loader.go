package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file at this
// path is not an error.
const DefaultPath = "agentlive.yaml"

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderFoundry   = "foundry"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"

	SDKNative = "native"
	SDKEino   = "eino"
)

// ErrNoCredentials is returned when the selected provider has no key.
var ErrNoCredentials = errors.New("no model credentials configured")

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderFoundry:   "claude-sonnet-4-5",
	ProviderOpenAI:    "gpt-4o",
	ProviderOllama:    "llama3.1",
}

// Load reads and parses configuration from a YAML file. An empty path, or
// DefaultPath when it does not exist, yields defaults plus environment.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case path == "":
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		interpolated := interpolateEnv(string(data))
		if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads path into the process environment, overriding variables
// that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Overload(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnv fills fields the file left empty from the conventional variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	if cfg.LLM.Provider == "" {
		switch p := get("CLAUDE_PROVIDER"); p {
		case "azure_foundry", ProviderFoundry:
			cfg.LLM.Provider = ProviderFoundry
		case "":
			if get("ANTHROPIC_FOUNDRY_API_KEY") != "" && get("ANTHROPIC_API_KEY") == "" && get("ANTHROPIC_AUTH_TOKEN") == "" {
				cfg.LLM.Provider = ProviderFoundry
			}
		default:
			cfg.LLM.Provider = p
		}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = get("CLAUDE_MODEL")
	}

	switch cfg.LLM.Provider {
	case ProviderFoundry:
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = get("ANTHROPIC_FOUNDRY_API_KEY")
		}
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = get("ANTHROPIC_FOUNDRY_BASE_URL")
		}
	case ProviderOpenAI:
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = get("OPENAI_API_KEY")
		}
	case "", ProviderAnthropic:
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = get("ANTHROPIC_API_KEY")
		}
		if cfg.LLM.AuthToken == "" {
			cfg.LLM.AuthToken = get("ANTHROPIC_AUTH_TOKEN")
		}
	}

	if _, ok := lookup("NO_COLOR"); ok {
		cfg.Display.NoColor = true
	}
	if cfg.API.Token == "" {
		cfg.API.Token = get("AGENTLIVE_API_TOKEN")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "agentlive"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "info"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderAnthropic
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if cfg.LLM.Provider == ProviderOllama && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 16000
	}
	if cfg.LLM.Thinking.BudgetTokens == 0 {
		cfg.LLM.Thinking.BudgetTokens = 8000
	}

	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 25
	}
	if cfg.Agent.Deadline == 0 {
		cfg.Agent.Deadline = 10 * time.Minute
	}
	if cfg.Agent.WorkspaceDir == "" {
		cfg.Agent.WorkspaceDir = "./workspace"
	}
	if cfg.Agent.MaxParallel == 0 {
		cfg.Agent.MaxParallel = 4
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 2 * time.Minute
	}
	if cfg.Agent.QueueCapacity == 0 {
		cfg.Agent.QueueCapacity = 100
	}

	if cfg.Display.RefreshPerSecond == 0 {
		cfg.Display.RefreshPerSecond = 10
	}
	if cfg.Display.DefaultHeight == 0 {
		cfg.Display.DefaultHeight = 25
	}
	if cfg.Display.ThinkingFinalChars == 0 {
		cfg.Display.ThinkingFinalChars = 2000
	}
	if cfg.Display.ToolResultLines == 0 {
		cfg.Display.ToolResultLines = 10
	}
	if cfg.Display.MarkdownStyle == "" {
		cfg.Display.MarkdownStyle = "dark"
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:8090"
	}
	if cfg.API.HeartbeatInterval == 0 {
		cfg.API.HeartbeatInterval = 15 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/agentlive.db"
	}
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	switch cfg.LLM.Provider {
	case ProviderAnthropic, ProviderFoundry, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("llm.provider must be one of: anthropic, foundry, openai, ollama (got %q)", cfg.LLM.Provider)
	}
	switch cfg.LLM.SDK {
	case "", SDKNative, SDKEino:
	default:
		return fmt.Errorf("llm.sdk must be native or eino (got %q)", cfg.LLM.SDK)
	}
	if err := unresolved("llm.api_key", cfg.LLM.APIKey); err != nil {
		return err
	}
	if cfg.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if cfg.LLM.ThinkingEnabled() && cfg.LLM.UsesNativeSDK() {
		if cfg.LLM.Thinking.BudgetTokens < 1024 {
			return fmt.Errorf("llm.thinking.budget_tokens must be >= 1024 (got %d)", cfg.LLM.Thinking.BudgetTokens)
		}
		if cfg.LLM.Thinking.BudgetTokens >= cfg.LLM.MaxTokens {
			return fmt.Errorf("llm.thinking.budget_tokens %d must be less than llm.max_tokens %d", cfg.LLM.Thinking.BudgetTokens, cfg.LLM.MaxTokens)
		}
	}

	if cfg.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive")
	}
	if cfg.Agent.Deadline < 0 {
		return fmt.Errorf("agent.deadline must not be negative")
	}
	if cfg.Agent.MaxParallel < 0 {
		return fmt.Errorf("agent.max_parallel must not be negative")
	}

	if cfg.Display.RefreshPerSecond <= 0 {
		return fmt.Errorf("display.refresh_per_second must be positive")
	}
	if cfg.Display.DefaultHeight < 10 {
		return fmt.Errorf("display.default_height must be at least 10 (got %d)", cfg.Display.DefaultHeight)
	}
	if cfg.Display.ToolResultLines < 0 {
		return fmt.Errorf("display.tool_result_lines must not be negative")
	}

	if cfg.API.HeartbeatInterval <= 0 {
		return fmt.Errorf("api.heartbeat_interval must be positive")
	}
	return nil
}

// CheckCredentials reports ErrNoCredentials when the provider cannot be
// reached with the configured secrets.
func (c *Config) CheckCredentials() error {
	switch c.LLM.Provider {
	case ProviderAnthropic:
		if c.LLM.APIKey == "" && c.LLM.AuthToken == "" {
			return fmt.Errorf("%w: set ANTHROPIC_API_KEY or ANTHROPIC_AUTH_TOKEN", ErrNoCredentials)
		}
	case ProviderFoundry:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: set ANTHROPIC_FOUNDRY_API_KEY", ErrNoCredentials)
		}
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("%w: set ANTHROPIC_FOUNDRY_BASE_URL", ErrNoCredentials)
		}
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY", ErrNoCredentials)
		}
	}
	return nil
}

// CheckService validates the settings only the HTTP service needs.
func (c *Config) CheckService() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required")
	}
	return unresolved("api.token", c.API.Token)
}

func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
