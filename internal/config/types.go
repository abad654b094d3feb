package config

import "time"

// Config represents the complete agentlive configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Display  DisplayConfig  `yaml:"display"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	// LogFile receives logs from terminal commands. Empty discards them.
	LogFile string `yaml:"log_file,omitempty"`
}

// LLMConfig defines the model provider settings.
type LLMConfig struct {
	// Provider is one of anthropic, foundry, openai, ollama.
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	AuthToken string `yaml:"auth_token,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	MaxTokens int    `yaml:"max_tokens"`
	// SDK selects the client for anthropic and foundry: native (default) or
	// eino. Other providers always use eino.
	SDK      string         `yaml:"sdk,omitempty"`
	Thinking ThinkingConfig `yaml:"thinking"`
}

// ThinkingConfig controls extended thinking.
type ThinkingConfig struct {
	Enabled      *bool `yaml:"enabled,omitempty"`
	BudgetTokens int   `yaml:"budget_tokens"`
}

// AgentConfig defines how runs are driven.
type AgentConfig struct {
	MaxSteps       int           `yaml:"max_steps"`
	Deadline       time.Duration `yaml:"deadline"`
	WorkspaceDir   string        `yaml:"workspace_dir"`
	ParallelTools  *bool         `yaml:"parallel_tools,omitempty"`
	MaxParallel    int           `yaml:"max_parallel"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
	SystemPrompt   string        `yaml:"system_prompt,omitempty"`
}

// DisplayConfig is turned into an explicit renderer configuration.
type DisplayConfig struct {
	RefreshPerSecond   int    `yaml:"refresh_per_second"`
	DefaultHeight      int    `yaml:"default_height"`
	Width              int    `yaml:"width"`
	NoColor            bool   `yaml:"no_color"`
	ASCII              bool   `yaml:"ascii"`
	ShowThinking       *bool  `yaml:"show_thinking,omitempty"`
	ThinkingFinalChars int    `yaml:"thinking_final_chars"`
	ToolResultLines    int    `yaml:"tool_result_lines"`
	MarkdownStyle      string `yaml:"markdown_style"`
	Verbose            bool   `yaml:"verbose"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen            string        `yaml:"listen"`
	Token             string        `yaml:"token"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// DatabaseConfig defines the SQLite usage ledger.
type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// ThinkingEnabled reports whether extended thinking was requested.
func (c LLMConfig) ThinkingEnabled() bool {
	return boolOr(c.Thinking.Enabled, true)
}

// UsesNativeSDK reports whether the native Anthropic client drives the model.
func (c LLMConfig) UsesNativeSDK() bool {
	switch c.Provider {
	case ProviderAnthropic, ProviderFoundry:
		return c.SDK == "" || c.SDK == SDKNative
	}
	return false
}

func (c AgentConfig) Parallel() bool {
	return boolOr(c.ParallelTools, true)
}

func (c DisplayConfig) Thinking() bool {
	return boolOr(c.ShowThinking, true)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
