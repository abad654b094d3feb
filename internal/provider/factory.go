package provider

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/config"
)

// NewStreamer returns the round driver for the configured provider: the
// native Anthropic client for anthropic and foundry unless llm.sdk is eino,
// an eino chat model otherwise.
func NewStreamer(ctx context.Context, cfg config.LLMConfig) (agent.Streamer, error) {
	if cfg.UsesNativeSDK() {
		budget := 0
		if cfg.ThinkingEnabled() {
			budget = cfg.Thinking.BudgetTokens
		}
		return agent.NewAnthropicStreamer(NewAnthropicClient(cfg), agent.AnthropicOptions{
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			ThinkingBudget: budget,
		})
	}
	m, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return agent.NewEinoStreamer(m), nil
}

// NewAnthropicClient builds the Anthropic Messages client. Foundry endpoints
// take the key in an api-key header at their own base URL.
func NewAnthropicClient(cfg config.LLMConfig) *sdk.MessageService {
	var opts []option.RequestOption
	switch {
	case cfg.Provider == config.ProviderFoundry:
		opts = append(opts,
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey(cfg.APIKey),
			option.WithHeader("api-key", cfg.APIKey),
		)
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.AuthToken != "":
		opts = append(opts, option.WithAuthToken(cfg.AuthToken))
	}
	if cfg.Provider != config.ProviderFoundry && cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := sdk.NewClient(opts...)
	return &client.Messages
}

// NewChatModel creates an Eino ChatModel from config.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.ToolCallingChatModel, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic, config.ProviderFoundry:
		return newClaudeModel(ctx, cfg)
	case config.ProviderOpenAI:
		return newOpenAIModel(ctx, cfg)
	case config.ProviderOllama:
		return newOllamaModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q (supported: anthropic, foundry, openai, ollama)", cfg.Provider)
	}
}

func newClaudeModel(ctx context.Context, cfg config.LLMConfig) (model.ToolCallingChatModel, error) {
	claudeCfg := &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	if cfg.BaseURL != "" {
		claudeCfg.BaseURL = &cfg.BaseURL
	}
	if cfg.ThinkingEnabled() {
		claudeCfg.Thinking = &claude.Thinking{
			Enable:       true,
			BudgetTokens: cfg.Thinking.BudgetTokens,
		}
	}

	m, err := claude.NewChatModel(ctx, claudeCfg)
	if err != nil {
		return nil, fmt.Errorf("create claude model: %w", err)
	}
	return m, nil
}

func newOpenAIModel(ctx context.Context, cfg config.LLMConfig) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.MaxTokens
	openAICfg := &openai.ChatModelConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
	}
	if cfg.BaseURL != "" {
		openAICfg.BaseURL = cfg.BaseURL
	}

	m, err := openai.NewChatModel(ctx, openAICfg)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return m, nil
}

func newOllamaModel(ctx context.Context, cfg config.LLMConfig) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	ollamaCfg := &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
	}

	m, err := ollama.NewChatModel(ctx, ollamaCfg)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return m, nil
}
