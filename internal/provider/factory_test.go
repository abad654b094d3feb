package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/config"
)

func TestNewStreamerSelectsClient(t *testing.T) {
	ctx := context.Background()

	native, err := NewStreamer(ctx, config.LLMConfig{
		Provider:  config.ProviderAnthropic,
		Model:     "claude-sonnet-4-5",
		APIKey:    "sk-test",
		MaxTokens: 16000,
		Thinking:  config.ThinkingConfig{BudgetTokens: 8000},
	})
	require.NoError(t, err)
	assert.IsType(t, &agent.AnthropicStreamer{}, native)

	viaEino, err := NewStreamer(ctx, config.LLMConfig{
		Provider:  config.ProviderOllama,
		Model:     "llama3.1",
		MaxTokens: 4096,
	})
	require.NoError(t, err)
	assert.IsType(t, &agent.EinoStreamer{}, viaEino)
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.LLMConfig{Provider: "bard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported llm provider")
}

func TestNewAnthropicClientForFoundry(t *testing.T) {
	client := NewAnthropicClient(config.LLMConfig{
		Provider: config.ProviderFoundry,
		APIKey:   "fk",
		BaseURL:  "https://example.services.ai.azure.com/anthropic",
	})
	assert.NotNil(t, client)
}
