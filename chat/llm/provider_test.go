package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sashabaranov/go-openai"
)

func TestConvertMessages(t *testing.T) {
	converted := convertMessages([]Message{
		SystemPrompt("be helpful"),
		UserMessage("hello"),
		AssistantMessage("hi"),
		{Role: "garbage", Content: "defaults to user"},
	})

	require.Len(t, converted, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, converted[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, converted[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, converted[2].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, converted[3].Role)
	assert.Equal(t, "be helpful", converted[0].Content)
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider(&Config{Provider: "openai", Model: "gpt-4o", APIKey: "k"})
	require.NoError(t, err)

	impl, ok := p.(*provider)
	require.True(t, ok)
	assert.Equal(t, 2048, impl.maxTokens)
	assert.InDelta(t, 0.7, impl.temperature, 1e-6)
	assert.Equal(t, 120, impl.timeout)
}
