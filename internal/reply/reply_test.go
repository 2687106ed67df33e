// ABOUTME: Tests for the provider selector, prompt assembly, and history mapping
// ABOUTME: The engine's network path is exercised via mocks in the router tests

package reply

import (
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havana-uni/inquiry-gateway/internal/store"
)

func TestSelector_DefaultAndSwitch(t *testing.T) {
	s, err := NewSelector(ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, s.Current())

	require.NoError(t, s.Set(ProviderOpenAI))
	assert.Equal(t, ProviderOpenAI, s.Current())
}

func TestSelector_RejectsUnknownProvider(t *testing.T) {
	_, err := NewSelector("claude")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	s, err := NewSelector(ProviderOpenAI)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Set("llama"), ErrUnknownProvider)
	assert.Equal(t, ProviderOpenAI, s.Current(), "failed set must not change selection")
}

func TestSelector_ConcurrentAccess(t *testing.T) {
	s, err := NewSelector(ProviderOpenAI)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.Set(ProviderGemini)
			} else {
				_ = s.Current()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, ProviderGemini, s.Current())
}

func TestSystemPrompt_EmbedsCampusData(t *testing.T) {
	prompt := systemPrompt("Tuition is 9000 per year.")
	assert.Contains(t, prompt, "Tuition is 9000 per year.")
	assert.Contains(t, prompt, ToolHumanEscalation)
	assert.Contains(t, prompt, ToolBookTimeSlot)
}

func TestBuildMessages_WindowAndRoleMapping(t *testing.T) {
	selector, err := NewSelector(ProviderOpenAI)
	require.NoError(t, err)
	e := NewOpenAIEngine(selector, nil, "campus", 10, nil)

	var history []*store.Message
	for i := 0; i < 15; i++ {
		role := store.RoleHuman
		if i%3 == 1 {
			role = store.RoleAI
		}
		if i%3 == 2 {
			role = store.RoleHumanOperator
		}
		history = append(history, &store.Message{Role: role, Text: "msg"})
	}

	messages := e.buildMessages(history)

	require.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	// 10-message window with operator messages filtered out
	assert.LessOrEqual(t, len(messages)-1, 10)
	for _, m := range messages[1:] {
		assert.Contains(t, []string{openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant}, m.Role)
	}
}

func TestToolDefinitions_CoverAllTools(t *testing.T) {
	defs := toolDefinitions()
	require.Len(t, defs, 3)

	var names []string
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	assert.ElementsMatch(t, []string{ToolHumanEscalation, ToolGetBookingSlots, ToolBookTimeSlot}, names)
}

func TestNewOpenAIEngine_SkipsUnconfiguredProviders(t *testing.T) {
	selector, err := NewSelector(ProviderGemini)
	require.NoError(t, err)
	e := NewOpenAIEngine(selector, map[string]ProviderSettings{
		ProviderOpenAI: {APIKey: "sk-test", Model: "gpt-4o"},
		ProviderGemini: {}, // no key
	}, "", 10, nil)

	_, _, activeErr := e.active()
	require.Error(t, activeErr)
	assert.True(t, strings.Contains(activeErr.Error(), "gemini"))

	require.NoError(t, selector.Set(ProviderOpenAI))
	_, model, activeErr := e.active()
	require.NoError(t, activeErr)
	assert.Equal(t, "gpt-4o", model)
}
