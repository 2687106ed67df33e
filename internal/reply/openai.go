// ABOUTME: ReplyEngine implementation over OpenAI-compatible chat completion APIs
// ABOUTME: Serves both the openai and gemini providers through one client library

package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/havana-uni/inquiry-gateway/internal/store"
)

// ProviderSettings configures one chat-completion backend
type ProviderSettings struct {
	APIKey  string
	BaseURL string // empty for the library default; Gemini's OpenAI-compatible endpoint otherwise
	Model   string
}

// OpenAIEngine implements Engine against OpenAI-compatible chat completion
// endpoints. The active provider is read from the selector on every call.
type OpenAIEngine struct {
	selector *Selector
	clients  map[string]*openai.Client
	models   map[string]string
	prompt   string
	window   int
	logger   *slog.Logger
}

// NewOpenAIEngine builds an engine for the configured providers. Providers
// without an API key are skipped; calling the engine while such a provider is
// selected returns an error the router turns into a fallback reply.
func NewOpenAIEngine(selector *Selector, providers map[string]ProviderSettings, campusData string, historyWindow int, logger *slog.Logger) *OpenAIEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}

	e := &OpenAIEngine{
		selector: selector,
		clients:  make(map[string]*openai.Client),
		models:   make(map[string]string),
		prompt:   systemPrompt(campusData),
		window:   historyWindow,
		logger:   logger.With("component", "reply"),
	}

	for name, p := range providers {
		if p.APIKey == "" {
			logger.Warn("provider not configured, skipping", "provider", name)
			continue
		}
		cfg := openai.DefaultConfig(p.APIKey)
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		e.clients[name] = openai.NewClientWithConfig(cfg)
		e.models[name] = p.Model
	}

	return e
}

// GenerateReply asks the active provider for the next turn, offering the
// escalation and booking tools.
func (e *OpenAIEngine) GenerateReply(ctx context.Context, history []*store.Message) (*Reply, error) {
	client, model, err := e.active()
	if err != nil {
		return nil, err
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: e.buildMessages(history),
		Tools:    toolDefinitions(),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0].Message
	reply := &Reply{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}

	e.logger.Debug("reply generated", "provider", e.selector.Current(),
		"tool_calls", len(reply.ToolCalls), "has_text", reply.Text != "")
	return reply, nil
}

// ComposeFinal sends the tool results back to the model and returns the
// closing message for the student.
func (e *OpenAIEngine) ComposeFinal(ctx context.Context, history []*store.Message, prior *Reply, results []ToolResult) (string, error) {
	client, model, err := e.active()
	if err != nil {
		return "", err
	}

	messages := e.buildMessages(history)

	assistant := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: prior.Text,
	}
	for _, tc := range prior.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Args),
			},
		})
	}
	messages = append(messages, assistant)

	for _, res := range results {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: res.CallID,
			Name:       res.Name,
			Content:    res.Output,
		})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("final completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("final completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// active resolves the currently selected provider's client and model
func (e *OpenAIEngine) active() (*openai.Client, string, error) {
	name := e.selector.Current()
	client, ok := e.clients[name]
	if !ok {
		return nil, "", fmt.Errorf("provider %q is not configured", name)
	}
	return client, e.models[name], nil
}

// buildMessages maps persisted history onto chat-completion messages.
// Only the trailing window is sent; operator messages are not replayed to
// the model (matching the student/AI conversation it is asked to continue).
func (e *OpenAIEngine) buildMessages(history []*store.Message) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: e.prompt},
	}

	start := 0
	if len(history) > e.window {
		start = len(history) - e.window
	}
	for _, msg := range history[start:] {
		switch msg.Role {
		case store.RoleHuman:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Text,
			})
		case store.RoleAI:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text,
			})
		}
	}
	return messages
}

// toolDefinitions declares the three tools offered to the model
func toolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: ToolHumanEscalation,
				Description: "Escalate the conversation to a human operator when the AI cannot handle " +
					"the query properly: missing information, complex or personalized questions, or an " +
					"explicit request to speak with a human.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason": map[string]any{
							"type":        "string",
							"description": "Brief explanation of why human escalation is needed",
						},
					},
					"required": []string{"reason"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: ToolGetBookingSlots,
				Description: "Retrieve available time slots for booking a call with an advisor. Use when " +
					"the student wants to schedule a call or asks about available times.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: ToolBookTimeSlot,
				Description: "Book a time slot for the student once they select one. Accepts either a " +
					"slot_id or a date and time parsed from the student's message.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"slot_id": map[string]any{
							"type":        "string",
							"description": "The ID of the slot to book",
						},
						"date": map[string]any{
							"type":        "string",
							"description": "The date in YYYY-MM-DD format",
						},
						"time": map[string]any{
							"type":        "string",
							"description": "The time in HH:MM or HHMM format",
						},
					},
				},
			},
		},
	}
}
