// Package jsonembedded implements llmadapter.Adapter for providers that do
// not support native tool-calling and instead must be asked to emit a
// {"name":...,"arguments":{...}} object inline in their assistant content.
// It wraps openaicompat.Client for the actual HTTP/embedding work and adds
// the prompt instructions plus llmadapter.NormalizeToolCall postprocessing
// spec.md §4.1 requires of such providers.
package jsonembedded

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/llmadapter/openaicompat"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// Client adapts a JSON-embedded-tool-call provider to llmadapter.Adapter.
type Client struct {
	inner *openaicompat.Client
}

// New builds a Client around an already-constructed openaicompat.Client
// pointed at the non-native-tool-calling provider's endpoint.
func New(inner *openaicompat.Client) *Client {
	return &Client{inner: inner}
}

var _ llmadapter.Adapter = (*Client)(nil)

// Chat appends a tool-catalogue instruction to the outgoing messages (since
// this provider has no native "tools" wire field), then normalizes any
// inline JSON tool call out of the returned content.
func (c *Client) Chat(ctx context.Context, messages []model.ChatMessage, tools []llmadapter.ToolDef) (llmadapter.ChatResult, error) {
	augmented := messages
	if len(tools) > 0 {
		augmented = append(append([]model.ChatMessage{}, messages...), model.ChatMessage{
			Role:    model.RoleSystem,
			Content: toolInstructionPrompt(tools),
		})
	}

	result, err := c.inner.Chat(ctx, augmented, nil)
	if err != nil {
		return llmadapter.ChatResult{}, err
	}
	if len(result.ToolCalls) > 0 {
		// Already native somehow (e.g. a compat layer upgraded); nothing to do.
		return result, nil
	}

	call, rest, ok := llmadapter.NormalizeToolCall(result.Content, tools)
	if !ok {
		return result, nil
	}
	return llmadapter.ChatResult{Content: rest, ToolCalls: []model.ToolCall{call}}, nil
}

func toolInstructionPrompt(tools []llmadapter.ToolDef) string {
	var sb strings.Builder
	sb.WriteString("You can call exactly one tool per turn. To call a tool, emit a single JSON object ")
	sb.WriteString(`of the form {"name": "<tool name>", "arguments": {...}} and nothing else. Available tools:` + "\n")
	for _, t := range tools {
		params, _ := json.Marshal(t.Parameters)
		fmt.Fprintf(&sb, "- %s: %s (parameters: %s)\n", t.Name, t.Description, params)
	}
	return sb.String()
}

func (c *Client) StreamChat(ctx context.Context, messages []model.ChatMessage) (<-chan llmadapter.StreamChunk, error) {
	return c.inner.StreamChat(ctx, messages)
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, apperr.Provider("embed query", err)
	}
	return v, nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := c.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Provider("embed documents", err)
	}
	return v, nil
}
