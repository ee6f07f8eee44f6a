// Package openaicompat implements llmadapter.Adapter against an
// OpenAI-compatible chat completions endpoint that supports native
// tool-calling. It is grounded on the teacher's internal/llm/openai.go SSE
// scanner, extended to send a tools catalogue and parse native tool_calls
// out of the response.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// Client is a native-tool-calling OpenAI-compatible adapter.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	embedder *embeddings.EmbedderImpl
}

// New builds a Client. embeddingModel selects the model used by
// Embed/EmbedBatch, backed by langchaingo's embeddings.EmbedderImpl (kept
// from the teacher's internal/embedding package).
func New(endpoint, apiKey, chatModel, embeddingModel string) (*Client, error) {
	llm, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, apperr.Provider("init embedding client", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, apperr.Provider("init embedder", err)
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    chatModel,
		http:     &http.Client{Timeout: 120 * time.Second},
		embedder: embedder,
	}, nil
}

var _ llmadapter.Adapter = (*Client)(nil)

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

func toWireMessages(messages []model.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.FunctionName
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []llmadapter.ToolDef) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

// Chat calls the provider once, non-streaming, with the given tool
// catalogue, and returns the normalized result.
func (c *Client) Chat(ctx context.Context, messages []model.ChatMessage, tools []llmadapter.ToolDef) (llmadapter.ChatResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: toWireMessages(messages),
		Tools:    toWireTools(tools),
		Stream:   false,
	})
	if err != nil {
		return llmadapter.ChatResult{}, apperr.Provider("encode chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return llmadapter.ChatResult{}, apperr.Provider("build chat request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return llmadapter.ChatResult{}, apperr.Provider("chat request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llmadapter.ChatResult{}, apperr.Provider(fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return llmadapter.ChatResult{}, apperr.Provider("decode chat response", err)
	}
	if len(parsed.Choices) == 0 {
		return llmadapter.ChatResult{}, apperr.Provider("provider returned no choices", nil)
	}

	msg := parsed.Choices[0].Message
	result := llmadapter.ChatResult{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, model.ToolCall{
			ID:           tc.ID,
			FunctionName: tc.Function.Name,
			Arguments:    tc.Function.Arguments,
		})
	}
	return result, nil
}

// StreamCompletion preserves the teacher's exported-channel streaming
// signature for compatibility with callers built against it; StreamChat
// below is the llmadapter.Adapter-facing wrapper.
func (c *Client) StreamCompletion(ctx context.Context, systemPrompt, userMessage string, out chan<- string) error {
	defer close(out)

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []wireMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Stream: true,
	})
	if err != nil {
		return apperr.Provider("encode stream request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return apperr.Provider("build stream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Provider("stream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.Provider(fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			select {
			case out <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return scanner.Err()
}

// StreamChat adapts StreamCompletion's channel-of-tokens style to the
// llmadapter.Adapter contract: the system turn is the last system message
// in messages, and the user turn concatenates every other message (tool
// results included), one "[role] content" line each. The terminal error
// from StreamCompletion (a broken connection, a non-200 status, a
// scanner failure) is forwarded as the Err field on the final chunk
// rather than discarded, so a caller ranging over the channel learns
// whether the stream actually completed.
func (c *Client) StreamChat(ctx context.Context, messages []model.ChatMessage) (<-chan llmadapter.StreamChunk, error) {
	system, user := splitSystemAndRest(messages)
	tokens := make(chan string, 64)
	out := make(chan llmadapter.StreamChunk, 64)

	go func() {
		defer close(out)
		streamErr := make(chan error, 1)
		go func() {
			streamErr <- c.StreamCompletion(ctx, system, user, tokens)
		}()
		for t := range tokens {
			out <- llmadapter.StreamChunk{Content: t}
		}
		if err := <-streamErr; err != nil {
			out <- llmadapter.StreamChunk{Err: err}
		}
	}()

	return out, nil
}

func splitSystemAndRest(messages []model.ChatMessage) (system, rest string) {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			system = m.Content
		default:
			fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
		}
	}
	return system, sb.String()
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apperr.Provider("embed query", err)
	}
	return v, nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperr.Provider("embed documents", err)
	}
	return v, nil
}
