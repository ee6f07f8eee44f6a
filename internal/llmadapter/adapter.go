// Package llmadapter implements C1, the uniform chat/embed/stream contract
// over a pluggable language-model provider. Two concrete adapters are
// provided: one that speaks a provider's native tool-calling wire format,
// and one for providers that only emit tool calls as JSON embedded in the
// assistant's text content. Both return the same normalized ChatResult, so
// downstream code never has to know which kind of provider it's talking to.
package llmadapter

import (
	"context"
	"encoding/json"

	"github.com/pixell07/codeagent-rag/internal/model"
)

// ToolDef describes one tool in the catalogue passed to Chat.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatResult is the normalized response from a chat call. When ToolCalls is
// non-empty, Content MAY be empty and callers MUST process the tool calls
// before producing a final answer.
type ChatResult struct {
	Content   string
	ToolCalls []model.ToolCall
}

// StreamChunk is one item from a StreamChat channel: either a text
// fragment, or — as the final item before the channel closes — a
// terminal error if the stream broke before completion. Callers must
// check Err on every received chunk; a broken provider mid-stream is
// reported this way rather than silently truncating the answer.
type StreamChunk struct {
	Content string
	Err     error
}

// Adapter is the contract every provider implementation satisfies.
type Adapter interface {
	// Chat returns either assistant text or a non-empty list of tool
	// invocations. Failures bubble as *apperr.Error (Kind: provider).
	Chat(ctx context.Context, messages []model.ChatMessage, tools []ToolDef) (ChatResult, error)

	// StreamChat returns a channel of StreamChunks, closed when the stream
	// ends or ctx is cancelled. It is single-directional, finite, and not
	// restartable. A non-nil Err on the last chunk received signals the
	// provider broke before producing a complete answer.
	StreamChat(ctx context.Context, messages []model.ChatMessage) (<-chan StreamChunk, error)

	// Embed produces a single fixed-dimensionality embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds a list of texts, preserving input order. The
	// adapter is responsible for transparently splitting batches larger
	// than the provider's cap and reassembling them positionally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
