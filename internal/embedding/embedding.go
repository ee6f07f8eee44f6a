// Package embedding implements C4: turning a CodeChunk into embeddable
// text and producing its vector via the configured llmadapter.Adapter.
// Grounded on the teacher's internal/embedding/embedder.go (wrapping a
// single embed interface around the provider) generalized from
// langchaingo's raw EmbedDocuments/EmbedQuery to the chunk-aware text
// assembly and token-budget truncation spec.md §4.4 requires.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// MaxEmbedTokens bounds the assembled text before truncation, keeping it
// well under common provider embedding context limits.
const MaxEmbedTokens = 8000

// fallbackEncoding is used when tiktoken has no encoding registered for
// the configured model name.
const fallbackEncoding = "cl100k_base"

// Service assembles embeddable text from chunks and embeds it through an
// llmadapter.Adapter.
type Service struct {
	adapter llmadapter.Adapter
	model   string
}

// New builds a Service. model is only used to pick a tiktoken encoding;
// the embedding call itself goes through adapter.
func New(adapter llmadapter.Adapter, model string) *Service {
	return &Service{adapter: adapter, model: model}
}

// BuildText assembles the text embedded for a chunk: a header line
// carrying file path, symbol, language, and structural context, followed
// by the chunk's source.
func BuildText(c *model.CodeChunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s", c.FilePath)
	if c.SymbolName != "" {
		fmt.Fprintf(&sb, " | Symbol: %s", c.SymbolName)
	}
	fmt.Fprintf(&sb, " | Language: %s", c.Language)
	if c.Metadata.Namespace != "" {
		fmt.Fprintf(&sb, " | Namespace: %s", c.Metadata.Namespace)
	}
	if c.Metadata.ParentClass != "" {
		fmt.Fprintf(&sb, " | Class: %s", c.Metadata.ParentClass)
	}
	sb.WriteString("\nCode:\n")
	sb.WriteString(c.Content)
	return sb.String()
}

// Truncate bounds text to at most MaxEmbedTokens tokens under the
// service's model encoding, dropping from the end (the header prefix,
// which carries the most identifying signal, is always preserved).
func (s *Service) Truncate(text string) string {
	enc, err := tiktoken.EncodingForModel(s.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return text
		}
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= MaxEmbedTokens {
		return text
	}
	return enc.Decode(tokens[:MaxEmbedTokens])
}

// EmbedChunk assembles and embeds a single chunk, writing the vector
// back onto it.
func (s *Service) EmbedChunk(ctx context.Context, c *model.CodeChunk) error {
	text := s.Truncate(BuildText(c))
	vec, err := s.adapter.Embed(ctx, text)
	if err != nil {
		return apperr.Provider("embed chunk", err)
	}
	c.Embedding = vec
	return nil
}

// EmbedBatch assembles and embeds chunks in one provider call, preserving
// positional correspondence between input chunks and output vectors.
func (s *Service) EmbedBatch(ctx context.Context, chunks []*model.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = s.Truncate(BuildText(c))
	}
	vecs, err := s.adapter.EmbedBatch(ctx, texts)
	if err != nil {
		return apperr.Provider("embed batch", err)
	}
	if len(vecs) != len(chunks) {
		return apperr.Provider("embed batch returned mismatched vector count", nil)
	}
	for i, v := range vecs {
		chunks[i].Embedding = v
	}
	return nil
}

// EmbedQuery embeds a retrieval query string, with no header assembly.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := s.adapter.Embed(ctx, s.Truncate(query))
	if err != nil {
		return nil, apperr.Provider("embed query", err)
	}
	return vec, nil
}
