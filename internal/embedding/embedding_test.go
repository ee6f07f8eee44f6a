package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
)

type fakeAdapter struct {
	embedErr      error
	embedBatchErr error
	batchVecs     [][]float32
}

func (f *fakeAdapter) Chat(context.Context, []model.ChatMessage, []llmadapter.ToolDef) (llmadapter.ChatResult, error) {
	return llmadapter.ChatResult{}, nil
}
func (f *fakeAdapter) StreamChat(context.Context, []model.ChatMessage) (<-chan llmadapter.StreamChunk, error) {
	return nil, nil
}
func (f *fakeAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 2, 3}, nil
}
func (f *fakeAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedBatchErr != nil {
		return nil, f.embedBatchErr
	}
	if f.batchVecs != nil {
		return f.batchVecs, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestBuildText_IncludesHeaderFieldsWhenPresent(t *testing.T) {
	c := &model.CodeChunk{
		FilePath:   "pkg/a.go",
		SymbolName: "DoThing",
		Language:   "go",
		Content:    "func DoThing() {}",
		Metadata:   model.ChunkMetadata{Namespace: "pkg", ParentClass: "Widget"},
	}
	text := BuildText(c)
	for _, want := range []string{"File: pkg/a.go", "Symbol: DoThing", "Language: go", "Namespace: pkg", "Class: Widget", "func DoThing() {}"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected text to contain %q, got %q", want, text)
		}
	}
}

func TestBuildText_OmitsEmptyOptionalFields(t *testing.T) {
	c := &model.CodeChunk{FilePath: "pkg/a.go", Language: "go", Content: "x"}
	text := BuildText(c)
	if strings.Contains(text, "Symbol:") || strings.Contains(text, "Namespace:") || strings.Contains(text, "Class:") {
		t.Fatalf("expected no optional header fields, got %q", text)
	}
}

func TestTruncate_LeavesShortTextUnchanged(t *testing.T) {
	svc := New(&fakeAdapter{}, "gpt-4")
	text := "a short snippet of code"
	if got := svc.Truncate(text); got != text {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}

func TestTruncate_BoundsLongTextToMaxTokens(t *testing.T) {
	svc := New(&fakeAdapter{}, "gpt-4")
	text := strings.Repeat("token ", MaxEmbedTokens*2)
	truncated := svc.Truncate(text)
	if len(truncated) >= len(text) {
		t.Fatalf("expected truncated text shorter than original")
	}
}

func TestEmbedChunk_WritesVectorBackOntoChunk(t *testing.T) {
	svc := New(&fakeAdapter{}, "gpt-4")
	c := &model.CodeChunk{FilePath: "a.go", Language: "go", Content: "x"}
	if err := svc.EmbedChunk(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Embedding) != 3 {
		t.Fatalf("expected embedding written onto chunk, got %v", c.Embedding)
	}
}

func TestEmbedChunk_WrapsProviderError(t *testing.T) {
	svc := New(&fakeAdapter{embedErr: errors.New("boom")}, "gpt-4")
	c := &model.CodeChunk{FilePath: "a.go", Language: "go", Content: "x"}
	err := svc.EmbedChunk(context.Background(), c)
	if err == nil || !apperr.Is(err, apperr.KindProvider) {
		t.Fatalf("expected KindProvider error, got %v", err)
	}
}

func TestEmbedBatch_PreservesPositionalCorrespondence(t *testing.T) {
	svc := New(&fakeAdapter{}, "gpt-4")
	chunks := []*model.CodeChunk{
		{FilePath: "a.go", Content: "a"},
		{FilePath: "b.go", Content: "b"},
		{FilePath: "c.go", Content: "c"},
	}
	if err := svc.EmbedBatch(context.Background(), chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks {
		if len(c.Embedding) != 1 || c.Embedding[0] != float32(i) {
			t.Fatalf("chunk %d got embedding %v, want [%d]", i, c.Embedding, i)
		}
	}
}

func TestEmbedBatch_EmptyInputIsNoop(t *testing.T) {
	svc := New(&fakeAdapter{}, "gpt-4")
	if err := svc.EmbedBatch(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbedBatch_MismatchedVectorCountIsProviderError(t *testing.T) {
	svc := New(&fakeAdapter{batchVecs: [][]float32{{1}}}, "gpt-4")
	chunks := []*model.CodeChunk{{FilePath: "a.go", Content: "a"}, {FilePath: "b.go", Content: "b"}}
	err := svc.EmbedBatch(context.Background(), chunks)
	if err == nil || !apperr.Is(err, apperr.KindProvider) {
		t.Fatalf("expected KindProvider mismatch error, got %v", err)
	}
}

func TestEmbedQuery_TruncatesAndEmbedsWithoutHeader(t *testing.T) {
	svc := New(&fakeAdapter{}, "gpt-4")
	vec, err := svc.EmbedQuery(context.Background(), "where is the parser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}
