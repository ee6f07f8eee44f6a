package retrieval

import (
	"context"
	"testing"

	"github.com/pixell07/codeagent-rag/internal/embedding"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
)

type fakeAdapter struct{ embed []float32 }

func (f *fakeAdapter) Chat(ctx context.Context, messages []model.ChatMessage, tools []llmadapter.ToolDef) (llmadapter.ChatResult, error) {
	return llmadapter.ChatResult{}, nil
}
func (f *fakeAdapter) StreamChat(ctx context.Context, messages []model.ChatMessage) (<-chan llmadapter.StreamChunk, error) {
	ch := make(chan llmadapter.StreamChunk)
	close(ch)
	return ch, nil
}
func (f *fakeAdapter) Embed(ctx context.Context, text string) ([]float32, error) { return f.embed, nil }
func (f *fakeAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.embed
	}
	return out, nil
}

type fakeStore struct {
	vectorResults []*model.CodeChunk
	allChunks     []*model.CodeChunk
}

func (f *fakeStore) VectorTopK(ctx context.Context, repositoryID string, queryEmbedding []float32, k int) ([]*model.CodeChunk, error) {
	if k < len(f.vectorResults) {
		return f.vectorResults[:k], nil
	}
	return f.vectorResults, nil
}
func (f *fakeStore) QueryByRepository(ctx context.Context, repositoryID string) ([]*model.CodeChunk, error) {
	if f.allChunks != nil {
		return f.allChunks, nil
	}
	return f.vectorResults, nil
}

func chunk(id, path, content string, distance float64) *model.CodeChunk {
	return &model.CodeChunk{ID: id, FilePath: path, Content: content, ChunkType: model.ChunkTypeFunction, Distance: distance}
}

func TestHybridSearch_MergesVectorAndKeywordScores(t *testing.T) {
	store := &fakeStore{vectorResults: []*model.CodeChunk{
		chunk("1", "a.go", "func processPayment() {}", 0.1),
		chunk("2", "b.go", "func unrelated() {}", 0.2),
	}}
	svc := New(store, embedding.New(&fakeAdapter{embed: []float32{0.1, 0.2}}, "test-model"))

	results, err := svc.HybridSearch(context.Background(), "repo-1", "processPayment", 5, Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "1" {
		t.Fatalf("expected chunk 1 (keyword+vector match) to rank first, got %s", results[0].Chunk.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected chunk 1's score %v > chunk 2's score %v", results[0].Score, results[1].Score)
	}
}

func TestHybridSearch_AppliesLanguageFilter(t *testing.T) {
	store := &fakeStore{vectorResults: []*model.CodeChunk{
		{ID: "1", FilePath: "a.py", Language: "python", Distance: 0.1},
		{ID: "2", FilePath: "b.go", Language: "go", Distance: 0.1},
	}}
	svc := New(store, embedding.New(&fakeAdapter{embed: []float32{0.1}}, "test-model"))

	results, err := svc.HybridSearch(context.Background(), "repo-1", "anything", 5, Filters{Language: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "2" {
		t.Fatalf("expected only the go chunk, got %+v", results)
	}
}

func TestHybridSearch_SurfacesKeywordMatchOutsideVectorShortlist(t *testing.T) {
	// chunk("buried") is a strong keyword match but is never returned by
	// VectorTopK, simulating a chunk that falls outside the vector
	// candidate pool entirely. The keyword phase must still scan the full
	// repository (QueryByRepository) and surface it.
	vectorOnly := []*model.CodeChunk{
		chunk("1", "a.go", "func unrelated() {}", 0.1),
		chunk("2", "b.go", "func alsoUnrelated() {}", 0.2),
	}
	buried := chunk("buried", "c.go", "func processPayment() { /* deep in the tree */ }", 0.9)
	store := &fakeStore{
		vectorResults: vectorOnly,
		allChunks:     append(append([]*model.CodeChunk{}, vectorOnly...), buried),
	}
	svc := New(store, embedding.New(&fakeAdapter{embed: []float32{0.1}}, "test-model"))

	results, err := svc.HybridSearch(context.Background(), "repo-1", "processPayment", 5, Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, r := range results {
		if r.Chunk.ID == "buried" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the keyword-only match to be surfaced, got %+v", results)
	}
}

func TestHybridSearch_SumsScoreForChunkMatchingBothPhases(t *testing.T) {
	c := chunk("1", "a.go", "func processPayment() {}", 0.1)
	store := &fakeStore{
		vectorResults: []*model.CodeChunk{c},
		allChunks:     []*model.CodeChunk{c},
	}
	svc := New(store, embedding.New(&fakeAdapter{embed: []float32{0.1}}, "test-model"))

	results, err := svc.HybridSearch(context.Background(), "repo-1", "processPayment", 5, Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	// vectorWeight*(1-0.1) + keywordWeight*1.0 = 0.63 + 0.3 = 0.93
	if results[0].Score < 0.92 || results[0].Score > 0.94 {
		t.Fatalf("expected summed score around 0.93, got %v", results[0].Score)
	}
}

func TestKeywordScore_IgnoresFilePath(t *testing.T) {
	c := &model.CodeChunk{FilePath: "processPayment.go", Content: "func unrelated() {}", SymbolName: "unrelated"}
	score := keywordScore(c, []string{"processpayment"})
	if score != 0 {
		t.Fatalf("expected file path excluded from keyword match surface, got score %v", score)
	}
}

func TestSearch_RanksByAscendingDistance(t *testing.T) {
	store := &fakeStore{vectorResults: []*model.CodeChunk{
		chunk("close", "a.go", "x", 0.05),
		chunk("far", "b.go", "y", 0.4),
	}}
	svc := New(store, embedding.New(&fakeAdapter{embed: []float32{0.1}}, "test-model"))

	results, err := svc.Search(context.Background(), "repo-1", "query", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Chunk.ID != "close" {
		t.Fatalf("expected closest chunk first, got %s", results[0].Chunk.ID)
	}
}
