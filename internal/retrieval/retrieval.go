// Package retrieval implements C5: hybrid code search over an indexed
// repository. Grounded on the teacher's internal/retrieval/retrieval.go
// RAGService.Query (retrieve → build context → generate), generalized
// from a single langchaingo SimilaritySearch call to a weighted
// vector+keyword merge since the store here is direct pgx, not
// langchaingo's opaque wrapper.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/embedding"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// vectorWeight and keywordWeight control the hybrid merge; spec.md §4.5
// fixes these at 0.7/0.3.
const (
	vectorWeight  = 0.7
	keywordWeight = 0.3

	// vectorFanOut multiplies topK for the initial vector candidate pull so
	// the merge sees a wider vector pool; the keyword phase scans the whole
	// repository independently of it.
	vectorFanOut = 2
)

// ChunkStore is the subset of store.PostgresStore retrieval depends on.
type ChunkStore interface {
	VectorTopK(ctx context.Context, repositoryID string, queryEmbedding []float32, k int) ([]*model.CodeChunk, error)
	QueryByRepository(ctx context.Context, repositoryID string) ([]*model.CodeChunk, error)
}

// Filters narrows hybrid search results. All set fields are conjunctive
// and case-insensitive.
type Filters struct {
	Language      string
	ChunkType     model.ChunkType
	FileNameMatch string
	FilePaths     []string // any chunk whose FilePath contains one of these
}

// Result pairs a chunk with its merged relevance score.
type Result struct {
	Chunk *model.CodeChunk
	Score float64
}

// Service executes vector-only and hybrid searches against one
// repository's indexed chunks.
type Service struct {
	store    ChunkStore
	embedder *embedding.Service
}

// New builds a retrieval Service.
func New(store ChunkStore, embedder *embedding.Service) *Service {
	return &Service{store: store, embedder: embedder}
}

// Search performs a vector-only similarity search, ranking strictly by
// ascending cosine distance (the store's native order).
func (s *Service) Search(ctx context.Context, repositoryID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.VectorTopK(ctx, repositoryID, queryVec, topK)
	if err != nil {
		return nil, apperr.Store("vector search", err)
	}

	out := make([]Result, len(chunks))
	for i, c := range chunks {
		out[i] = Result{Chunk: c, Score: 1 - c.Distance}
	}
	return out, nil
}

// HybridSearch merges vector similarity with a keyword overlap score,
// weighted vectorWeight/keywordWeight, then applies filters and returns
// the top topK results. Per spec.md §4.5 step 2, the keyword phase scans
// every chunk in the repository partition (not just the vector
// shortlist), keeping its own top-topK by keyword score; that set is
// unioned by chunk ID with the 2·topK vector candidates, summing scores
// for chunks present in both. Ties break by the chunk's original vector
// rank (candidates absent from the vector phase sort after all vector
// hits), then by chunk ID, for determinism.
func (s *Service) HybridSearch(ctx context.Context, repositoryID, query string, topK int, filters Filters) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	vectorCandidates, err := s.store.VectorTopK(ctx, repositoryID, queryVec, topK*vectorFanOut)
	if err != nil {
		return nil, apperr.Store("hybrid search vector phase", err)
	}

	allChunks, err := s.store.QueryByRepository(ctx, repositoryID)
	if err != nil {
		return nil, apperr.Store("hybrid search keyword phase", err)
	}

	keywords := tokenize(query)

	type scored struct {
		chunk     *model.CodeChunk
		score     float64
		vectorIdx int
	}

	const noVectorRank = 1 << 30

	pool := make(map[string]*scored)
	for i, c := range vectorCandidates {
		if !matchesFilters(c, filters) {
			continue
		}
		vScore := 1 - c.Distance
		pool[c.ID] = &scored{chunk: c, score: vectorWeight * vScore, vectorIdx: i}
	}

	type keywordHit struct {
		chunk *model.CodeChunk
		score float64
	}
	var keywordHits []keywordHit
	for _, c := range allChunks {
		if !matchesFilters(c, filters) {
			continue
		}
		kScore := keywordScore(c, keywords)
		if kScore > 0 {
			keywordHits = append(keywordHits, keywordHit{chunk: c, score: kScore})
		}
	}
	sort.SliceStable(keywordHits, func(i, j int) bool {
		if keywordHits[i].score != keywordHits[j].score {
			return keywordHits[i].score > keywordHits[j].score
		}
		return keywordHits[i].chunk.ID < keywordHits[j].chunk.ID
	})
	if len(keywordHits) > topK {
		keywordHits = keywordHits[:topK]
	}

	for _, h := range keywordHits {
		if existing, ok := pool[h.chunk.ID]; ok {
			existing.score += keywordWeight * h.score
			continue
		}
		pool[h.chunk.ID] = &scored{chunk: h.chunk, score: keywordWeight * h.score, vectorIdx: noVectorRank}
	}

	merged := make([]*scored, 0, len(pool))
	for _, p := range pool {
		merged = append(merged, p)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		if merged[i].vectorIdx != merged[j].vectorIdx {
			return merged[i].vectorIdx < merged[j].vectorIdx
		}
		return merged[i].chunk.ID < merged[j].chunk.ID
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}

	out := make([]Result, len(merged))
	for i, p := range merged {
		out[i] = Result{Chunk: p.chunk, Score: p.score}
	}
	return out, nil
}

// keywordScore is matched-token-count / total-query-token-count against
// the chunk's content and symbol name, bounded to [0,1]. Scoped to
// content/symbolName only, per spec.md §4.5 step 2 — file path is not
// part of the keyword match surface.
func keywordScore(c *model.CodeChunk, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(c.Content + " " + c.SymbolName)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func matchesFilters(c *model.CodeChunk, f Filters) bool {
	if f.Language != "" && !strings.EqualFold(c.Language, f.Language) {
		return false
	}
	if f.ChunkType != "" && !strings.EqualFold(string(c.ChunkType), string(f.ChunkType)) {
		return false
	}
	if f.FileNameMatch != "" && !strings.Contains(strings.ToLower(c.FileName), strings.ToLower(f.FileNameMatch)) {
		return false
	}
	if len(f.FilePaths) > 0 {
		lowerPath := strings.ToLower(c.FilePath)
		matched := false
		for _, p := range f.FilePaths {
			if strings.Contains(lowerPath, strings.ToLower(p)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
