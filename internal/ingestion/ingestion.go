// Package ingestion wires C3 (chunker) → C4 (embedding) → C2 (store) into
// repository indexing: walk a tree, chunk it, embed the chunks, replace
// the repository's prior chunk set, and rewrite its summary record.
// Grounded on the teacher's internal/document/document.go Service
// (buffered-channel job queue + fixed worker pool), generalized from
// "one document" to "one repository tree" per spec.md §4.3/§4.4/§4.2.
package ingestion

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/golang-commonmark/markdown"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/chunker"
	"github.com/pixell07/codeagent-rag/internal/embedding"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// Store is the subset of store.PostgresStore ingestion depends on.
type Store interface {
	UpsertRepository(ctx context.Context, repo *model.Repository) error
	GetRepository(ctx context.Context, id string) (*model.Repository, error)
	DeleteByRepository(ctx context.Context, repositoryID string) error
	BulkUpsertChunks(ctx context.Context, chunks []*model.CodeChunk) error
}

const workerCount = 4
const ingestTimeout = 15 * time.Minute

type job struct {
	repositoryID, name, path, description string
}

// Service indexes repository trees asynchronously, mirroring the
// teacher's non-blocking enqueue-and-report-pending contract.
type Service struct {
	store    Store
	chunker  *chunker.Chunker
	embedder *embedding.Service
	jobs     chan job
}

// New builds a Service and starts its fixed worker pool.
func New(store Store, c *chunker.Chunker, e *embedding.Service) *Service {
	s := &Service{store: store, chunker: c, embedder: e, jobs: make(chan job, 64)}
	for i := 0; i < workerCount; i++ {
		go s.worker(i)
	}
	return s
}

// IndexRequest describes a repository to (re-)index.
type IndexRequest struct {
	ID          string
	Name        string
	Path        string
	Description string
}

// IndexAsync registers the repository immediately with no indexedAt and
// enqueues the actual walk-chunk-embed-store pipeline. If the queue is
// full the repository record is still created so a caller can retry.
func (s *Service) IndexAsync(ctx context.Context, req IndexRequest) (*model.Repository, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	description := req.Description
	if description == "" {
		description = readmeDescription(req.Path)
	}

	repo := &model.Repository{ID: req.ID, Name: req.Name, Path: req.Path, Description: description}
	if err := s.store.UpsertRepository(ctx, repo); err != nil {
		return nil, err
	}

	select {
	case s.jobs <- job{repositoryID: req.ID, name: req.Name, path: req.Path, description: description}:
	default:
		slog.Warn("ingestion queue full, repository left unindexed", "repository_id", req.ID)
	}

	return repo, nil
}

func (s *Service) worker(id int) {
	slog.Info("ingestion worker started", "worker_id", id)
	for j := range s.jobs {
		s.index(j)
	}
}

// index is the full pipeline: walk+chunk, embed, delete the repository's
// prior chunk partition, bulk upsert the new chunks, rewrite the
// repository summary. Re-indexing is delete-then-insert, never a diff,
// per spec.md §3's "wholesale deleted and re-created on re-index."
func (s *Service) index(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	rawChunks, err := s.chunker.ChunkRepository(ctx, j.path)
	if err != nil {
		slog.Error("repository chunking failed", "repository_id", j.repositoryID, "error", err)
		return
	}

	chunks := make([]*model.CodeChunk, len(rawChunks))
	for i, rc := range rawChunks {
		chunks[i] = &model.CodeChunk{
			ID:           uuid.NewString(),
			RepositoryID: j.repositoryID,
			FilePath:     rc.FilePath,
			FileName:     rc.FileName,
			Language:     rc.Language,
			Content:      rc.Content,
			StartLine:    rc.StartLine,
			EndLine:      rc.EndLine,
			ChunkType:    rc.ChunkType,
			SymbolName:   rc.SymbolName,
			Metadata:     rc.Metadata,
			CreatedAt:    time.Now(),
		}
	}

	if err := s.embedder.EmbedBatch(ctx, chunks); err != nil {
		slog.Error("repository embedding failed", "repository_id", j.repositoryID, "error", err)
		return
	}

	if err := s.store.DeleteByRepository(ctx, j.repositoryID); err != nil {
		slog.Error("prior chunk deletion failed, continuing with upsert", "repository_id", j.repositoryID, "error", err)
	}

	if err := s.store.BulkUpsertChunks(ctx, chunks); err != nil {
		slog.Error("bulk chunk upsert failed", "repository_id", j.repositoryID, "error", err)
		return
	}

	now := time.Now()
	repo := &model.Repository{
		ID:          j.repositoryID,
		Name:        j.name,
		Path:        j.path,
		Description: j.description,
		IndexedAt:   &now,
		ChunkCount:  len(chunks),
		Languages:   distinctLanguages(chunks),
	}
	if err := s.store.UpsertRepository(ctx, repo); err != nil {
		slog.Error("repository summary rewrite failed", "repository_id", j.repositoryID, "error", err)
		return
	}

	slog.Info("repository indexed", "repository_id", j.repositoryID, "chunks", len(chunks))
}

// Stats returns the current chunk count and language set for an already
// indexed repository.
func (s *Service) Stats(ctx context.Context, repositoryID string) (*model.Repository, error) {
	repo, err := s.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, apperr.NotFound("repository " + repositoryID + " not found")
	}
	return repo, nil
}

func distinctLanguages(chunks []*model.CodeChunk) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, c := range chunks {
		if !seen[c.Language] {
			seen[c.Language] = true
			langs = append(langs, c.Language)
		}
	}
	sort.Strings(langs)
	return langs
}

// readmeDescription renders a repository's top-level README (if any) to
// plain text for use as the repository's description, stripping markdown
// formatting via the commonmark renderer rather than hand-rolled regexes.
func readmeDescription(root string) string {
	for _, name := range []string{"README.md", "readme.md", "Readme.md"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		md := markdown.New(markdown.HTML(false), markdown.Typographer(false))
		html := md.RenderToString(data)
		text := stripTags(html)
		text = strings.TrimSpace(text)
		if len(text) > 280 {
			text = text[:280] + "..."
		}
		return text
	}
	return ""
}

func stripTags(html string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
