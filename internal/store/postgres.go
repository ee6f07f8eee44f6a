// Package store implements C2: persistence for chunks, repositories, and
// conversations, plus the vector-distance top-K query the hybrid retriever
// depends on. Chunks and repositories live in PostgreSQL via pgx/pgvector
// (grounded on the teacher's pgxpool wiring and on other_examples'
// seanblong-reposearch raw-SQL pgvector store); conversations live in Redis
// with an optional TTL (grounded on goadesign-goa-ai's use of go-redis).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// PostgresStore implements the chunks and repositories collections.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the given DSN and pings it before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperr.Store("connect to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Store("ping postgres", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// Migrate creates the chunks/repositories tables and the vector index.
// dim is the fixed embedding dimensionality for this deployment.
func (s *PostgresStore) Migrate(ctx context.Context, dim int) error {
	q := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS repositories (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	path         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	indexed_at   TIMESTAMPTZ,
	chunk_count  INT NOT NULL DEFAULT 0,
	languages    TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	file_path     TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	language      TEXT NOT NULL,
	content       TEXT NOT NULL,
	start_line    INT NOT NULL,
	end_line      INT NOT NULL,
	chunk_type    TEXT NOT NULL,
	symbol_name   TEXT NOT NULL DEFAULT '',
	embedding     vector(%d),
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chunks_repository_idx ON chunks (repository_id);
CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
	USING hnsw (embedding vector_cosine_ops);
`, dim)
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return apperr.Store("migrate schema", err)
	}
	return nil
}

// --- repositories ---

func (s *PostgresStore) UpsertRepository(ctx context.Context, repo *model.Repository) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO repositories (id, name, path, description, indexed_at, chunk_count, languages)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, path = EXCLUDED.path, description = EXCLUDED.description,
			indexed_at = EXCLUDED.indexed_at, chunk_count = EXCLUDED.chunk_count,
			languages = EXCLUDED.languages`,
		repo.ID, repo.Name, repo.Path, repo.Description, repo.IndexedAt, repo.ChunkCount, repo.Languages,
	)
	if err != nil {
		return apperr.Store("upsert repository", err)
	}
	return nil
}

// GetRepository returns nil, nil on a miss (not-found is a null result, not
// an error, per spec.md §4.2).
func (s *PostgresStore) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, path, description, indexed_at, chunk_count, languages
		FROM repositories WHERE id = $1`, id)

	var r model.Repository
	if err := row.Scan(&r.ID, &r.Name, &r.Path, &r.Description, &r.IndexedAt, &r.ChunkCount, &r.Languages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Store("get repository", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, path, description, indexed_at, chunk_count, languages
		FROM repositories ORDER BY id`)
	if err != nil {
		return nil, apperr.Store("list repositories", err)
	}
	defer rows.Close()

	var out []*model.Repository
	for rows.Next() {
		var r model.Repository
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.Description, &r.IndexedAt, &r.ChunkCount, &r.Languages); err != nil {
			return nil, apperr.Store("scan repository", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id); err != nil {
		return apperr.Store("delete repository", err)
	}
	return nil
}

// --- chunks ---

func (s *PostgresStore) UpsertChunk(ctx context.Context, c *model.CodeChunk) error {
	return s.upsertChunk(ctx, s.pool, c)
}

func (s *PostgresStore) upsertChunk(ctx context.Context, q pgxQuerier, c *model.CodeChunk) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return apperr.Store("encode chunk metadata", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO chunks (
			id, repository_id, file_path, file_name, language, content,
			start_line, end_line, chunk_type, symbol_name, embedding, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, start_line = EXCLUDED.start_line,
			end_line = EXCLUDED.end_line, embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		c.ID, c.RepositoryID, c.FilePath, c.FileName, c.Language, c.Content,
		c.StartLine, c.EndLine, string(c.ChunkType), c.SymbolName,
		pgvector.NewVector(c.Embedding), meta, c.CreatedAt,
	)
	if err != nil {
		return apperr.Store("upsert chunk", err)
	}
	return nil
}

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx, letting
// BulkUpsertChunks run inside a single transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// BulkUpsertChunks upserts all chunks inside one transaction. Completion of
// all upserts is awaited by the caller before the repository record is
// rewritten, per spec.md §5.
func (s *PostgresStore) BulkUpsertChunks(ctx context.Context, chunks []*model.CodeChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Store("begin bulk upsert", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		if err := s.upsertChunk(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Store("commit bulk upsert", err)
	}
	return nil
}

// DeleteByRepository enumerates the partition and removes each chunk
// individually. This is intentionally best-effort: a failure partway
// through may leave chunks behind, and callers MUST tolerate that on
// retry, per spec.md §4.2/§5.
func (s *PostgresStore) DeleteByRepository(ctx context.Context, repositoryID string) error {
	rows, err := s.pool.Query(ctx, `SELECT id FROM chunks WHERE repository_id = $1`, repositoryID)
	if err != nil {
		return apperr.Store("enumerate chunks for delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return apperr.Store("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return apperr.Store("enumerate chunks for delete", err)
	}

	var firstErr error
	for _, id := range ids {
		if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE id = $1`, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return apperr.Store("delete by repository (partial)", firstErr)
	}
	return nil
}

func (s *PostgresStore) QueryByRepository(ctx context.Context, repositoryID string) ([]*model.CodeChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, repository_id, file_path, file_name, language, content,
			start_line, end_line, chunk_type, symbol_name, metadata, created_at
		FROM chunks WHERE repository_id = $1 ORDER BY file_path, start_line`, repositoryID)
	if err != nil {
		return nil, apperr.Store("query by repository", err)
	}
	defer rows.Close()

	var out []*model.CodeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// VectorTopK returns the K chunks in repositoryID minimizing cosine
// distance to queryEmbedding, ascending by distance, each annotated with
// its Distance.
func (s *PostgresStore) VectorTopK(ctx context.Context, repositoryID string, queryEmbedding []float32, k int) ([]*model.CodeChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, repository_id, file_path, file_name, language, content,
			start_line, end_line, chunk_type, symbol_name, metadata, created_at,
			embedding <=> $1 AS distance
		FROM chunks
		WHERE repository_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(queryEmbedding), repositoryID, k,
	)
	if err != nil {
		return nil, apperr.Store("vector top-k query", err)
	}
	defer rows.Close()

	var out []*model.CodeChunk
	for rows.Next() {
		var (
			c        model.CodeChunk
			metaJSON []byte
			distance float64
		)
		if err := rows.Scan(&c.ID, &c.RepositoryID, &c.FilePath, &c.FileName, &c.Language, &c.Content,
			&c.StartLine, &c.EndLine, &c.ChunkType, &c.SymbolName, &metaJSON, &c.CreatedAt, &distance); err != nil {
			return nil, apperr.Store("scan vector top-k row", err)
		}
		_ = json.Unmarshal(metaJSON, &c.Metadata)
		c.Distance = distance
		out = append(out, &c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*model.CodeChunk, error) {
	var (
		c        model.CodeChunk
		metaJSON []byte
	)
	if err := row.Scan(&c.ID, &c.RepositoryID, &c.FilePath, &c.FileName, &c.Language, &c.Content,
		&c.StartLine, &c.EndLine, &c.ChunkType, &c.SymbolName, &metaJSON, &c.CreatedAt); err != nil {
		return nil, apperr.Store("scan chunk", err)
	}
	_ = json.Unmarshal(metaJSON, &c.Metadata)
	return &c, nil
}
