// Package chunker implements C3: walking a repository tree and producing
// semantically typed CodeChunks, preferring semantic cuts (class/method/
// function) and falling back to fixed-size chunking. Grounded on the
// teacher's document.splitDocument (the size-fallback path, generalized
// from one document to a file tree) and on other_examples'
// rajajisai-bot-go CodeChunkService (the per-file dispatch/skip-on-error
// shape), with semantic probes expressed as spec.md §9 expects: an
// accepted regex-based approximation of a real parser.
package chunker

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pixell07/codeagent-rag/internal/config"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// RawChunk is a CodeChunk before it has been assigned an id, repository,
// embedding, or creation timestamp — those are filled in by the ingestion
// pipeline after chunking.
type RawChunk struct {
	FilePath   string
	FileName   string
	Language   string
	Content    string
	StartLine  int
	EndLine    int
	ChunkType  model.ChunkType
	SymbolName string
	Metadata   model.ChunkMetadata
}

// Chunker walks a repository tree and produces RawChunks.
type Chunker struct {
	cfg config.ChunkingConfig
}

// New builds a Chunker using the given chunking configuration.
func New(cfg config.ChunkingConfig) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = 1500
	}
	if cfg.OverlapSize <= 0 {
		cfg.OverlapSize = 150
	}
	return &Chunker{cfg: cfg}
}

// ChunkRepository walks root and chunks every eligible file. File-level
// chunking is parallelised (spec.md §5); a file that fails to read or
// parse is logged and skipped, the walk continues for the rest.
func (c *Chunker) ChunkRepository(ctx context.Context, root string) ([]RawChunk, error) {
	paths, err := c.collectFiles(root)
	if err != nil {
		return nil, err
	}

	results := make([][]RawChunk, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.NumCPU()))

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			chunks, err := c.chunkFile(root, p)
			if err != nil {
				slog.Warn("skipping file that failed to chunk", "path", p, "error", err)
				return nil
			}
			results[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []RawChunk
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// collectFiles recursively walks root, filtering excluded directories and
// files, keeping only extensions in the fixed language table.
func (c *Chunker) collectFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Warn("walk error, skipping", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcludedFile(d.Name()) {
			return nil
		}
		if _, ok := languageForPath(path); !ok {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Chunker) chunkFile(root, path string) ([]RawChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lang, _ := languageForPath(path)
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)
	fileName := filepath.Base(path)
	content := string(data)
	lines := splitLines(content)

	var chunks []RawChunk
	switch {
	case markdownLanguages[lang]:
		chunks = chunkMarkdown(lines, lang)
	case braceLanguages[lang]:
		chunks = chunkBraceLanguage(lines, lang)
	case indentLanguages[lang]:
		chunks = chunkIndentLanguage(lines, lang)
	}

	if len(chunks) == 0 {
		chunks = chunkBySize(lines, lang, c.cfg)
	}

	for i := range chunks {
		chunks[i].FilePath = relPath
		chunks[i].FileName = fileName
		chunks[i].Language = lang
	}

	// Ordering within a file is ascending by startLine, per spec.md §4.3.
	sortChunksByStartLine(chunks)
	return chunks, nil
}

func sortChunksByStartLine(chunks []RawChunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].StartLine > chunks[j].StartLine; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}

// splitLines splits content into lines without trailing '\n', matching
// the semantics lineCount(c.content) == c.endLine - c.startLine + 1
// requires: each line is exactly one element, even the trailing blank
// line is dropped if the file doesn't end with a newline followed by more
// content.
func splitLines(content string) []string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func joinLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
