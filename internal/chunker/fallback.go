package chunker

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/pixell07/codeagent-rag/internal/config"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// chunkBySize is the universal fallback: used for languages with no
// semantic mode and for any file a semantic mode failed to find a single
// declaration in, per spec.md §4.3's "semantic chunking must degrade to
// size-based chunking on parse failure, never silently drop content."
func chunkBySize(lines []string, lang string, cfg config.ChunkingConfig) []RawChunk {
	if len(lines) == 0 {
		return nil
	}
	content := strings.Join(lines, "\n")

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.OverlapSize),
	)
	parts, err := splitter.SplitText(content)
	if err != nil || len(parts) == 0 {
		parts = []string{content}
	}

	var chunks []RawChunk
	searchFrom := 0
	for _, part := range parts {
		idx := strings.Index(content[searchFrom:], part)
		var start, end int
		if idx < 0 {
			// Overlap or normalization moved the substring; fall back to
			// a span of len(part) bytes starting at searchFrom.
			start = searchFrom
			end = searchFrom + len(part)
			if end > len(content) {
				end = len(content)
			}
		} else {
			start = searchFrom + idx
			end = start + len(part)
		}

		startLine := lineAtOffset(content, start)
		endLine := lineAtOffset(content, max(start, end-1))

		chunks = append(chunks, RawChunk{
			Language:  lang,
			Content:   part,
			StartLine: startLine,
			EndLine:   endLine,
			ChunkType: model.ChunkTypeCode,
		})

		if idx >= 0 {
			searchFrom = start + 1 // allow overlap with the next part
		}
	}
	return chunks
}

// lineAtOffset returns the 1-based line number containing byte offset off
// in content.
func lineAtOffset(content string, off int) int {
	if off < 0 {
		off = 0
	}
	if off > len(content) {
		off = len(content)
	}
	return strings.Count(content[:off], "\n") + 1
}
