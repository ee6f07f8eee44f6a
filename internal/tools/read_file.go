package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/model"
)

var readFileSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"file_path": {"type": "string"},
		"start_line": {"type": "integer"},
		"end_line": {"type": "integer"}
	},
	"required": ["file_path"]
}`)

type readFileArgs struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// ChunkLister is the subset of store access read_file and find_references
// need: every chunk belonging to a repository.
type ChunkLister interface {
	QueryByRepository(ctx context.Context, repositoryID string) ([]*model.CodeChunk, error)
}

// NewReadFile builds the read_file tool: reconstructs a file's content
// from its chunks and returns an optionally windowed, line-numbered view.
func NewReadFile(store ChunkLister) *Tool {
	return &Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the indexed repository, optionally windowed by line range.",
		Schema:      readFileSchema,
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			var args readFileArgs
			if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
				return "Error: malformed arguments: " + err.Error()
			}
			if strings.TrimSpace(args.FilePath) == "" {
				return "Error: file_path is required"
			}

			chunks, err := store.QueryByRepository(ctx, repositoryID)
			if err != nil {
				return "Error: failed to load repository chunks: " + err.Error()
			}

			path, candidates := resolveFilePath(chunks, args.FilePath)
			if path == "" {
				if len(candidates) > 1 {
					return "Multiple files match: " + strings.Join(candidates, ", ")
				}
				return "Error: no file matching " + args.FilePath
			}

			var fileChunks []*model.CodeChunk
			for _, c := range chunks {
				if c.FilePath == path {
					fileChunks = append(fileChunks, c)
				}
			}
			sort.Slice(fileChunks, func(i, j int) bool { return fileChunks[i].StartLine < fileChunks[j].StartLine })

			var lines []string
			for _, c := range fileChunks {
				lines = append(lines, strings.Split(c.Content, "\n")...)
			}
			if len(lines) == 0 {
				return "Error: file " + path + " has no indexed content"
			}

			start, end := 1, len(lines)
			if args.StartLine > 0 {
				start = args.StartLine
			}
			if args.EndLine > 0 {
				end = args.EndLine
			}
			if start < 1 {
				start = 1
			}
			if end > len(lines) {
				end = len(lines)
			}
			if start > len(lines) {
				start = len(lines)
			}
			if start > end {
				start, end = end, start
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "--- %s [%d-%d] ---\n", path, start, end)
			for i := start; i <= end; i++ {
				fmt.Fprintf(&sb, "%6d | %s\n", i, lines[i-1])
			}
			return strings.TrimRight(sb.String(), "\n")
		},
	}
}

// resolveFilePath matches filePath against the repository's chunk set:
// case-insensitive exact match first, then substring fallback. It
// returns the resolved path (empty if none or ambiguous), and the list
// of candidate paths when the substring match is ambiguous.
func resolveFilePath(chunks []*model.CodeChunk, filePath string) (string, []string) {
	lower := strings.ToLower(filePath)

	seen := make(map[string]bool)
	var all []string
	for _, c := range chunks {
		if !seen[c.FilePath] {
			seen[c.FilePath] = true
			all = append(all, c.FilePath)
		}
	}

	for _, p := range all {
		if strings.EqualFold(p, filePath) {
			return p, nil
		}
	}

	var candidates []string
	for _, p := range all {
		if strings.Contains(strings.ToLower(p), lower) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", candidates
}
