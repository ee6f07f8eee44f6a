package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/model"
	"github.com/pixell07/codeagent-rag/internal/retrieval"
)

const codeSearchMaxResults = 5

var codeSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string"},
		"language": {"type": "string"},
		"chunk_type": {"type": "string", "enum": ["code", "class", "method", "function", "comment"]}
	},
	"required": ["query"]
}`)

type codeSearchArgs struct {
	Query     string `json:"query"`
	Language  string `json:"language"`
	ChunkType string `json:"chunk_type"`
}

// NewCodeSearch builds the code_search tool: hybrid search against the
// repository, formatted as header blocks the citation service re-parses.
func NewCodeSearch(svc *retrieval.Service) *Tool {
	return &Tool{
		Name:        "code_search",
		Description: "Search the indexed repository for code relevant to a natural-language query.",
		Schema:      codeSearchSchema,
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			var args codeSearchArgs
			if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
				return "Error: malformed arguments: " + err.Error()
			}
			if strings.TrimSpace(args.Query) == "" {
				return "Error: query is required"
			}

			filters := retrieval.Filters{
				Language:  args.Language,
				ChunkType: model.ChunkType(args.ChunkType),
			}
			results, err := svc.HybridSearch(ctx, repositoryID, args.Query, codeSearchMaxResults, filters)
			if err != nil {
				return "Error: search failed: " + err.Error()
			}
			if len(results) == 0 {
				return "No matching code found."
			}

			var sb strings.Builder
			for _, r := range results {
				c := r.Chunk
				fmt.Fprintf(&sb, "--- [%s:%d-%d] (%s: %s) [Score: %.2f] ---\n```%s\n%s\n```\n\n",
					c.FilePath, c.StartLine, c.EndLine, c.ChunkType, c.SymbolName, r.Score, c.Language, c.Content)
			}
			return strings.TrimRight(sb.String(), "\n")
		},
	}
}
