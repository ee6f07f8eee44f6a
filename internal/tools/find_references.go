package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/model"
)

var findReferencesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"symbol": {"type": "string"},
		"kind": {"type": "string", "enum": ["function", "class", "variable", "any"]}
	},
	"required": ["symbol"]
}`)

type findReferencesArgs struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
}

const referenceGroupCap = 20

type referenceHit struct {
	filePath string
	line     int
	text     string
}

// NewFindReferences builds the find_references tool: a regex-based scan
// for definitions, calls, and bare usages of a symbol across every
// indexed chunk.
func NewFindReferences(store ChunkLister) *Tool {
	return &Tool{
		Name:        "find_references",
		Description: "Find definitions, calls, and usages of a symbol across the indexed repository.",
		Schema:      findReferencesSchema,
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			var args findReferencesArgs
			if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
				return "Error: malformed arguments: " + err.Error()
			}
			symbol := strings.TrimSpace(args.Symbol)
			if symbol == "" {
				return "Error: symbol is required"
			}
			kind := args.Kind
			if kind == "" {
				kind = "any"
			}

			chunks, err := store.QueryByRepository(ctx, repositoryID)
			if err != nil {
				return "Error: failed to load repository chunks: " + err.Error()
			}

			defs, calls, usages := scanReferences(chunks, symbol, kind)
			if len(defs) == 0 && len(calls) == 0 && len(usages) == 0 {
				return fmt.Sprintf("No references to %q found.", symbol)
			}

			var sb strings.Builder
			writeGroup(&sb, "Definitions", defs)
			writeGroup(&sb, "Calls", calls)
			writeGroup(&sb, "Usages", usages)
			return strings.TrimRight(sb.String(), "\n")
		},
	}
}

func writeGroup(sb *strings.Builder, label string, hits []referenceHit) {
	if len(hits) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	shown := hits
	overflow := 0
	if len(hits) > referenceGroupCap {
		shown = hits[:referenceGroupCap]
		overflow = len(hits) - referenceGroupCap
	}
	for _, h := range shown {
		fmt.Fprintf(sb, "[%s:%d] %s\n", h.filePath, h.line, strings.TrimSpace(h.text))
	}
	if overflow > 0 {
		fmt.Fprintf(sb, "... and %d more\n", overflow)
	}
	sb.WriteString("\n")
}

func defPatterns(symbol, kind string) []*regexp.Regexp {
	q := regexp.QuoteMeta(symbol)
	var pats []string
	if kind == "class" || kind == "any" {
		pats = append(pats, `\b(?:class|struct|interface|enum|trait)\s+`+q+`\b`)
	}
	if kind == "function" || kind == "any" {
		pats = append(pats, `\b(?:func|function|def|fn)\s+(?:\([^)]*\)\s*)?`+q+`\s*\(`)
		pats = append(pats, `\b(?:public|private|protected|static|internal)\s+[\w<>\[\],\s]*\b`+q+`\s*\(`)
	}
	if kind == "variable" || kind == "any" {
		pats = append(pats, `\b(?:const|let|var|val)\s+`+q+`\b`)
	}
	out := make([]*regexp.Regexp, 0, len(pats))
	for _, p := range pats {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func callPattern(symbol string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\s*\(`)
}

func usagePattern(symbol string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
}

func scanReferences(chunks []*model.CodeChunk, symbol, kind string) (defs, calls, usages []referenceHit) {
	defRes := defPatterns(symbol, kind)
	callRe := callPattern(symbol)
	useRe := usagePattern(symbol)

	for _, c := range chunks {
		lines := strings.Split(c.Content, "\n")
		for offset, line := range lines {
			absLine := c.StartLine + offset
			hit := referenceHit{filePath: c.FilePath, line: absLine, text: line}

			isDef := false
			for _, re := range defRes {
				if re.MatchString(line) {
					defs = append(defs, hit)
					isDef = true
					break
				}
			}
			if isDef {
				continue
			}
			if callRe.MatchString(line) {
				calls = append(calls, hit)
				continue
			}
			if useRe.MatchString(line) {
				usages = append(usages, hit)
			}
		}
	}
	return defs, calls, usages
}
