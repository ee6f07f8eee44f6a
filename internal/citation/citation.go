// Package citation implements C8: extracting, deduplicating, and
// renumbering file-line references so a final answer carries verifiable
// sources. Grounded on spec.md §4.8; the header-block pattern matched
// here is exactly what internal/tools/code_search.go emits.
package citation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pixell07/codeagent-rag/internal/model"
)

// headerBlockRe matches code_search's `--- [path:start-end] (type: sym)
// [Score: s] ---` header followed by a fenced code block.
var headerBlockRe = regexp.MustCompile(
	"(?s)--- \\[([^:]+):(\\d+)-(\\d+)\\] \\([^:]*:\\s*([^)]*)\\) \\[Score: ([0-9.]+)\\] ---\\s*```[a-zA-Z0-9_+-]*\\n(.*?)\\n```")

// inlineRe matches an assistant-authored `[path:line]` or
// `[path:start-end]` marker.
var inlineRe = regexp.MustCompile(`\[([^\[\]:]+):(\d+)(?:-(\d+))?\]`)

// GroundedContent is the citation service's output: the assistant
// content rewritten to use renumbered `[N]` markers, the deduplicated
// citation list in renumbered order, and a lookup from "path:line" to
// its assigned number.
type GroundedContent struct {
	Content     string
	Citations   []model.Citation
	CitationMap map[string]int
}

// Service extracts and grounds citations for one agent response.
type Service struct{}

// New builds a citation Service.
func New() *Service { return &Service{} }

// Ground extracts citations from toolResults (sorted by score descending,
// ties kept in accumulation order) followed by inline markers in content,
// deduplicates by (filePath, startLine,
// endLine) preserving first occurrence, renumbers 1-based, and rewrites
// matched inline markers in content to their assigned [N].
func (s *Service) Ground(content string, toolResults []string) GroundedContent {
	type candidate struct {
		citation model.Citation
		score    float64
	}

	var fromTools []candidate
	for _, result := range toolResults {
		for _, m := range headerBlockRe.FindAllStringSubmatch(result, -1) {
			start, _ := strconv.Atoi(m[2])
			end, _ := strconv.Atoi(m[3])
			score, _ := strconv.ParseFloat(m[5], 64)
			fromTools = append(fromTools, candidate{
				citation: model.Citation{
					ID:             uuid.NewString(),
					FilePath:       m[1],
					StartLine:      start,
					EndLine:        end,
					Content:        m[6],
					SymbolName:     strings.TrimSpace(m[4]),
					RelevanceScore: score,
					SourceType:     model.SourceCodeSearch,
				},
				score: score,
			})
		}
	}
	sort.SliceStable(fromTools, func(i, j int) bool { return fromTools[i].score > fromTools[j].score })

	seen := make(map[citeKey]bool)
	var ordered []model.Citation

	for _, c := range fromTools {
		k := citeKey{c.citation.FilePath, c.citation.StartLine, c.citation.EndLine}
		if seen[k] {
			continue
		}
		seen[k] = true
		ordered = append(ordered, c.citation)
	}

	for _, m := range inlineRe.FindAllStringSubmatch(content, -1) {
		start, _ := strconv.Atoi(m[2])
		end := start
		if m[3] != "" {
			end, _ = strconv.Atoi(m[3])
		}
		k := citeKey{m[1], start, end}
		if seen[k] {
			continue
		}
		seen[k] = true
		ordered = append(ordered, model.Citation{
			ID:         uuid.NewString(),
			FilePath:   m[1],
			StartLine:  start,
			EndLine:    end,
			SourceType: model.SourceReference,
		})
	}

	citationMap := make(map[string]int, len(ordered))
	for i, c := range ordered {
		citationMap[mapKey(c.FilePath, c.StartLine)] = i + 1
		if c.EndLine != c.StartLine {
			citationMap[mapKey(c.FilePath, c.EndLine)] = i + 1
		}
	}

	rewritten := inlineRe.ReplaceAllStringFunc(content, func(match string) string {
		m := inlineRe.FindStringSubmatch(match)
		start, _ := strconv.Atoi(m[2])
		end := start
		if m[3] != "" {
			end, _ = strconv.Atoi(m[3])
		}
		k := citeKey{m[1], start, end}
		n, ok := indexOf(ordered, k)
		if !ok {
			return match
		}
		return "[" + strconv.Itoa(n) + "]"
	})

	return GroundedContent{Content: rewritten, Citations: ordered, CitationMap: citationMap}
}

type citeKey struct {
	path       string
	start, end int
}

func indexOf(citations []model.Citation, k citeKey) (int, bool) {
	for i, c := range citations {
		if c.FilePath == k.path && c.StartLine == k.start && c.EndLine == k.end {
			return i + 1, true
		}
	}
	return 0, false
}

func mapKey(path string, line int) string {
	return path + ":" + strconv.Itoa(line)
}
