package chunker

import (
	"regexp"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/model"
)

var atxHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)

type mdHeading struct {
	line  int // 0-based
	level int
	title string
}

// chunkMarkdown chunks a markdown file by ATX heading: each heading owns
// the span up to (but not including) the next heading at the same or
// shallower level, matching how a reader mentally sections a doc. Chunks
// are emitted with chunkType "comment" (prose, not code). Fenced code
// blocks are tracked only so a "#" inside one isn't mistaken for a
// heading.
func chunkMarkdown(lines []string, lang string) []RawChunk {
	headings := parseHeadings(lines)
	if len(headings) == 0 {
		return nil
	}

	var chunks []RawChunk
	for i, h := range headings {
		end := len(lines)
		for j := i + 1; j < len(headings); j++ {
			if headings[j].level <= h.level {
				end = headings[j].line
				break
			}
		}
		for end > h.line+1 && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		chunks = append(chunks, RawChunk{
			Language:   lang,
			Content:    joinLines(lines, h.line+1, end),
			StartLine:  h.line + 1,
			EndLine:    end,
			ChunkType:  model.ChunkTypeComment,
			SymbolName: h.title,
		})
	}

	// Prose before the first heading, if any, is attached to a leading
	// unnamed chunk rather than dropped.
	if headings[0].line > 0 {
		lead := joinLines(lines, 1, headings[0].line)
		if strings.TrimSpace(lead) != "" {
			chunks = append([]RawChunk{{
				Language:  lang,
				Content:   lead,
				StartLine: 1,
				EndLine:   headings[0].line,
				ChunkType: model.ChunkTypeComment,
			}}, chunks...)
		}
	}

	return chunks
}

func parseHeadings(lines []string) []mdHeading {
	var headings []mdHeading
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
			headings = append(headings, mdHeading{line: i, level: len(m[1]), title: m[2]})
		}
	}
	return headings
}
