package chunker

import (
	"regexp"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/model"
)

var (
	pyDefRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	pyClassRe = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_][A-Za-z0-9_]*)`)
	rbDefRe   = regexp.MustCompile(`^(\s*)def\s+([A-Za-z_][A-Za-z0-9_?!=]*)`)
	rbClassRe = regexp.MustCompile(`^(\s*)(?:class|module)\s+([A-Za-z_][A-Za-z0-9_:]*)`)
)

type indentHeader struct {
	line       int // 0-based
	indent     int
	name       string
	isClass    bool
	parentName string
}

// chunkIndentLanguage chunks indentation-delimited source (Python, Ruby)
// by pairing each def/class header with the next header at an
// indentation <= its own — a known approximation of full indentation
// parsing, acceptable per the fallback-on-failure contract since any
// file this misparses still produces size-based chunks downstream.
func chunkIndentLanguage(lines []string, lang string) []RawChunk {
	headers := findIndentHeaders(lines, lang)
	if len(headers) == 0 {
		return nil
	}

	var chunks []RawChunk
	for i, h := range headers {
		end := len(lines)
		for j := i + 1; j < len(headers); j++ {
			if headers[j].indent <= h.indent {
				end = headers[j].line
				break
			}
		}
		// Trim trailing blank lines from the span.
		for end > h.line+1 && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}

		chunkType := model.ChunkTypeFunction
		if h.isClass {
			chunkType = model.ChunkTypeClass
		} else if h.parentName != "" {
			chunkType = model.ChunkTypeMethod
		}

		chunks = append(chunks, RawChunk{
			Language:   lang,
			Content:    joinLines(lines, h.line+1, end),
			StartLine:  h.line + 1,
			EndLine:    end,
			ChunkType:  chunkType,
			SymbolName: h.name,
			Metadata:   model.ChunkMetadata{ParentClass: h.parentName},
		})
	}
	return chunks
}

func findIndentHeaders(lines []string, lang string) []indentHeader {
	var headers []indentHeader
	var classStack []indentHeader

	defRe, classRe := pyDefRe, pyClassRe
	if lang == "ruby" {
		defRe, classRe = rbDefRe, rbClassRe
	}

	for i, line := range lines {
		if m := classRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			for len(classStack) > 0 && classStack[len(classStack)-1].indent >= indent {
				classStack = classStack[:len(classStack)-1]
			}
			h := indentHeader{line: i, indent: indent, name: m[2], isClass: true}
			headers = append(headers, h)
			classStack = append(classStack, h)
			continue
		}
		if m := defRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			for len(classStack) > 0 && classStack[len(classStack)-1].indent >= indent {
				classStack = classStack[:len(classStack)-1]
			}
			parent := ""
			if len(classStack) > 0 {
				parent = classStack[len(classStack)-1].name
			}
			headers = append(headers, indentHeader{line: i, indent: indent, name: m[2], parentName: parent})
		}
	}
	return headers
}
