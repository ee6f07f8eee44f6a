package chunker

import (
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/pixell07/codeagent-rag/internal/model"
)

// Brace-language declaration probes. regexp2 gives us lookahead, which
// stdlib regexp cannot express and which the member-vs-declaration probe
// needs to avoid mistaking a field declaration for a method signature.
var (
	typeDeclRe = regexp2.MustCompile(
		`^\s*(?:(?:public|private|protected|internal|export|default|abstract|final|static|pub)\s+)*`+
			`(?:class|interface|struct|enum|trait)\s+([A-Za-z_][A-Za-z0-9_]*)`, regexp2.None)

	funcDeclRe = regexp2.MustCompile(
		`^\s*(?:(?:public|private|protected|internal|export|default|static|async|pub|virtual|override)\s+)*`+
			`(?:func|function|def|fn)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`, regexp2.None)

	// goFuncRe catches Go's `func (recv T) Name(` and bare `func Name(`
	// forms, which funcDeclRe's simpler prefix can miss on receivers.
	goFuncRe = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

	// memberDeclRe matches a visibility-prefixed method signature inside a
	// class body: a parenthesised parameter list followed (via a
	// lookahead) by '{', ';' or the end of the line, which a plain field
	// declaration does not have.
	memberDeclRe = regexp2.MustCompile(
		`^\s*(?:(?:public|private|protected|internal|static|virtual|override|async)\s+)+`+
			`[A-Za-z_][A-Za-z0-9_<>\[\],\s]*?\s+([A-Za-z_][A-Za-z0-9_]*)\s*\([^)]*\)\s*(?=\{|;|$)`, regexp2.None)

	namespaceRe = regexp.MustCompile(`^\s*namespace\s+([A-Za-z0-9_.]+)`)
	packageRe   = regexp.MustCompile(`^\s*package\s+([A-Za-z0-9_./]+)`)
)

// chunkBraceLanguage chunks a brace-delimited source file: one chunk per
// top-level class/struct/interface (split further into one chunk per
// member when the body has members), one chunk per top-level free
// function. Returns nil when no semantic declaration is found at all, so
// the caller falls back to size-based chunking.
func chunkBraceLanguage(lines []string, lang string) []RawChunk {
	namespace := detectNamespace(lines)
	var chunks []RawChunk

	i := 0
	for i < len(lines) {
		line := lines[i]

		if name, ok := matchTypeDecl(line); ok {
			openLine := findOpenBrace(lines, i)
			if openLine < 0 {
				i++
				continue
			}
			closeLine := matchBraceEnd(lines, openLine)
			if closeLine < 0 {
				closeLine = len(lines)
			}
			members := extractMembers(lines, openLine, closeLine, namespace, name)
			if len(members) > 0 {
				chunks = append(chunks, members...)
			} else {
				chunks = append(chunks, RawChunk{
					Language:   lang,
					Content:    joinLines(lines, i+1, closeLine),
					StartLine:  i + 1,
					EndLine:    closeLine,
					ChunkType:  model.ChunkTypeClass,
					SymbolName: name,
					Metadata:   model.ChunkMetadata{Namespace: namespace},
				})
			}
			i = closeLine
			continue
		}

		if name, ok := matchFreeFunc(line); ok {
			openLine := findOpenBrace(lines, i)
			if openLine < 0 {
				i++
				continue
			}
			closeLine := matchBraceEnd(lines, openLine)
			if closeLine < 0 {
				closeLine = len(lines)
			}
			chunks = append(chunks, RawChunk{
				Language:   lang,
				Content:    joinLines(lines, i+1, closeLine),
				StartLine:  i + 1,
				EndLine:    closeLine,
				ChunkType:  model.ChunkTypeFunction,
				SymbolName: name,
				Metadata:   model.ChunkMetadata{Namespace: namespace},
			})
			i = closeLine
			continue
		}

		i++
	}

	return chunks
}

func detectNamespace(lines []string) string {
	for _, l := range lines {
		if m := namespaceRe.FindStringSubmatch(l); m != nil {
			return m[1]
		}
		if m := packageRe.FindStringSubmatch(l); m != nil {
			return m[1]
		}
	}
	return ""
}

func matchTypeDecl(line string) (string, bool) {
	m, err := typeDeclRe.FindStringMatch(line)
	if err != nil || m == nil {
		return "", false
	}
	groups := m.Groups()
	if len(groups) < 2 || len(groups[1].Captures) == 0 {
		return "", false
	}
	return groups[1].Captures[0].String(), true
}

func matchFreeFunc(line string) (string, bool) {
	if m := goFuncRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	m, err := funcDeclRe.FindStringMatch(line)
	if err != nil || m == nil {
		return "", false
	}
	groups := m.Groups()
	if len(groups) < 2 || len(groups[1].Captures) == 0 {
		return "", false
	}
	return groups[1].Captures[0].String(), true
}

func matchMember(line string) (string, bool) {
	m, err := memberDeclRe.FindStringMatch(line)
	if err != nil || m == nil {
		return "", false
	}
	groups := m.Groups()
	if len(groups) < 2 || len(groups[1].Captures) == 0 {
		return "", false
	}
	return groups[1].Captures[0].String(), true
}

// findOpenBrace returns the line index (0-based) containing the '{' that
// opens the declaration starting at declLine, scanning forward a few
// lines to allow for a signature split across lines (e.g. multi-line
// parameter lists). Returns -1 if none is found within a reasonable
// window.
func findOpenBrace(lines []string, declLine int) int {
	for i := declLine; i < len(lines) && i < declLine+20; i++ {
		if strings.Contains(lines[i], "{") {
			return i
		}
		if strings.HasSuffix(strings.TrimSpace(lines[i]), ";") {
			return -1
		}
	}
	return -1
}

// matchBraceEnd finds the 0-based line index of the '}' that closes the
// brace opened on openLine, tracking depth and skipping braces that
// appear inside string or rune literals.
func matchBraceEnd(lines []string, openLine int) int {
	depth := 0
	for i := openLine; i < len(lines); i++ {
		depth += braceDelta(lines[i])
		if depth <= 0 && i > openLine {
			return i + 1 // RawChunk end lines are 1-based inclusive
		}
		if depth == 0 && i == openLine {
			return i + 1
		}
	}
	return -1
}

// braceDelta returns the net '{'/'}' depth change contributed by line,
// ignoring braces inside double-quoted or single-quoted literals.
func braceDelta(line string) int {
	delta := 0
	inString := false
	inChar := false
	escaped := false
	for _, r := range line {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case r == '\\' && (inString || inChar):
			escaped = true
		case inString:
			if r == '"' {
				inString = false
			}
		case inChar:
			if r == '\'' {
				inChar = false
			}
		case r == '"':
			inString = true
		case r == '\'':
			inChar = true
		case r == '{':
			delta++
		case r == '}':
			delta--
		}
	}
	return delta
}

// extractMembers scans the body between openLine and closeLine (0-based,
// closeLine is the 1-based end already) for member method declarations,
// emitting one chunk per member. Returns nil if the body has no
// recognisable members, signalling the caller to emit one class-level
// chunk instead.
func extractMembers(lines []string, openLine, closeLine int, namespace, parentClass string) []RawChunk {
	var chunks []RawChunk
	i := openLine + 1
	limit := closeLine - 1 // 0-based index of the line before the closing brace
	for i < limit && i < len(lines) {
		if name, ok := matchMember(lines[i]); ok {
			memberOpen := findOpenBrace(lines, i)
			if memberOpen < 0 || memberOpen >= limit {
				i++
				continue
			}
			memberClose := matchBraceEnd(lines, memberOpen)
			if memberClose < 0 || memberClose > closeLine {
				memberClose = closeLine
			}
			chunks = append(chunks, RawChunk{
				Content:    joinLines(lines, i+1, memberClose),
				StartLine:  i + 1,
				EndLine:    memberClose,
				ChunkType:  model.ChunkTypeMethod,
				SymbolName: name,
				Metadata:   model.ChunkMetadata{Namespace: namespace, ParentClass: parentClass},
			})
			i = memberClose
			continue
		}
		i++
	}
	return chunks
}
