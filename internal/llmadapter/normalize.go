package llmadapter

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pixell07/codeagent-rag/internal/model"
)

// jsonToolCall is the shape a non-native provider is asked to emit inline
// in its assistant content.
type jsonToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NormalizeToolCall scans content for the first balanced JSON object and,
// if its "name" field matches a tool in the catalogue (case-insensitive,
// ignoring separators such as '_'/'-'/' ' in the name), returns a synthetic
// ToolCall plus the content with that JSON object stripped out. If no
// matching object is found, ok is false and content is returned unchanged.
//
// This is the adapter-level normalization spec.md §4.1 requires for
// providers that emit tool calls as JSON embedded in assistant text rather
// than through a native tool-calling wire format.
func NormalizeToolCall(content string, tools []ToolDef) (call model.ToolCall, rest string, ok bool) {
	obj, start, end, found := firstBalancedObject(content)
	if !found {
		return model.ToolCall{}, content, false
	}

	var parsed jsonToolCall
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil || parsed.Name == "" {
		return model.ToolCall{}, content, false
	}

	var matched string
	for _, t := range tools {
		if normalizeName(t.Name) == normalizeName(parsed.Name) {
			matched = t.Name
			break
		}
	}
	if matched == "" {
		return model.ToolCall{}, content, false
	}

	argsJSON, err := json.Marshal(parsed.Arguments)
	if err != nil {
		argsJSON = []byte("{}")
	}

	call = model.ToolCall{
		ID:           uuid.NewString(),
		FunctionName: matched,
		Arguments:    string(argsJSON),
	}
	rest = strings.TrimSpace(content[:start] + content[end:])
	return call, rest, true
}

// normalizeName lowercases and strips separators so "code_search",
// "code-search", "Code Search" and "codesearch" all compare equal.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case '_', '-', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// firstBalancedObject scans s for the first top-level-balanced {...} span,
// ignoring braces inside JSON string literals (tracking backslash escapes).
func firstBalancedObject(s string) (obj string, start, end int, found bool) {
	depth := 0
	inString := false
	escaped := false
	openIdx := -1

	for i, r := range s {
		if openIdx == -1 {
			if r == '{' {
				openIdx = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[openIdx : i+1], openIdx, i + 1, true
				}
			}
		}
	}
	return "", 0, 0, false
}
