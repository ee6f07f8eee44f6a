package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pixell07/codeagent-rag/internal/model"
)

func TestCatalog_RunRejectsArgumentsFailingSchema(t *testing.T) {
	tool := &Tool{
		Name:   "needs_symbol",
		Schema: json.RawMessage(`{"type":"object","properties":{"symbol":{"type":"string"}},"required":["symbol"]}`),
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			return "ran"
		},
	}
	cat, err := NewCatalog(tool)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	got, _ := cat.Get("needs_symbol")

	result := got.Run(context.Background(), "repo-1", `{}`)
	if !strings.HasPrefix(result, "Error: arguments failed schema validation") {
		t.Fatalf("expected schema validation error, got %q", result)
	}
}

func TestCatalog_RunRejectsMalformedJSON(t *testing.T) {
	tool := &Tool{
		Name:   "needs_symbol",
		Schema: json.RawMessage(`{"type":"object","properties":{"symbol":{"type":"string"}}}`),
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			return "ran"
		},
	}
	cat, err := NewCatalog(tool)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	got, _ := cat.Get("needs_symbol")

	result := got.Run(context.Background(), "repo-1", `{not json`)
	if !strings.HasPrefix(result, "Error: malformed arguments JSON") {
		t.Fatalf("expected malformed JSON error, got %q", result)
	}
}

func TestCatalog_RunExecutesOnValidArguments(t *testing.T) {
	tool := &Tool{
		Name:   "needs_symbol",
		Schema: json.RawMessage(`{"type":"object","properties":{"symbol":{"type":"string"}},"required":["symbol"]}`),
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			return "ran for " + repositoryID
		},
	}
	cat, err := NewCatalog(tool)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	got, _ := cat.Get("needs_symbol")

	result := got.Run(context.Background(), "repo-1", `{"symbol":"Foo"}`)
	if result != "ran for repo-1" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestCatalog_NamesPreservesRegistrationOrder(t *testing.T) {
	a := &Tool{Name: "a", Execute: func(context.Context, string, string) string { return "" }}
	b := &Tool{Name: "b", Execute: func(context.Context, string, string) string { return "" }}
	cat, err := NewCatalog(a, b)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	names := cat.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names: %v", names)
	}
}

type fakeChunkLister struct {
	chunks []*model.CodeChunk
}

func (f *fakeChunkLister) QueryByRepository(ctx context.Context, repositoryID string) ([]*model.CodeChunk, error) {
	return f.chunks, nil
}

func TestReadFile_WindowsByLineRange(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "main.go", StartLine: 1, EndLine: 5, Content: "line1\nline2\nline3\nline4\nline5"},
	}}
	tool := NewReadFile(store)

	result := tool.Execute(context.Background(), "repo-1", `{"file_path":"main.go","start_line":2,"end_line":3}`)
	if !strings.Contains(result, "--- main.go [2-3] ---") {
		t.Fatalf("expected window header, got %q", result)
	}
	if !strings.Contains(result, "line2") || !strings.Contains(result, "line3") {
		t.Fatalf("expected windowed lines present, got %q", result)
	}
	if strings.Contains(result, "line4") {
		t.Fatalf("expected line4 excluded from window, got %q", result)
	}
}

func TestReadFile_ClampsOutOfRangeWindow(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "main.go", StartLine: 1, EndLine: 2, Content: "line1\nline2"},
	}}
	tool := NewReadFile(store)

	result := tool.Execute(context.Background(), "repo-1", `{"file_path":"main.go","start_line":10,"end_line":20}`)
	if !strings.Contains(result, "--- main.go [2-2] ---") {
		t.Fatalf("expected clamp to last line, got %q", result)
	}
}

func TestReadFile_AmbiguousSubstringMatchListsCandidates(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "pkg/a/util.go", StartLine: 1, EndLine: 1, Content: "x"},
		{FilePath: "pkg/b/util.go", StartLine: 1, EndLine: 1, Content: "y"},
	}}
	tool := NewReadFile(store)

	result := tool.Execute(context.Background(), "repo-1", `{"file_path":"util.go"}`)
	if !strings.HasPrefix(result, "Multiple files match:") {
		t.Fatalf("expected ambiguous match message, got %q", result)
	}
	if !strings.Contains(result, "pkg/a/util.go") || !strings.Contains(result, "pkg/b/util.go") {
		t.Fatalf("expected both candidates listed, got %q", result)
	}
}

func TestReadFile_ExactCaseInsensitiveMatchWinsOverSubstring(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "Main.go", StartLine: 1, EndLine: 1, Content: "x"},
		{FilePath: "pkg/Main.go.bak", StartLine: 1, EndLine: 1, Content: "y"},
	}}
	tool := NewReadFile(store)

	result := tool.Execute(context.Background(), "repo-1", `{"file_path":"main.go"}`)
	if !strings.Contains(result, "--- Main.go [1-1] ---") {
		t.Fatalf("expected exact case-insensitive match to win, got %q", result)
	}
}

func TestReadFile_NoMatchReturnsError(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "main.go", StartLine: 1, EndLine: 1, Content: "x"},
	}}
	tool := NewReadFile(store)

	result := tool.Execute(context.Background(), "repo-1", `{"file_path":"missing.go"}`)
	if !strings.HasPrefix(result, "Error: no file matching") {
		t.Fatalf("expected no-match error, got %q", result)
	}
}

func TestFindReferences_GroupsDefsCallsAndUsages(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "a.go", StartLine: 10, Content: "func Widget() {\n\treturn Widget()\n}\n// see Widget above"},
	}}
	tool := NewFindReferences(store)

	result := tool.Execute(context.Background(), "repo-1", `{"symbol":"Widget"}`)
	if !strings.Contains(result, "Definitions:") || !strings.Contains(result, "[a.go:10]") {
		t.Fatalf("expected a definition group, got %q", result)
	}
	if !strings.Contains(result, "Calls:") || !strings.Contains(result, "[a.go:11]") {
		t.Fatalf("expected a call group, got %q", result)
	}
	if !strings.Contains(result, "Usages:") || !strings.Contains(result, "[a.go:13]") {
		t.Fatalf("expected a usage group, got %q", result)
	}
}

func TestFindReferences_CapsGroupAtTwentyWithOverflowNote(t *testing.T) {
	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, "Widget()")
	}
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "a.go", StartLine: 1, Content: strings.Join(lines, "\n")},
	}}
	tool := NewFindReferences(store)

	result := tool.Execute(context.Background(), "repo-1", `{"symbol":"Widget","kind":"function"}`)
	if !strings.Contains(result, "... and 5 more") {
		t.Fatalf("expected overflow note for 5 extra hits, got %q", result)
	}
}

func TestFindReferences_NoHitsReportsNotFound(t *testing.T) {
	store := &fakeChunkLister{chunks: []*model.CodeChunk{
		{FilePath: "a.go", StartLine: 1, Content: "nothing relevant here"},
	}}
	tool := NewFindReferences(store)

	result := tool.Execute(context.Background(), "repo-1", `{"symbol":"Widget"}`)
	if !strings.Contains(result, `No references to "Widget" found.`) {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestFindReferences_RequiresSymbol(t *testing.T) {
	store := &fakeChunkLister{}
	tool := NewFindReferences(store)

	result := tool.Execute(context.Background(), "repo-1", `{"symbol":"  "}`)
	if result != "Error: symbol is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}
