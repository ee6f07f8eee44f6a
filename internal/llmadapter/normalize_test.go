package llmadapter

import (
	"strings"
	"testing"
)

func toolDefs() []ToolDef {
	return []ToolDef{
		{Name: "code_search"},
		{Name: "read_file"},
	}
}

func TestNormalizeToolCall_ExtractsMatchingToolCall(t *testing.T) {
	content := `I'll search for that. {"name":"code_search","arguments":{"query":"Widget"}} let me look.`
	call, rest, ok := NormalizeToolCall(content, toolDefs())
	if !ok {
		t.Fatal("expected a matched tool call")
	}
	if call.FunctionName != "code_search" {
		t.Fatalf("unexpected function name: %q", call.FunctionName)
	}
	if !strings.Contains(call.Arguments, `"query"`) || !strings.Contains(call.Arguments, "Widget") {
		t.Fatalf("unexpected arguments: %q", call.Arguments)
	}
	if strings.Contains(rest, "code_search") {
		t.Fatalf("expected JSON object stripped from rest, got %q", rest)
	}
	if !strings.Contains(rest, "I'll search for that.") || !strings.Contains(rest, "let me look.") {
		t.Fatalf("expected surrounding text preserved, got %q", rest)
	}
}

func TestNormalizeToolCall_MatchesNameIgnoringSeparators(t *testing.T) {
	content := `{"name":"Code-Search","arguments":{"query":"x"}}`
	call, _, ok := NormalizeToolCall(content, toolDefs())
	if !ok {
		t.Fatal("expected a matched tool call")
	}
	if call.FunctionName != "code_search" {
		t.Fatalf("expected catalogue name preserved, got %q", call.FunctionName)
	}
}

func TestNormalizeToolCall_IgnoresBracesInsideStringLiterals(t *testing.T) {
	content := `{"name":"code_search","arguments":{"query":"a { b } c"}}`
	call, _, ok := NormalizeToolCall(content, toolDefs())
	if !ok {
		t.Fatal("expected a matched tool call despite braces inside a string literal")
	}
	if !strings.Contains(call.Arguments, "a { b } c") {
		t.Fatalf("expected literal braces preserved in arguments, got %q", call.Arguments)
	}
}

func TestNormalizeToolCall_NoObjectReturnsUnchanged(t *testing.T) {
	content := "just plain text, no tool call here"
	call, rest, ok := NormalizeToolCall(content, toolDefs())
	if ok {
		t.Fatalf("expected no match, got %+v", call)
	}
	if rest != content {
		t.Fatalf("expected content unchanged, got %q", rest)
	}
}

func TestNormalizeToolCall_UnknownToolNameReturnsUnchanged(t *testing.T) {
	content := `{"name":"delete_everything","arguments":{}}`
	_, rest, ok := NormalizeToolCall(content, toolDefs())
	if ok {
		t.Fatal("expected no match for an unknown tool name")
	}
	if rest != content {
		t.Fatalf("expected content unchanged, got %q", rest)
	}
}

func TestNormalizeToolCall_MissingNameFieldReturnsUnchanged(t *testing.T) {
	content := `{"arguments":{"query":"x"}}`
	_, rest, ok := NormalizeToolCall(content, toolDefs())
	if ok {
		t.Fatal("expected no match when name field is absent")
	}
	if rest != content {
		t.Fatalf("expected content unchanged, got %q", rest)
	}
}
