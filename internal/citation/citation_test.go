package citation

import "testing"

func TestGround_DedupsRepeatedInlineMarker(t *testing.T) {
	svc := New()
	grounded := svc.Ground("See [src/a.cs:10-20] and [src/a.cs:10-20].", nil)

	if len(grounded.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(grounded.Citations))
	}
	want := "See [1] and [1]."
	if grounded.Content != want {
		t.Fatalf("content = %q, want %q", grounded.Content, want)
	}
}

func TestGround_ExtractsFromToolResultHeader(t *testing.T) {
	svc := New()
	toolResult := "--- [src/main.go:5-12] (function: Run) [Score: 0.91] ---\n```go\nfunc Run() {}\n```"

	grounded := svc.Ground("As shown in [src/main.go:5-12], it works.", []string{toolResult})

	if len(grounded.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(grounded.Citations))
	}
	c := grounded.Citations[0]
	if c.FilePath != "src/main.go" || c.StartLine != 5 || c.EndLine != 12 {
		t.Fatalf("unexpected citation: %+v", c)
	}
	if c.RelevanceScore != 0.91 {
		t.Fatalf("relevance score = %v, want 0.91", c.RelevanceScore)
	}
	if grounded.Content != "As shown in [1], it works." {
		t.Fatalf("content = %q", grounded.Content)
	}
}

func TestGround_SortsToolResultsByScoreDescending(t *testing.T) {
	svc := New()
	low := "--- [a.go:1-2] (function: A) [Score: 0.10] ---\n```go\na\n```"
	high := "--- [b.go:1-2] (function: B) [Score: 0.90] ---\n```go\nb\n```"

	grounded := svc.Ground("", []string{low, high})

	if len(grounded.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(grounded.Citations))
	}
	if grounded.Citations[0].FilePath != "b.go" {
		t.Fatalf("expected b.go first (higher score), got %s", grounded.Citations[0].FilePath)
	}
}

func TestGround_LeavesUnmatchedMarkerIntact(t *testing.T) {
	svc := New()
	grounded := svc.Ground("No citations exist [not:a:marker].", nil)
	if grounded.Content != "No citations exist [not:a:marker]." {
		t.Fatalf("content altered unexpectedly: %q", grounded.Content)
	}
}
