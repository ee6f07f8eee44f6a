package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
	"github.com/pixell07/codeagent-rag/internal/tools"
)

type scriptedAdapter struct {
	chats     []llmadapter.ChatResult
	calls     int
	streamErr error
}

func (a *scriptedAdapter) Chat(ctx context.Context, messages []model.ChatMessage, toolDefs []llmadapter.ToolDef) (llmadapter.ChatResult, error) {
	if a.calls >= len(a.chats) {
		return llmadapter.ChatResult{}, nil
	}
	r := a.chats[a.calls]
	a.calls++
	return r, nil
}
func (a *scriptedAdapter) StreamChat(ctx context.Context, messages []model.ChatMessage) (<-chan llmadapter.StreamChunk, error) {
	ch := make(chan llmadapter.StreamChunk, 2)
	if a.streamErr != nil {
		ch <- llmadapter.StreamChunk{Content: "partial"}
		ch <- llmadapter.StreamChunk{Err: a.streamErr}
		close(ch)
		return ch, nil
	}
	ch <- llmadapter.StreamChunk{Content: "final answer"}
	close(ch)
	return ch, nil
}
func (a *scriptedAdapter) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (a *scriptedAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

type memConversationStore struct {
	convs map[string]*model.ConversationContext
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{convs: make(map[string]*model.ConversationContext)}
}
func (m *memConversationStore) Get(ctx context.Context, id string) (*model.ConversationContext, error) {
	c, ok := m.convs[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}
func (m *memConversationStore) Upsert(ctx context.Context, conv *model.ConversationContext) error {
	m.convs[conv.ID] = conv
	return nil
}

func echoTool() *tools.Tool {
	return &tools.Tool{
		Name:        "code_search",
		Description: "search",
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			return "--- [a.go:1-2] (function: A) [Score: 0.50] ---\n```go\nfunc A() {}\n```"
		},
	}
}

func newOrchestrator(t *testing.T, adapter llmadapter.Adapter) (*Orchestrator, *memConversationStore) {
	t.Helper()
	catalog, err := tools.NewCatalog(echoTool())
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	convStore := newMemConversationStore()
	return New(adapter, catalog, convStore), convStore
}

func TestRun_ReturnsFinalAnswerWithoutToolCalls(t *testing.T) {
	adapter := &scriptedAdapter{chats: []llmadapter.ChatResult{
		{Content: "no tools needed here"},
	}}
	orch, _ := newOrchestrator(t, adapter)

	resp, err := orch.Run(context.Background(), "repo-1", "", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsComplete {
		t.Fatal("expected IsComplete = true")
	}
	if resp.Content != "no tools needed here" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if len(resp.ReasoningSteps) != 0 {
		t.Fatalf("expected no reasoning steps, got %d", len(resp.ReasoningSteps))
	}
}

func TestRun_RecordsReasoningStepsAcrossToolCalls(t *testing.T) {
	toolCall := model.ToolCall{ID: "1", FunctionName: "code_search", Arguments: `{"query":"A"}`}
	adapter := &scriptedAdapter{chats: []llmadapter.ChatResult{
		{Content: "let me search", ToolCalls: []model.ToolCall{toolCall}},
		{Content: "found it: [a.go:1-2]"},
	}}
	orch, convStore := newOrchestrator(t, adapter)

	resp, err := orch.Run(context.Background(), "repo-1", "", "where is A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ReasoningSteps) != 1 {
		t.Fatalf("expected 1 reasoning step, got %d", len(resp.ReasoningSteps))
	}
	if resp.ReasoningSteps[0].Action != "code_search" {
		t.Fatalf("unexpected action: %q", resp.ReasoningSteps[0].Action)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("expected 1 grounded citation, got %d", len(resp.Citations))
	}
	if resp.Content != "found it: [1]" {
		t.Fatalf("expected renumbered citation marker, got %q", resp.Content)
	}
	if _, ok := convStore.convs[resp.ConversationID]; !ok {
		t.Fatal("expected conversation to be persisted")
	}
}

func TestRun_ExhaustsIterationBudget(t *testing.T) {
	toolCall := model.ToolCall{ID: "1", FunctionName: "code_search", Arguments: `{}`}
	chats := make([]llmadapter.ChatResult, 0, MaxIterations)
	for i := 0; i < MaxIterations; i++ {
		chats = append(chats, llmadapter.ChatResult{Content: "still looking", ToolCalls: []model.ToolCall{toolCall}})
	}
	adapter := &scriptedAdapter{chats: chats}
	orch, _ := newOrchestrator(t, adapter)

	resp, err := orch.Run(context.Background(), "repo-1", "", "find it")
	if err == nil {
		t.Fatal("expected an iteration-budget error")
	}
	if !apperr.Is(err, apperr.KindIterationExhausted) {
		t.Fatalf("expected KindIterationExhausted, got %v", err)
	}
	if resp == nil || resp.IsComplete {
		t.Fatalf("expected a non-nil, incomplete response, got %+v", resp)
	}
	if len(resp.ReasoningSteps) != MaxIterations {
		t.Fatalf("expected %d reasoning steps, got %d", MaxIterations, len(resp.ReasoningSteps))
	}
}

func TestRunStreaming_EmitsEventsInOrder(t *testing.T) {
	toolCall := model.ToolCall{ID: "1", FunctionName: "code_search", Arguments: `{}`}
	adapter := &scriptedAdapter{chats: []llmadapter.ChatResult{
		{Content: "searching", ToolCalls: []model.ToolCall{toolCall}},
		{Content: ""},
	}}
	orch, _ := newOrchestrator(t, adapter)

	events := make(chan StreamEvent, 16)
	if err := orch.RunStreaming(context.Background(), "repo-1", "", "where is A", events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []string
	for e := range events {
		types = append(types, e.Type)
	}

	want := []string{"action", "observation", "answer", "citation", "done"}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i, ty := range want {
		if types[i] != ty {
			t.Fatalf("event[%d] = %q, want %q (full sequence %v)", i, types[i], ty, types)
		}
	}
}

func TestRunStreaming_PropagatesProviderStreamError(t *testing.T) {
	adapter := &scriptedAdapter{
		chats:     []llmadapter.ChatResult{{Content: "no tools needed"}},
		streamErr: errors.New("connection reset"),
	}
	orch, _ := newOrchestrator(t, adapter)

	events := make(chan StreamEvent, 16)
	err := orch.RunStreaming(context.Background(), "repo-1", "", "hello", events)
	if err == nil {
		t.Fatal("expected a provider error when the stream breaks mid-answer")
	}
	if !apperr.Is(err, apperr.KindProvider) {
		t.Fatalf("expected KindProvider, got %v", err)
	}
}

func TestRenderMessages_CapsAtHistoryTurns(t *testing.T) {
	orch, _ := newOrchestrator(t, &scriptedAdapter{})
	conv := &model.ConversationContext{ID: "c1"}
	for i := 0; i < historyTurns+5; i++ {
		conv.Messages = append(conv.Messages, model.ChatMessage{Role: model.RoleUser, Content: "msg"})
	}

	rendered := orch.renderMessages(conv)
	if len(rendered) != historyTurns+1 {
		t.Fatalf("expected %d messages (system + %d turns), got %d", historyTurns+1, historyTurns, len(rendered))
	}
	if rendered[0].Role != model.RoleSystem {
		t.Fatalf("expected first message to be system prompt, got role %q", rendered[0].Role)
	}
}
