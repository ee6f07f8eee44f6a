// Package agent implements C7: the bounded tool-calling loop that drives
// a repository-scoped conversation. Grounded on other_examples'
// vanducng-goclaw agent loop (BuildContext → iterate-tool-calls →
// finalize shape) and the teacher's retrieval.RAGService.Query for the
// streaming-channel convention, generalized from a single retrieve-then-
// generate call into a multi-iteration ReAct-style loop per spec.md §4.7.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/citation"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
	"github.com/pixell07/codeagent-rag/internal/tools"
)

// MaxIterations bounds the tool-calling loop, per spec.md §4.7.
const MaxIterations = 10

// historyTurns is how many prior user/assistant turns are delivered to
// the model; the stored conversation itself is never truncated.
const historyTurns = 10

const maxCitationEvents = 10

const observationTruncateLen = 500

const systemPrompt = `You are a code research assistant. Use the available tools to search, ` +
	`read, and explain the indexed repository before answering. Ground every factual claim about ` +
	`the code in a tool result and reference it with a [path:start-end] marker. If the tools don't ` +
	`surface an answer, say so plainly rather than guessing.`

// ReasoningStep records one tool call made during a non-streaming
// request, per spec.md §4.7.
type ReasoningStep struct {
	StepNumber  int    `json:"stepNumber"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"actionInput"`
	Observation string `json:"observation"`
}

// Response is the orchestrator's non-streaming result.
type Response struct {
	Content        string           `json:"content"`
	Citations      []model.Citation `json:"citations"`
	ReasoningSteps []ReasoningStep  `json:"reasoningSteps"`
	IsComplete     bool             `json:"isComplete"`
	ConversationID string           `json:"conversationId"`
}

// StreamEvent is one SSE frame, per spec.md §6.2.
type StreamEvent struct {
	Type           string          `json:"type"`
	Content        string          `json:"content,omitempty"`
	Citation       *model.Citation `json:"citation,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
}

// ConversationStore is the subset of store.ConversationStore the
// orchestrator depends on.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.ConversationContext, error)
	Upsert(ctx context.Context, conv *model.ConversationContext) error
}

// Orchestrator drives the BuildContext → LoopIter*N → Finalize state
// machine against one repository-scoped conversation.
type Orchestrator struct {
	adapter      llmadapter.Adapter
	catalog      *tools.Catalog
	conversation ConversationStore
	citations    *citation.Service
}

// New builds an Orchestrator.
func New(adapter llmadapter.Adapter, catalog *tools.Catalog, conversation ConversationStore) *Orchestrator {
	return &Orchestrator{adapter: adapter, catalog: catalog, conversation: conversation, citations: citation.New()}
}

// Run executes the non-streaming path: BuildContext, loop tool calls,
// Finalize into a grounded Response.
func (o *Orchestrator) Run(ctx context.Context, repositoryID, conversationID, userMessage string) (*Response, error) {
	conv, err := o.buildContext(ctx, repositoryID, conversationID, userMessage)
	if err != nil {
		return nil, err
	}

	toolDefs := o.toolDefs()
	messages := o.renderMessages(conv)

	var steps []ReasoningStep
	var toolResults []string

	for iter := 0; iter < MaxIterations; iter++ {
		result, err := o.adapter.Chat(ctx, messages, toolDefs)
		if err != nil {
			return nil, apperr.Provider("agent chat", err)
		}

		if len(result.ToolCalls) == 0 {
			conv.Messages = append(conv.Messages, model.ChatMessage{
				ID: uuid.NewString(), Role: model.RoleAssistant, Content: result.Content,
			})
			if err := o.conversation.Upsert(ctx, conv); err != nil {
				return nil, err
			}
			grounded := o.citations.Ground(result.Content, toolResults)
			return &Response{
				Content:        grounded.Content,
				Citations:      grounded.Citations,
				ReasoningSteps: steps,
				IsComplete:     true,
				ConversationID: conv.ID,
			}, nil
		}

		assistantMsg := model.ChatMessage{ID: uuid.NewString(), Role: model.RoleAssistant, Content: result.Content, ToolCalls: result.ToolCalls}
		messages = append(messages, assistantMsg)
		conv.Messages = append(conv.Messages, assistantMsg)

		for _, call := range result.ToolCalls {
			observation := o.executeTool(ctx, repositoryID, call)
			toolResults = append(toolResults, observation)

			toolMsg := model.ChatMessage{
				ID: uuid.NewString(), Role: model.RoleTool, Content: observation,
				ToolCallID: call.ID, ToolName: call.FunctionName,
			}
			messages = append(messages, toolMsg)
			conv.Messages = append(conv.Messages, toolMsg)

			steps = append(steps, ReasoningStep{
				StepNumber:  len(steps) + 1,
				Thought:     result.Content,
				Action:      call.FunctionName,
				ActionInput: call.Arguments,
				Observation: observation,
			})
		}
	}

	if err := o.conversation.Upsert(ctx, conv); err != nil {
		return nil, err
	}
	grounded := o.citations.Ground("", toolResults)
	return &Response{
		Content:        "I could not complete this request within the available tool-call budget.",
		Citations:      grounded.Citations,
		ReasoningSteps: steps,
		IsComplete:     false,
		ConversationID: conv.ID,
	}, apperr.IterationBudgetExhausted("agent loop exhausted max iterations")
}

// RunStreaming executes the streaming path, emitting events onto events
// until the request completes or the context is cancelled. events is
// closed by this method.
func (o *Orchestrator) RunStreaming(ctx context.Context, repositoryID, conversationID, userMessage string, events chan<- StreamEvent) error {
	defer close(events)

	conv, err := o.buildContext(ctx, repositoryID, conversationID, userMessage)
	if err != nil {
		return err
	}

	toolDefs := o.toolDefs()
	messages := o.renderMessages(conv)
	var toolResults []string

	for iter := 0; iter < MaxIterations; iter++ {
		result, err := o.adapter.Chat(ctx, messages, toolDefs)
		if err != nil {
			return apperr.Provider("agent chat", err)
		}

		if len(result.ToolCalls) == 0 {
			return o.finalizeStreaming(ctx, conv, messages, toolResults, events)
		}

		assistantMsg := model.ChatMessage{ID: uuid.NewString(), Role: model.RoleAssistant, Content: result.Content, ToolCalls: result.ToolCalls}
		messages = append(messages, assistantMsg)
		conv.Messages = append(conv.Messages, assistantMsg)

		for _, call := range result.ToolCalls {
			actionJSON, _ := json.Marshal(map[string]string{"tool": call.FunctionName, "input": call.Arguments})
			events <- StreamEvent{Type: "action", Content: string(actionJSON)}

			observation := o.executeTool(ctx, repositoryID, call)
			toolResults = append(toolResults, observation)

			events <- StreamEvent{Type: "observation", Content: truncate(observation, observationTruncateLen)}

			toolMsg := model.ChatMessage{
				ID: uuid.NewString(), Role: model.RoleTool, Content: observation,
				ToolCallID: call.ID, ToolName: call.FunctionName,
			}
			messages = append(messages, toolMsg)
			conv.Messages = append(conv.Messages, toolMsg)
		}
	}

	events <- StreamEvent{Type: "answer", Content: "I could not complete this request within the available tool-call budget."}
	events <- StreamEvent{Type: "done", ConversationID: conv.ID}
	return o.conversation.Upsert(ctx, conv)
}

func (o *Orchestrator) finalizeStreaming(ctx context.Context, conv *model.ConversationContext, messages []model.ChatMessage, toolResults []string, events chan<- StreamEvent) error {
	stream, err := o.adapter.StreamChat(ctx, messages)
	if err != nil {
		return apperr.Provider("agent stream chat", err)
	}

	var full []byte
	for chunk := range stream {
		if chunk.Err != nil {
			return apperr.Provider("agent stream chat", chunk.Err)
		}
		full = append(full, chunk.Content...)
		events <- StreamEvent{Type: "answer", Content: chunk.Content}
	}

	grounded := o.citations.Ground(string(full), toolResults)
	conv.Messages = append(conv.Messages, model.ChatMessage{
		ID: uuid.NewString(), Role: model.RoleAssistant, Content: grounded.Content,
	})
	if err := o.conversation.Upsert(ctx, conv); err != nil {
		return err
	}

	emitted := grounded.Citations
	if len(emitted) > maxCitationEvents {
		emitted = emitted[:maxCitationEvents]
	}
	for i := range emitted {
		c := emitted[i]
		events <- StreamEvent{Type: "citation", Citation: &c}
	}

	events <- StreamEvent{Type: "done", ConversationID: conv.ID}
	return nil
}

func (o *Orchestrator) buildContext(ctx context.Context, repositoryID, conversationID, userMessage string) (*model.ConversationContext, error) {
	var conv *model.ConversationContext
	if conversationID != "" {
		existing, err := o.conversation.Get(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		conv = existing
	}
	if conv == nil {
		conv = &model.ConversationContext{ID: uuid.NewString(), RepositoryID: repositoryID}
	}

	conv.Messages = append(conv.Messages, model.ChatMessage{
		ID: uuid.NewString(), Role: model.RoleUser, Content: userMessage,
	})
	return conv, nil
}

// renderMessages builds the message slice sent to the model: a system
// prompt followed by the last historyTurns user/assistant turns.
func (o *Orchestrator) renderMessages(conv *model.ConversationContext) []model.ChatMessage {
	var turns []model.ChatMessage
	for _, m := range conv.Messages {
		if m.Role == model.RoleUser || m.Role == model.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}

	out := make([]model.ChatMessage, 0, len(turns)+1)
	out = append(out, model.ChatMessage{Role: model.RoleSystem, Content: systemPrompt})
	out = append(out, turns...)
	return out
}

func (o *Orchestrator) toolDefs() []llmadapter.ToolDef {
	names := o.catalog.Names()
	sort.Strings(names)
	defs := make([]llmadapter.ToolDef, 0, len(names))
	for _, name := range names {
		t, _ := o.catalog.Get(name)
		defs = append(defs, llmadapter.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Schema})
	}
	return defs
}

func (o *Orchestrator) executeTool(ctx context.Context, repositoryID string, call model.ToolCall) string {
	t, ok := o.catalog.Get(call.FunctionName)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.FunctionName)
	}
	return t.Run(ctx, repositoryID, call.Arguments)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
