package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/model"
)

var explainCodeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"code": {"type": "string"},
		"detail_level": {"type": "string", "enum": ["brief", "detailed", "comprehensive"]}
	},
	"required": ["code"]
}`)

type explainCodeArgs struct {
	Code        string `json:"code"`
	DetailLevel string `json:"detail_level"`
}

// NewExplainCode builds the explain_code tool: a thin pass-through to the
// chat model asking it to explain an inline snippet at a given detail
// level. Unlike the other tools it does not touch the store.
func NewExplainCode(adapter llmadapter.Adapter) *Tool {
	return &Tool{
		Name:        "explain_code",
		Description: "Ask the model to explain an inline code snippet at a chosen level of detail.",
		Schema:      explainCodeSchema,
		Execute: func(ctx context.Context, repositoryID, argumentsJSON string) string {
			var args explainCodeArgs
			if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
				return "Error: malformed arguments: " + err.Error()
			}
			if strings.TrimSpace(args.Code) == "" {
				return "Error: code is required"
			}
			level := args.DetailLevel
			if level == "" {
				level = "detailed"
			}

			messages := []model.ChatMessage{
				{Role: model.RoleSystem, Content: fmt.Sprintf(
					"Explain the given code snippet at a %s level of detail. Respond with prose only, no tool calls.", level)},
				{Role: model.RoleUser, Content: args.Code},
			}
			result, err := adapter.Chat(ctx, messages, nil)
			if err != nil {
				return "Error: explanation failed: " + err.Error()
			}
			if strings.TrimSpace(result.Content) == "" {
				return "Error: model returned no explanation"
			}
			return result.Content
		},
	}
}
