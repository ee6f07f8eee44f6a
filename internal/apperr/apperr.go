// Package apperr defines the small error taxonomy used across the service:
// validation failures, not-found misses, provider/store failures, and the
// agent's own tool/iteration-budget conditions. Each is a plain wrapped
// error (errors.Is/errors.As friendly) rather than an error-codes
// framework, matching the rest of the module's style.
package apperr

import "fmt"

// Kind classifies an error for the HTTP layer's status-code mapping.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindProvider            Kind = "provider"
	KindStore               Kind = "store"
	KindTool                Kind = "tool"
	KindIterationExhausted  Kind = "iteration_budget_exhausted"
)

// Error is the module's wrapped error type.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation wraps a client-supplied-input failure (maps to HTTP 400).
func Validation(msg string) *Error { return new_(KindValidation, msg, nil) }

// NotFound wraps a store miss on a requested id (maps to HTTP 404).
func NotFound(msg string) *Error { return new_(KindNotFound, msg, nil) }

// Provider wraps an LLM/embedding provider failure.
func Provider(msg string, err error) *Error { return new_(KindProvider, msg, err) }

// Store wraps a persistence failure (maps to HTTP 5xx).
func Store(msg string, err error) *Error { return new_(KindStore, msg, err) }

// Tool wraps a tool-execution failure. Per spec this never crosses the
// agent-loop boundary as a Go error — it is converted to an "Error: ..."
// observation string and fed back to the model instead.
func Tool(msg string, err error) *Error { return new_(KindTool, msg, err) }

// IterationBudgetExhausted signals the agent loop hit MaxIterations without
// reaching a final answer.
func IterationBudgetExhausted(msg string) *Error {
	return new_(KindIterationExhausted, msg, nil)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
