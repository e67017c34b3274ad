package locopilot

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the contract for a model-callable instrument. It is
// provider-agnostic: nothing here knows about Ollama or any other endpoint.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a valid JSON Schema as map (compatible with the
	// tools field of the chat wire protocol).
	Parameters() map[string]any
	// Execute runs the tool with raw JSON arguments and returns the result
	// payload. Errors that should reach the model for self-correction are
	// ClientError; everything else is internal.
	Execute(ctx context.Context, argsJSON []byte) ([]byte, error)
}

// ToolMetadata is implemented by tools created with NewTool and provides
// optional per-tool settings. Registry uses Timeout() to override the
// default execution timeout when set.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	IsDangerous() bool
}

// ToolCall is a single canonical invocation as extracted from a model reply.
// ID is unique within one turn; Args is the raw JSON argument object.
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage
}

// ExecutionSummary is passed to the after-execution hook when a tool call
// finishes, successfully or not.
type ExecutionSummary struct {
	CallID   string
	ToolName string
	Error    error
	Bytes    int64
}
