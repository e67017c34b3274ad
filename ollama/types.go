package ollama

import "time"

// Message is one entry of the chat transcript, in the shape the /api/chat
// endpoint expects and returns.
type Message struct {
	Role      string     `json:"role"` // system, user, assistant, tool
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is the structured tool-call channel of a reply.
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its argument object.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition advertises one callable tool to the model.
type ToolDefinition struct {
	Type     string   `json:"type"` // always "function"
	Function Function `json:"function"`
}

// Function is the schema half of a ToolDefinition.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is the JSON body POSTed to /api/chat.
type ChatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Options  map[string]any   `json:"options,omitempty"`
}

// ChatResponse is one /api/chat reply. In streaming mode every NDJSON line
// decodes into this shape; the line with Done=true carries the counters.
type ChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	TotalDuration   int64   `json:"total_duration,omitempty"` // nanoseconds
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

// TokensUsed sums prompt and completion token counts when the endpoint
// reported them.
func (r *ChatResponse) TokensUsed() int {
	return r.PromptEvalCount + r.EvalCount
}

// ResponseTime converts the endpoint's nanosecond total into a Duration.
func (r *ChatResponse) ResponseTime() time.Duration {
	return time.Duration(r.TotalDuration)
}

// ModelInfo is one entry of the /api/tags listing.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

type versionResponse struct {
	Version string `json:"version"`
}
