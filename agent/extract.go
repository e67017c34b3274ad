package agent

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	locopilot "github.com/locopilot/locopilot"
	"github.com/locopilot/locopilot/ollama"
)

// ExtractCalls normalizes one model reply into canonical tool calls.
//
// Models signal "call tool X with arguments Y" two incompatible ways: the
// structured tool_calls field, and the same-shaped JSON object emitted as
// plain text. The structured channel always wins; the fallback fires only
// when the entire content parses as a {"name":..., "arguments":...} object.
// Anything else, malformed JSON included, is an ordinary text answer and
// yields no calls.
func ExtractCalls(msg ollama.Message) []locopilot.ToolCall {
	if len(msg.ToolCalls) > 0 {
		calls := make([]locopilot.ToolCall, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			args := tc.Function.Arguments
			if args == nil {
				args = map[string]any{}
			}
			raw, err := json.Marshal(args)
			if err != nil {
				raw = []byte("{}")
			}
			calls = append(calls, locopilot.ToolCall{
				ID:       uuid.NewString(),
				ToolName: tc.Function.Name,
				Args:     raw,
			})
		}
		return calls
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}
	var probe struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil
	}
	if probe.Name == "" || len(probe.Arguments) == 0 {
		return nil
	}
	// The arguments field must itself be a JSON object.
	var argsObj map[string]any
	if err := json.Unmarshal(probe.Arguments, &argsObj); err != nil {
		return nil
	}
	return []locopilot.ToolCall{{
		ID:       uuid.NewString(),
		ToolName: probe.Name,
		Args:     probe.Arguments,
	}}
}
