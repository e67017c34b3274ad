// Package locopilot is the tool engine behind the locopilot coding agent:
// it registers, describes, and safely executes the functions a locally
// hosted LLM may call while working on a project.
//
// A model produces tool calls as JSON. This package turns that JSON into
// concrete Go function calls: unmarshal → validate (against the same JSON
// Schema advertised to the model) → execute → marshal the result or return
// a clear error the model can self-correct from.
//
// Pipeline: Go function + argument struct → NewTool (reflection + schema) →
// Tool → Registry → Execute (unmarshal, validate, call, marshal).
//
//   - Single Source of Truth: one set of struct tags drives both the schema
//     sent to the model and the validation of incoming JSON.
//   - Self-Correction: ClientError carries human-readable messages back to
//     the model; SystemError hides internal detail.
//
// The conversation loop lives in package agent, the Ollama wire client in
// package ollama, the container-isolated program runner in package sandbox,
// and the project file tools in package fstool.
package locopilot
