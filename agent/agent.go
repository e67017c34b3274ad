// Package agent drives one task-scoped conversation: send the transcript
// and tool catalogue to the model, extract tool calls from the reply,
// dispatch them in order, fold the results back, and repeat until the model
// answers in plain text or the turn budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	locopilot "github.com/locopilot/locopilot"
	"github.com/locopilot/locopilot/chatlog"
	"github.com/locopilot/locopilot/ollama"
)

// DefaultMaxTurns guards against infinite tool-calling loops.
const DefaultMaxTurns = 10

// Status is the Session's termination state. Once non-running it never
// changes.
type Status string

const (
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusAbortedMaxTurns Status = "aborted_max_turns"
	StatusAbortedError    Status = "aborted_error"
)

// ErrMaxTurns reports turn-budget exhaustion; partial work is kept.
var ErrMaxTurns = errors.New("turn budget exhausted")

// Transport issues one chat request. *ollama.Client satisfies it; tests
// script a fake.
type Transport interface {
	Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResponse, error)
}

// StreamTransport is optionally implemented by transports that can deliver
// fragments incrementally.
type StreamTransport interface {
	ChatStream(ctx context.Context, req ollama.ChatRequest, fn ollama.StreamFunc) (*ollama.ChatResponse, error)
}

// Config is the immutable per-Session configuration, fixed at construction.
type Config struct {
	Transport Transport
	Model     string
	Registry  *locopilot.Registry
	// MaxTurns bounds the number of model round-trips; DefaultMaxTurns when
	// zero.
	MaxTurns int
	// SystemPrompt, when set, seeds the transcript so project-aware surfaces
	// can advertise file access.
	SystemPrompt string
	// Log receives every transcript event; chatlog.Discard when nil.
	Log chatlog.Sink
	Logger *slog.Logger
	// Stream, when set, receives assistant text fragments as they arrive
	// (requires a StreamTransport).
	Stream ollama.StreamFunc
}

// Result is what a finished Session reports.
type Result struct {
	// Text is the model's terminal free-text answer (empty on abort).
	Text string
	// Status is the terminal state.
	Status Status
	// Turns is how many model round-trips were used.
	Turns int
}

// Session owns one ordered, append-only transcript and its turn counter.
// A Session is strictly sequential; run one task per Session.
type Session struct {
	id       string
	cfg      Config
	history  []ollama.Message
	turns    int
	status   Status
	logger   *slog.Logger
	log      chatlog.Sink
	maxTurns int
}

// NewSession builds a Session around the prompt-independent configuration.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("agent: transport is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("agent: model is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("agent: registry is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := cfg.Log
	if log == nil {
		log = chatlog.Discard
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		cfg:      cfg,
		status:   StatusRunning,
		logger:   logger.With("session", id[:8]),
		log:      log,
		maxTurns: maxTurns,
	}, nil
}

// ID is the Session's unique identifier.
func (s *Session) ID() string { return s.id }

// Status reports the current termination state.
func (s *Session) Status() Status { return s.status }

// Turns reports the number of completed model round-trips.
func (s *Session) Turns() int { return s.turns }

// History returns a copy of the transcript so far.
func (s *Session) History() []ollama.Message {
	out := make([]ollama.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Run drives the Session from prompt to terminal state. It is not
// restartable: a Session runs exactly one task.
func (s *Session) Run(ctx context.Context, prompt string) (*Result, error) {
	if s.status != StatusRunning || s.turns > 0 {
		return nil, errors.New("agent: session already used")
	}

	if s.cfg.SystemPrompt != "" {
		s.history = append(s.history, ollama.Message{Role: "system", Content: s.cfg.SystemPrompt})
	}
	s.history = append(s.history, ollama.Message{Role: "user", Content: prompt})
	s.appendLog("user", prompt, nil)

	catalogue := toolDefinitions(s.cfg.Registry)

	for s.turns < s.maxTurns {
		// Cancellation point between turns.
		if err := ctx.Err(); err != nil {
			s.status = StatusAbortedError
			return &Result{Status: s.status, Turns: s.turns}, err
		}

		reply, err := s.send(ctx, catalogue)
		if err != nil {
			s.status = StatusAbortedError
			s.logger.Error("transport failed", "turn", s.turns, "error", err)
			return &Result{Status: s.status, Turns: s.turns}, fmt.Errorf("model request: %w", err)
		}
		s.turns++

		calls := ExtractCalls(reply.Message)
		if len(calls) == 0 {
			s.history = append(s.history, ollama.Message{Role: "assistant", Content: reply.Message.Content})
			s.appendLog("assistant", reply.Message.Content, reply)
			s.status = StatusCompleted
			s.logger.Info("session completed", "turns", s.turns)
			return &Result{Text: reply.Message.Content, Status: s.status, Turns: s.turns}, nil
		}

		// The assistant message carrying the calls goes into the transcript
		// before any result, keeping it causally consistent.
		s.history = append(s.history, ollama.Message{
			Role:      "assistant",
			Content:   reply.Message.Content,
			ToolCalls: reply.Message.ToolCalls,
		})
		s.appendLog("assistant", describeCalls(calls), reply)

		// Strictly in emission order: later calls may depend on earlier
		// writes.
		for _, call := range calls {
			text := s.dispatch(ctx, call)
			s.history = append(s.history, ollama.Message{Role: "tool", Content: text})
			s.appendLog("tool", text, nil)
		}
	}

	s.status = StatusAbortedMaxTurns
	s.logger.Warn("turn budget exhausted", "turns", s.turns, "max", s.maxTurns)
	return &Result{Status: s.status, Turns: s.turns}, fmt.Errorf("%w after %d turns", ErrMaxTurns, s.turns)
}

func (s *Session) send(ctx context.Context, catalogue []ollama.ToolDefinition) (*ollama.ChatResponse, error) {
	req := ollama.ChatRequest{
		Model:    s.cfg.Model,
		Messages: s.history,
		Tools:    catalogue,
	}
	if s.cfg.Stream != nil {
		if st, ok := s.cfg.Transport.(StreamTransport); ok {
			return st.ChatStream(ctx, req, s.cfg.Stream)
		}
	}
	return s.cfg.Transport.Chat(ctx, req)
}

// dispatch runs one call and always returns transcript text: per-tool
// failures are converted at this boundary so one failing tool never crashes
// the Session.
func (s *Session) dispatch(ctx context.Context, call locopilot.ToolCall) string {
	s.logger.Info("dispatching tool", "tool", call.ToolName, "call", call.ID)
	payload, err := s.cfg.Registry.Execute(ctx, call)
	if err != nil {
		switch {
		case errors.Is(err, locopilot.ErrToolNotFound):
			return fmt.Sprintf("Error: unknown tool %q. Available tools: %s", call.ToolName, toolNames(s.cfg.Registry))
		case locopilot.IsClientError(err):
			return "Error: " + err.Error()
		case errors.Is(err, locopilot.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			return fmt.Sprintf("Error: tool %s timed out", call.ToolName)
		default:
			return fmt.Sprintf("Error: tool %s failed: %v", call.ToolName, err)
		}
	}
	return resultText(payload)
}

// resultText renders a tool payload for the transcript. JSON strings are
// unquoted so the model reads plain text, everything else stays raw JSON.
func resultText(payload []byte) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return string(payload)
}

func (s *Session) appendLog(sender, text string, reply *ollama.ChatResponse) {
	entry := chatlog.Entry{Time: time.Now(), Sender: sender, Text: text, Model: s.cfg.Model}
	if reply != nil {
		entry.TokensUsed = reply.TokensUsed()
		entry.ResponseTimeMs = reply.ResponseTime().Milliseconds()
	}
	if err := s.log.Append(entry); err != nil {
		s.logger.Warn("chat log append failed", "error", err)
	}
}

// toolDefinitions converts the registry catalogue to the wire shape
// advertised every turn.
func toolDefinitions(reg *locopilot.Registry) []ollama.ToolDefinition {
	tools := reg.GetAllTools()
	defs := make([]ollama.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ollama.ToolDefinition{
			Type: "function",
			Function: ollama.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

func toolNames(reg *locopilot.Registry) string {
	tools := reg.GetAllTools()
	names := make([]byte, 0, 64)
	for i, t := range tools {
		if i > 0 {
			names = append(names, ", "...)
		}
		names = append(names, t.Name()...)
	}
	return string(names)
}

func describeCalls(calls []locopilot.ToolCall) string {
	b := make([]byte, 0, 64)
	for i, c := range calls {
		if i > 0 {
			b = append(b, "; "...)
		}
		b = append(b, c.ToolName...)
		b = append(b, '(')
		b = append(b, c.Args...)
		b = append(b, ')')
	}
	return string(b)
}
