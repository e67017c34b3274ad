package locopilot

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// Registry holds the tool catalogue for one Session and executes canonical
// tool calls with timeout and optional panic recovery. The catalogue is
// registered up front and advertised to the model every turn; dispatch
// within a Session is strictly sequential, but the Registry itself is safe
// for concurrent use across Sessions.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Execute
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	opts        registryOptions
	mu          sync.Mutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:       30 * time.Second,
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		opts:     o,
	}
}

// Register adds a tool. Stored middlewares (see Use) are applied before
// registration. A tool with the same name replaces the previous one.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	r.rawTools[name] = t
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		t = r.middlewares[i](t)
	}
	r.tools[name] = t
}

// GetAllTools returns all registered tools sorted by name, giving the model
// a deterministic catalogue from turn to turn.
func (r *Registry) GetAllTools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// GetTool returns the tool with the given name (after middlewares are
// applied), or (nil, false) if not found.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs one tool call and returns its result payload. Unknown names
// return ErrToolNotFound; argument validation failures surface as
// ClientError from the tool itself. The after-execution hook is always
// invoked via defer with the final ExecutionSummary.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (result []byte, err error) {
	r.mu.Lock()
	tool, ok := r.tools[call.ToolName]
	r.mu.Unlock()
	if !ok {
		return nil, ErrToolNotFound
	}

	timeout := r.opts.timeout
	if tm, ok := tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, ErrTimeout)
		defer cancel()
	}

	summary := ExecutionSummary{CallID: call.ID, ToolName: call.ToolName}
	start := time.Now()
	// Recover defer is registered after the hook defer so it runs first on
	// panic and sets summary.Error before the hook observes it.
	defer func() {
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, summary, time.Since(start))
		}
	}()
	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				summary.Error = &SystemError{Err: &panicError{p: p}}
				result = nil
				err = summary.Error
			}
		}()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}

	result, err = tool.Execute(ctx, call.Args)
	summary.Error = err
	summary.Bytes = int64(len(result))
	if err == nil && ctx.Err() != nil {
		// Only the registry's own deadline maps to ErrTimeout; a caller
		// cancellation is reported as what it is.
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			summary.Error = ErrTimeout
			return nil, ErrTimeout
		}
		summary.Error = ctx.Err()
		return nil, ctx.Err()
	}
	return result, err
}
