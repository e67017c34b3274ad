package sandbox

import (
	"context"
	"fmt"
	"time"

	locopilot "github.com/locopilot/locopilot"
)

// Runner abstracts the executor for the tool layer; *Executor implements it
// and tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// RunProgramArgs are the model-facing arguments of the run_program tool.
type RunProgramArgs struct {
	Language       string `json:"language" description:"Runtime to execute with" enum:"python,javascript,bash,c,go"`
	Command        string `json:"command" description:"Command to run, e.g. 'python fib.py'"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" description:"Optional timeout in seconds, default 30"`
}

// Validate rejects empty commands before anything is spawned.
func (a RunProgramArgs) Validate() error {
	if a.Command == "" {
		return fmt.Errorf("command must not be empty")
	}
	return nil
}

// RunProgramResult is the tool's JSON result payload.
type RunProgramResult struct {
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// NewRunProgramTool exposes the sandboxed executor as the run_program tool.
// Unsupported languages and launch failures come back as ClientError text so
// the model can adjust; they never abort the session.
func NewRunProgramTool(runner Runner, opts ...locopilot.ToolOption) (locopilot.Tool, error) {
	fn := func(ctx context.Context, args RunProgramArgs) (RunProgramResult, error) {
		req := Request{
			Language: args.Language,
			Command:  args.Command,
		}
		if args.TimeoutSeconds > 0 {
			req.Timeout = time.Duration(args.TimeoutSeconds) * time.Second
		}
		res, err := runner.Run(ctx, req)
		if err != nil && res.Status == StatusLaunchFailed && res.Err != nil {
			// Unsupported language: tell the model which tags work.
			return RunProgramResult{}, &locopilot.ClientError{Reason: res.Err.Error()}
		}
		if err != nil && res.Status == StatusCancelled {
			// The session is being torn down; nothing useful for the model.
			return RunProgramResult{}, err
		}
		out := RunProgramResult{
			Status:   string(res.Status),
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
		switch res.Status {
		case StatusTimedOut:
			out.Detail = "execution timed out; the process was killed"
		case StatusLaunchFailed:
			if res.Err != nil {
				out.Detail = "could not launch sandbox: " + res.Err.Error()
			} else {
				out.Detail = "could not launch sandbox"
			}
		case StatusExited:
			if res.ExitCode != 0 {
				out.Detail = fmt.Sprintf("process exited with code %d", res.ExitCode)
			}
		}
		return out, nil
	}
	return locopilot.NewTool(
		"run_program",
		"Execute a program or shell command inside an isolated sandbox container. "+
			"The project directory is mounted at /workspace, which is the working directory. "+
			"There is no network access.",
		fn,
		append([]locopilot.ToolOption{locopilot.WithDangerous()}, opts...)...,
	)
}
