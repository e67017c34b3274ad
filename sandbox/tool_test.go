package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	locopilot "github.com/locopilot/locopilot"
)

type fakeRunner struct {
	lastReq Request
	result  Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req Request) (Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func runTool(t *testing.T, runner Runner, args string) (RunProgramResult, error) {
	t.Helper()
	tool, err := NewRunProgramTool(runner)
	require.NoError(t, err)
	raw, err := tool.Execute(context.Background(), []byte(args))
	if err != nil {
		return RunProgramResult{}, err
	}
	var out RunProgramResult
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, nil
}

func TestRunProgramTool_Success(t *testing.T) {
	runner := &fakeRunner{result: Result{Status: StatusExited, ExitCode: 0, Stdout: "1 1 2 3 5\n"}}
	out, err := runTool(t, runner, `{"language":"python","command":"python fib.py"}`)
	require.NoError(t, err)
	assert.Equal(t, "exited", out.Status)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "1 1 2 3 5\n", out.Stdout)
	assert.Empty(t, out.Detail)
	assert.Equal(t, "python", runner.lastReq.Language)
	assert.Equal(t, "python fib.py", runner.lastReq.Command)
	assert.Zero(t, runner.lastReq.Timeout, "default timeout is the executor's business")
}

func TestRunProgramTool_TimeoutSeconds(t *testing.T) {
	runner := &fakeRunner{result: Result{Status: StatusExited}}
	_, err := runTool(t, runner, `{"language":"python","command":"python fib.py","timeout_seconds":5}`)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, runner.lastReq.Timeout)
}

func TestRunProgramTool_NonzeroExit(t *testing.T) {
	runner := &fakeRunner{result: Result{Status: StatusExited, ExitCode: 2, Stderr: "SyntaxError"}}
	out, err := runTool(t, runner, `{"language":"python","command":"python fib.py"}`)
	require.NoError(t, err)
	assert.Equal(t, 2, out.ExitCode)
	assert.Contains(t, out.Detail, "exited with code 2")
}

func TestRunProgramTool_TimedOut(t *testing.T) {
	runner := &fakeRunner{result: Result{Status: StatusTimedOut, Stdout: "partial"}}
	out, err := runTool(t, runner, `{"language":"python","command":"python loop.py"}`)
	require.NoError(t, err)
	assert.Equal(t, "timed_out", out.Status)
	assert.Equal(t, "partial", out.Stdout)
	assert.Contains(t, out.Detail, "timed out")
}

func TestRunProgramTool_UnsupportedLanguage(t *testing.T) {
	reqErr := fmt.Errorf("%w: %q", ErrUnsupportedLanguage, "cobol")
	runner := &fakeRunner{result: Result{Status: StatusLaunchFailed, Err: reqErr}, err: reqErr}
	_, err := runTool(t, runner, `{"language":"python","command":"run it"}`)
	require.Error(t, err)
	assert.True(t, locopilot.IsClientError(err), "the model should see the rejection and adjust")
	assert.Contains(t, err.Error(), "cobol")
}

func TestRunProgramTool_CancellationPropagates(t *testing.T) {
	runner := &fakeRunner{result: Result{Status: StatusCancelled, Err: context.Canceled}, err: context.Canceled}
	_, err := runTool(t, runner, `{"language":"python","command":"python loop.py"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, locopilot.IsClientError(err))
}

func TestRunProgramTool_LaunchFailed(t *testing.T) {
	runner := &fakeRunner{result: Result{Status: StatusLaunchFailed, Err: fmt.Errorf("daemon unreachable")}}
	out, err := runTool(t, runner, `{"language":"python","command":"python fib.py"}`)
	require.NoError(t, err)
	assert.Equal(t, "launch_failed", out.Status)
	assert.Contains(t, out.Detail, "could not launch sandbox")
}

func TestRunProgramTool_EmptyCommand(t *testing.T) {
	runner := &fakeRunner{}
	_, err := runTool(t, runner, `{"language":"python","command":""}`)
	require.Error(t, err)
	assert.True(t, locopilot.IsClientError(err))
	assert.Contains(t, err.Error(), "command must not be empty")
}

func TestRunProgramTool_IsDangerous(t *testing.T) {
	tool, err := NewRunProgramTool(&fakeRunner{})
	require.NoError(t, err)
	tm, ok := tool.(locopilot.ToolMetadata)
	require.True(t, ok)
	assert.True(t, tm.IsDangerous())
}
