// Package sandbox runs model-authored commands inside a network-disabled,
// resource-bounded container with an enforced timeout. The container launch
// parameters are the security boundary; nothing model-controlled reaches
// the host shell.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Status classifies how an execution ended.
type Status string

const (
	// StatusExited means the process ran to completion; ExitCode is valid.
	StatusExited Status = "exited"
	// StatusTimedOut means the timeout elapsed first and the container was
	// force-killed.
	StatusTimedOut Status = "timed_out"
	// StatusLaunchFailed means the container never ran (daemon unreachable,
	// image missing, create/start error).
	StatusLaunchFailed Status = "launch_failed"
	// StatusCancelled means the caller's context was cancelled before the
	// process finished; not a timeout. The container was killed.
	StatusCancelled Status = "cancelled"
)

// ErrUnsupportedLanguage is returned before any container API call when the
// language tag maps to no runtime image.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// DefaultTimeout bounds one execution when the request does not say
// otherwise.
const DefaultTimeout = 30 * time.Second

const workdir = "/workspace"

// Request is one command to run in an isolated runtime.
type Request struct {
	// Language selects the runtime image: python, javascript, bash, c, go.
	Language string
	// Command is the full command text, e.g. "python fib.py" or
	// "gcc a.c -o a && ./a".
	Command string
	// Timeout bounds the execution; zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of one execution. Immutable once returned.
type Result struct {
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	// Err carries failure detail: the launch error for StatusLaunchFailed,
	// the context error for StatusCancelled, nil otherwise.
	Err error
}

// runtimeImages maps a language tag to its isolated runtime image.
var runtimeImages = map[string]string{
	"python":     "python:3.12-alpine",
	"python3":    "python:3.12-alpine",
	"javascript": "node:22-alpine",
	"node":       "node:22-alpine",
	"bash":       "alpine:3.20",
	"sh":         "alpine:3.20",
	"c":          "gcc:13",
	"go":         "golang:1.24-alpine",
}

// shellMetachars force the command text under /bin/sh -c so compound
// pipelines and redirects run as one request.
var shellMetachars = []string{"&&", ";", "|", ">", "<"}

// containerAPI is the slice of the Docker client the executor needs. The
// concrete *client.Client satisfies it; tests substitute a fake.
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Executor runs requests in containers bind-mounted on one project root.
type Executor struct {
	api         containerAPI
	projectRoot string
	memoryLimit int64
	nanoCPUs    int64
	timeout     time.Duration
	logger      *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMemoryLimit sets the container memory ceiling from a human-readable
// size ("512m", "1g"). Invalid sizes are ignored.
func WithMemoryLimit(size string) ExecutorOption {
	return func(e *Executor) {
		if n, err := units.RAMInBytes(size); err == nil && n > 0 {
			e.memoryLimit = n
		}
	}
}

// WithCPULimit sets the CPU ceiling in whole-core units (1.0 = one core).
func WithCPULimit(cores float64) ExecutorOption {
	return func(e *Executor) {
		if cores > 0 {
			e.nanoCPUs = int64(cores * 1e9)
		}
	}
}

// WithTimeout sets the default execution timeout used when a Request does
// not carry one.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor builds an Executor talking to the local Docker daemon.
// projectRoot is bind-mounted read-write at /workspace inside every
// container.
func NewExecutor(projectRoot string, opts ...ExecutorOption) (*Executor, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newExecutor(api, projectRoot, opts...), nil
}

func newExecutor(api containerAPI, projectRoot string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		api:         api,
		projectRoot: projectRoot,
		memoryLimit: 512 * units.MiB,
		nanoCPUs:    1e9,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ImageFor resolves a language tag to its runtime image.
func ImageFor(language string) (string, error) {
	img, ok := runtimeImages[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	return img, nil
}

// buildCmd turns the command text into a container argv. Text containing
// shell metacharacters or quoting runs as one /bin/sh -c invocation, so
// compound pipelines stay a single request and quoted arguments keep their
// grouping; plain commands run directly.
func buildCmd(command string) []string {
	if strings.ContainsAny(command, `'"`) {
		return []string{"/bin/sh", "-c", command}
	}
	for _, meta := range shellMetachars {
		if strings.Contains(command, meta) {
			return []string{"/bin/sh", "-c", command}
		}
	}
	return strings.Fields(command)
}

// Run executes one request. It returns a Result in every case; only
// programming errors (empty command) surface as a Go error.
func (e *Executor) Run(ctx context.Context, req Request) (Result, error) {
	image, err := ImageFor(req.Language)
	if err != nil {
		return Result{Status: StatusLaunchFailed, Err: err}, err
	}
	cmd := buildCmd(req.Command)
	if len(cmd) == 0 {
		err := errors.New("empty command")
		return Result{Status: StatusLaunchFailed, Err: err}, err
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	cfg := &container.Config{
		Image:           image,
		Cmd:             cmd,
		WorkingDir:      workdir,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Binds:       []string{e.projectRoot + ":" + workdir},
		Resources: container.Resources{
			Memory:   e.memoryLimit,
			NanoCPUs: e.nanoCPUs,
		},
	}

	created, err := e.api.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		e.logger.Error("container create failed", "image", image, "error", err)
		return Result{Status: StatusLaunchFailed, Err: err}, nil
	}
	id := created.ID
	// The container is always removed, also on the timeout and error paths.
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = e.api.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true})
	}()

	attach, err := e.api.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		e.logger.Error("container attach failed", "id", id, "error", err)
		return Result{Status: StatusLaunchFailed, Err: err}, nil
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		// stdout and stderr are multiplexed on one stream; demux keeps them
		// independent.
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- err
	}()

	if err := e.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		e.logger.Error("container start failed", "id", id, "error", err)
		return Result{Status: StatusLaunchFailed, Err: err}, nil
	}

	e.logger.Debug("container started", "id", id, "image", image, "timeout", timeout)

	waitCh, errCh := e.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Race: process exit vs timeout elapsed. A timed-out container is
	// force-killed; the deferred remove reaps it.
	select {
	case status := <-waitCh:
		drainCopy(copyDone)
		return Result{
			Status:   StatusExited,
			ExitCode: int(status.StatusCode),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}, nil
	case err := <-errCh:
		drainCopy(copyDone)
		e.logger.Error("container wait failed", "id", id, "error", err)
		return Result{Status: StatusLaunchFailed, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}, nil
	case <-timer.C:
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := e.api.ContainerKill(killCtx, id, "KILL"); err != nil {
			e.logger.Warn("container kill failed", "id", id, "error", err)
		}
		drainCopy(copyDone)
		e.logger.Info("execution timed out", "id", id, "timeout", timeout)
		return Result{
			Status: StatusTimedOut,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}, nil
	case <-ctx.Done():
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = e.api.ContainerKill(killCtx, id, "KILL")
		drainCopy(copyDone)
		return Result{Status: StatusCancelled, Stdout: stdout.String(), Stderr: stderr.String(), Err: ctx.Err()}, ctx.Err()
	}
}

// drainCopy waits briefly for the output copier so buffers are complete
// before the result is assembled.
func drainCopy(done <-chan error) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
