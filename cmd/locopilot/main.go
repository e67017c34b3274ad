// Command locopilot runs coding tasks against a locally hosted LLM. The
// model can read and write project files and execute programs inside a
// network-disabled sandbox container.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	locopilot "github.com/locopilot/locopilot"
	"github.com/locopilot/locopilot/agent"
	"github.com/locopilot/locopilot/chatlog"
	"github.com/locopilot/locopilot/fstool"
	"github.com/locopilot/locopilot/ollama"
	"github.com/locopilot/locopilot/sandbox"
)

const systemPrompt = `You are a coding assistant working inside a project directory.
You can read and write project files and run programs in a sandbox with the
project mounted at /workspace. Use the provided tools; do not guess file
contents. When the task is done, answer in plain text.`

type options struct {
	url         string
	model       string
	project     string
	file        string
	maxTurns    int
	execTimeout time.Duration
	chatLog     string
	memory      string
	cpus        float64
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "locopilot",
		Short:         "Delegate coding tasks to a locally hosted LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&opts.url, "url", defaultURL(), "Ollama endpoint base URL")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "model name (default: first model the endpoint lists)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run each prompt of an instruction file as one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts)
		},
	}
	run.Flags().StringVarP(&opts.file, "file", "f", "", "instruction file; prompts separated by a blank line or a --- line")
	run.Flags().StringVarP(&opts.project, "project", "p", ".", "project directory the model may read and write")
	run.Flags().IntVar(&opts.maxTurns, "max-turns", agent.DefaultMaxTurns, "turn budget per session")
	run.Flags().DurationVar(&opts.execTimeout, "exec-timeout", sandbox.DefaultTimeout, "sandbox execution timeout")
	run.Flags().StringVar(&opts.chatLog, "chat-log", "", "append conversation entries to this JSONL file")
	run.Flags().StringVar(&opts.memory, "memory", "512m", "sandbox memory ceiling")
	run.Flags().Float64Var(&opts.cpus, "cpus", 1.0, "sandbox CPU ceiling in cores")
	_ = run.MarkFlagRequired("file")

	models := &cobra.Command{
		Use:   "models",
		Short: "List the models the endpoint serves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModels(cmd.Context(), opts)
		},
	}

	probe := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the endpoint is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ollama.NewClient(opts.url)
			if !client.Probe(cmd.Context()) {
				return fmt.Errorf("endpoint %s is not reachable", client.BaseURL())
			}
			version := client.Version(cmd.Context())
			fmt.Printf("connected to %s (version %s)\n", client.BaseURL(), version)
			return nil
		},
	}

	root.AddCommand(run, models, probe)
	return root
}

func defaultURL() string {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if strings.Contains(host, "://") {
			return host
		}
		return "http://" + host
	}
	return "http://127.0.0.1:11434"
}

func listModels(ctx context.Context, opts *options) error {
	client := ollama.NewClient(opts.url)
	models := client.ListModels(ctx)
	if len(models) == 0 {
		fmt.Println("no models available")
		return nil
	}
	for _, m := range models {
		fmt.Printf("%s\t%.1f MB\t%s\n", m.Name, float64(m.Size)/(1024*1024), m.ModifiedAt.Format(time.RFC3339))
	}
	return nil
}

// pickModel returns the configured model, or the first one the endpoint
// lists when none was given.
func pickModel(ctx context.Context, client *ollama.Client, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	models := client.ListModels(ctx)
	if len(models) == 0 {
		return "", errors.New("endpoint lists no models; pull one or pass --model")
	}
	return models[0].Name, nil
}

func runBatch(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompts, err := readPrompts(opts.file)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts in %s", opts.file)
	}

	client := ollama.NewClient(opts.url)
	if !client.Probe(ctx) {
		return fmt.Errorf("cannot connect to Ollama at %s", client.BaseURL())
	}
	model, err := pickModel(ctx, client, opts.model)
	if err != nil {
		return err
	}

	root, err := fstool.NewRoot(opts.project)
	if err != nil {
		return err
	}

	var log chatlog.Sink = chatlog.Discard
	if opts.chatLog != "" {
		jl, err := chatlog.OpenJSONL(opts.chatLog)
		if err != nil {
			return err
		}
		defer jl.Close()
		log = jl
	}

	registry, err := buildRegistry(root, opts)
	if err != nil {
		return err
	}

	fmt.Printf("model %s, project %s, %d prompt(s)\n", model, root.Dir(), len(prompts))

	failures := 0
	for i, prompt := range prompts {
		fmt.Printf("\n=== prompt %d/%d ===\n%s\n", i+1, len(prompts), prompt)
		session, err := agent.NewSession(agent.Config{
			Transport:    client,
			Model:        model,
			Registry:     registry,
			MaxTurns:     opts.maxTurns,
			SystemPrompt: systemPrompt,
			Log:          log,
			Logger:       slog.Default(),
			Stream: func(fragment string) error {
				fmt.Print(fragment)
				return nil
			},
		})
		if err != nil {
			return err
		}
		result, err := session.Run(ctx, prompt)
		fmt.Println()
		switch {
		case err == nil:
			fmt.Printf("--- completed in %d turn(s)\n", result.Turns)
		case errors.Is(err, context.Canceled):
			fmt.Println("--- cancelled")
			return err
		default:
			// One failed prompt does not stop the batch; the prompts are
			// independent.
			failures++
			fmt.Printf("--- aborted (%s): %v\n", result.Status, err)
		}
	}
	if failures > 0 {
		fmt.Printf("\n%d of %d prompt(s) failed\n", failures, len(prompts))
	}
	return nil
}

func buildRegistry(root *fstool.Root, opts *options) (*locopilot.Registry, error) {
	registry := locopilot.NewRegistry(
		locopilot.WithDefaultTimeout(opts.execTimeout + 10*time.Second),
	)
	registry.Use(locopilot.WithLogging(slog.Default()), locopilot.WithRecovery())

	fileTools, err := fstool.Tools(root)
	if err != nil {
		return nil, err
	}
	for _, t := range fileTools {
		registry.Register(t)
	}

	executor, err := sandbox.NewExecutor(root.Dir(),
		sandbox.WithMemoryLimit(opts.memory),
		sandbox.WithCPULimit(opts.cpus),
		sandbox.WithTimeout(opts.execTimeout),
		sandbox.WithLogger(slog.Default()),
	)
	if err != nil {
		// The sandbox is optional at startup: file tasks still work when no
		// container daemon is around, and run_program reports launch
		// failures per call otherwise.
		slog.Warn("sandbox unavailable, run_program disabled", "error", err)
		return registry, nil
	}
	runTool, err := sandbox.NewRunProgramTool(executor,
		locopilot.WithTimeout(opts.execTimeout+10*time.Second))
	if err != nil {
		return nil, err
	}
	registry.Register(runTool)
	return registry, nil
}
