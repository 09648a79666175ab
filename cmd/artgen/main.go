package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/manash/artgen/internal/artifact"
	"github.com/manash/artgen/internal/augment"
	"github.com/manash/artgen/internal/batch"
	"github.com/manash/artgen/internal/keys"
	"github.com/manash/artgen/internal/memory"
	"github.com/manash/artgen/internal/pipeline"
	"github.com/manash/artgen/internal/repl"
	"github.com/manash/artgen/internal/security"
	"github.com/manash/artgen/internal/service"
	"github.com/manash/artgen/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagModel       string
	flagDataDir     string
	flagText2ImgURL string
	flagModel3DURL  string
	flagSession     string
	flagVerbose     bool
	flagRecentCount int
	flagOutput      string
	flagParallel    int
	flagStopOnError bool
	flagDelayMs     int
)

// App carries the injectable dependencies of the CLI, so tests can run
// the commands without a local model, remote services, or a home
// directory.
type App struct {
	Out    io.Writer
	Err    io.Writer
	In     io.Reader
	GetEnv func(string) string

	NewGenerator func(model string) (augment.Generator, error)
	NewCaller    func(endpoints map[string]service.Endpoint) service.Caller
}

func DefaultApp() *App {
	return &App{
		Out:    os.Stdout,
		Err:    os.Stderr,
		In:     os.Stdin,
		GetEnv: os.Getenv,
		NewGenerator: func(model string) (augment.Generator, error) {
			return augment.NewOllamaGenerator(model)
		},
		NewCaller: func(endpoints map[string]service.Endpoint) service.Caller {
			return service.NewHTTPCaller(endpoints)
		},
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best-effort; env vars beat .env and flags beat both.
	_ = godotenv.Load()

	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artgen [prompt]",
		Short: "Turn a prompt into a generated image and a derived 3D model",
		Long: `artgen expands a prompt with a local language model, generates an
image from it, derives a 3D model from the image, and records every
stage in a two-tier memory store.

Examples:
  artgen "a castle at sunset"
  artgen batch prompts.txt --parallel 3
  artgen recent -n 10
  artgen show <session-id>`,
		Args:    cobra.ExactArgs(1),
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		RunE: func(_ *cobra.Command, args []string) error {
			return runGenerate(args[0], app)
		},
	}

	cmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "llama3.2", "local model for prompt expansion")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ~/.artgen)")
	cmd.PersistentFlags().StringVar(&flagText2ImgURL, "text2img-url", "", "text-to-image service URL (defaults to ARTGEN_TEXT2IMG_URL)")
	cmd.PersistentFlags().StringVar(&flagModel3DURL, "model3d-url", "", "image-to-3D service URL (defaults to ARTGEN_MODEL3D_URL)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&flagSession, "session", "", "session id (defaults to a fresh uuid)")

	cmd.AddCommand(newRecentCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newBatchCmd(app))
	cmd.AddCommand(newReplCmd(app))
	cmd.AddCommand(newKeysCmd(app))

	return cmd
}

// env holds everything a command needs at runtime.
type env struct {
	memory    *memory.Store
	orch      *pipeline.Orchestrator
	caller    service.Caller
	log       *zap.Logger
	closeFunc func()
}

func (e *env) close() {
	e.closeFunc()
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func buildEnv(app *App) (*env, error) {
	logger := newLogger(flagVerbose)

	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = app.GetEnv("ARTGEN_DATA_DIR")
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".artgen")
	}

	mem, err := memory.Open(filepath.Join(dataDir, "memory.db"), logger)
	if err != nil {
		return nil, err
	}

	artifacts, err := artifact.NewStore(filepath.Join(dataDir, "artifacts"))
	if err != nil {
		mem.Close()
		return nil, err
	}

	// A missing local model is not fatal: the augmenter falls open and
	// the pipeline runs on the original prompt.
	gen, err := app.NewGenerator(flagModel)
	if err != nil {
		logger.Warn("local model unavailable", zap.String("model", flagModel), zap.Error(err))
		gen = nil
	}
	augmenter := augment.New(gen, logger)

	caller := app.NewCaller(buildEndpoints(app))
	orch := pipeline.New(augmenter, mem, artifacts, logger)

	return &env{
		memory: mem,
		orch:   orch,
		caller: caller,
		log:    logger,
		closeFunc: func() {
			mem.Close()
			logger.Sync()
		},
	}, nil
}

func buildEndpoints(app *App) map[string]service.Endpoint {
	endpoints := map[string]service.Endpoint{
		service.Text2Img: {
			URL:    firstNonEmpty(flagText2ImgURL, app.GetEnv("ARTGEN_TEXT2IMG_URL")),
			APIKey: app.GetEnv("ARTGEN_TEXT2IMG_KEY"),
		},
		service.Model3D: {
			URL:    firstNonEmpty(flagModel3DURL, app.GetEnv("ARTGEN_MODEL3D_URL")),
			APIKey: app.GetEnv("ARTGEN_MODEL3D_KEY"),
		},
	}

	// Stored keys fill the gaps the environment leaves.
	store, err := keys.NewStore()
	if err != nil {
		return endpoints
	}
	for id, ep := range endpoints {
		if ep.APIKey == "" {
			if key, err := store.Get(id); err == nil {
				ep.APIKey = key
				endpoints[id] = ep
			}
		}
	}
	return endpoints
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runGenerate(prompt string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := buildEnv(app)
	if err != nil {
		return err
	}
	defer e.close()

	sessionID := flagSession
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	fmt.Fprintf(app.Out, "Processing session %s...\n", sessionID)

	result := e.orch.Process(ctx, prompt, e.caller, sessionID)
	if !result.Success() {
		return fmt.Errorf("pipeline failed: %s", result.Err)
	}

	fmt.Fprintf(app.Out, "Expanded prompt: %s\n", result.Prompt.ExpandedPrompt)
	fmt.Fprintf(app.Out, "Image: %s%s\n", result.ImagePath, fileSize(result.ImagePath))
	fmt.Fprintf(app.Out, "Model: %s%s\n", result.ModelPath, fileSize(result.ModelPath))
	fmt.Fprintln(app.Out, "Done!")
	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", humanize.Bytes(uint64(info.Size())))
}

func newRecentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent creations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := buildEnv(app)
			if err != nil {
				return err
			}
			defer e.close()

			entries, err := e.memory.ListRecentPersistent(cmd.Context(), flagRecentCount)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(app.Out, "No creations yet.")
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(app.Out, "%s  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Key)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&flagRecentCount, "count", "n", 10, "number of entries to list")
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a creation record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(app)
			if err != nil {
				return err
			}
			defer e.close()

			var record models.CreationRecord
			if err := e.memory.GetPersistentInto(cmd.Context(), models.CreationKey(args[0]), &record); err != nil {
				return err
			}

			data, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}

			if flagOutput == "" {
				fmt.Fprintln(app.Out, string(data))
				return nil
			}

			if err := security.ValidateSavePath(flagOutput); err != nil {
				return fmt.Errorf("invalid output path %q: %w", flagOutput, err)
			}
			if err := os.WriteFile(flagOutput, data, 0644); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
			fmt.Fprintf(app.Out, "Saved: %s\n", flagOutput)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the record to a file instead of stdout")
	return cmd
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run a file of prompts through the pipeline",
		Long: `Runs every prompt in the file through the full pipeline. Text files
hold one prompt per line (# starts a comment); JSON files hold an array
of {"prompt": ...} objects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			items, err := batch.ParseFile(args[0])
			if err != nil {
				return err
			}

			e, err := buildEnv(app)
			if err != nil {
				return err
			}
			defer e.close()

			processor := batch.NewProcessor(e.orch, e.caller, app.Out, app.Err)
			results, err := processor.Process(ctx, items, &batch.Options{
				Parallel:    flagParallel,
				StopOnError: flagStopOnError,
				DelayMs:     flagDelayMs,
			})
			processor.Summary(results)
			return err
		},
	}
	cmd.Flags().IntVarP(&flagParallel, "parallel", "p", 1, "number of concurrent runs")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "abort the batch on the first failure")
	cmd.Flags().IntVar(&flagDelayMs, "delay-ms", 0, "delay between sequential runs")
	return cmd
}

func newReplCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive mode",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e, err := buildEnv(app)
			if err != nil {
				return err
			}
			defer e.close()

			r := repl.New(&repl.Config{
				In:     app.In,
				Out:    app.Out,
				Err:    app.Err,
				Runner: e.orch,
				Caller: e.caller,
				Memory: e.memory,
			})
			return r.Run(ctx)
		},
	}
}

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the remote services",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <service> <key>",
		Short: "Store an API key (service: text2img or model3d)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := keys.NewStore()
			if err != nil {
				return err
			}
			if err := store.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Key stored for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <service>",
		Short: "Delete a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := keys.NewStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Key deleted for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List services with stored keys",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := keys.NewStore()
			if err != nil {
				return err
			}
			ids, err := store.List()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(app.Out, "No stored keys.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(app.Out, id)
			}
			return nil
		},
	})

	return cmd
}
