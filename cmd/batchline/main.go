// Package main provides the CLI entry point for the batchline runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/batchline/runtime/internal/cli"
	"github.com/batchline/runtime/internal/config"
	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/internal/persistence"
	"github.com/batchline/runtime/internal/pipeline"
	"github.com/batchline/runtime/internal/runtime"
	"github.com/batchline/runtime/internal/watch"
	"github.com/batchline/runtime/pkg/batch"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

var (
	// Global flags
	verbose     bool
	quiet       bool
	logFilePath string
	logFormat   string

	// Run command flags
	dryRun    bool
	watchMode bool
	stateDir  string

	// Stats command flags
	statsThreshold float64

	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitRuntimeError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "batchline",
	Short: "Batchline - Declarative batch pipeline runtime",
	Long: `Batchline is a CLI tool for running declarative batch pipelines.

It parses and validates pipeline definitions (JSON/YAML format),
then executes them according to the defined Source → Filter → Sink pattern.

Examples:
  # Validate a pipeline definition
  batchline validate pipeline.json

  # Run a pipeline
  batchline run pipeline.yaml

  # Preview a run without writing to the sink
  batchline run --dry-run pipeline.json

  # Summarize a processed batch file
  batchline stats output.json --threshold 100`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		} else if quiet {
			level = slog.LevelError
		}

		format := logger.FormatJSON
		if logFormat == "human" {
			format = logger.FormatHuman
		}

		if logFilePath != "" {
			if err := logger.SetLogFile(logFilePath, level, format); err != nil {
				fmt.Fprintf(os.Stderr, "✗ Failed to open log file: %v\n", err)
				os.Exit(ExitRuntimeError)
			}
			return
		}

		logger.SetLevelAndFormat(level, format)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <definition-file>",
	Short: "Validate a pipeline definition file",
	Long: `Validate a pipeline definition file against the schema.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Definition is valid
  1 - Validation errors (schema violations)
  2 - Parse errors (invalid JSON/YAML syntax)

Examples:
  batchline validate pipeline.json
  batchline validate pipeline.yaml
  batchline validate --verbose pipeline.json`,
	Args: cobra.ExactArgs(1),
	Run:  runValidate,
}

var runCmd = &cobra.Command{
	Use:   "run <definition-file>",
	Short: "Run a pipeline from a definition file",
	Long: `Run a pipeline defined in the definition file.

The definition file is first validated against the schema.
If validation fails, the pipeline will not be executed.

Flags:
  --dry-run   Execute the pipeline without sending records to the sink
  --watch     Keep running and re-execute when the source file changes

Exit codes:
  0 - Pipeline executed successfully
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors

Examples:
  batchline run pipeline.json
  batchline run --verbose pipeline.yaml
  batchline run --dry-run pipeline.json
  batchline run --watch pipeline.json`,
	Args: cobra.ExactArgs(1),
	Run:  runPipeline,
}

var statsCmd = &cobra.Command{
	Use:   "stats <batch-file>",
	Short: "Summarize a processed batch file",
	Long: `Summarize a processed batch file written by a file sink.

Prints the record count and the average numeric value. When --threshold
is given, also counts the records whose value exceeds it.

Exit codes:
  0 - Statistics printed
  2 - Batch file missing or malformed

Examples:
  batchline stats output.json
  batchline stats output.json.gz --threshold 100`,
	Args: cobra.ExactArgs(1),
	Run:  runStats,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version, commit hash, and build date information.",
	Run:   runVersion,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "Write JSON logs to this file in addition to the console")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Console log format: json or human")

	// Run command flags
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Execute without sending records to the sink")
	runCmd.Flags().BoolVar(&watchMode, "watch", false, "Re-run the pipeline when the source file changes")
	runCmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory for run state files (default "+persistence.DefaultStatePath+")")

	// Stats command flags
	statsCmd.Flags().Float64Var(&statsThreshold, "threshold", 0, "Count records with values above this threshold")

	// Add commands
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// parseAndValidate parses a definition file and exits on parse or
// validation errors.
func parseAndValidate(definitionPath string) *config.Result {
	result := config.ParseConfig(definitionPath)

	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(result.ParseErrors, verbose)
		os.Exit(ExitParseError)
	}

	if len(result.ValidationErrors) > 0 {
		cli.PrintValidationErrors(result.ValidationErrors, verbose, quiet)
		os.Exit(ExitValidationError)
	}

	return result
}

func runValidate(_ *cobra.Command, args []string) {
	definitionPath := args[0]

	if !quiet {
		fmt.Printf("Validating definition: %s\n", definitionPath)
	}

	result := parseAndValidate(definitionPath)

	if !quiet {
		fmt.Printf("✓ Definition is valid (format: %s)\n", result.Format)

		if verbose {
			cli.PrintConfigSummary(result.Data)
		}
	}

	os.Exit(ExitSuccess)
}

func runPipeline(_ *cobra.Command, args []string) {
	definitionPath := args[0]

	if !quiet {
		fmt.Printf("Loading pipeline definition: %s\n", definitionPath)
	}

	result := parseAndValidate(definitionPath)

	if !quiet {
		fmt.Printf("✓ Definition loaded successfully (format: %s)\n", result.Format)
	}

	p, err := config.ConvertToPipeline(result.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to convert definition: %v\n", err)
		os.Exit(ExitRuntimeError)
	}

	if verbose {
		fmt.Printf("  Pipeline: %s (v%s)\n", p.Name, p.Version)
		if p.Description != "" {
			fmt.Printf("  Description: %s\n", p.Description)
		}
	}

	if watchMode {
		os.Exit(runWatch(p))
	}

	if !quiet {
		if dryRun {
			fmt.Println("Executing pipeline (dry-run mode - records will not be sent)...")
		} else {
			fmt.Println("Executing pipeline...")
		}
	}

	if err := execute(context.Background(), p); err != nil {
		os.Exit(ExitRuntimeError)
	}
	os.Exit(ExitSuccess)
}

// execute builds a fresh executor, runs the pipeline once, and prints
// the result.
func execute(ctx context.Context, p *batch.Pipeline) error {
	executor, err := runtime.NewExecutorFromPipeline(p, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to create pipeline modules: %v\n", err)
		return err
	}
	executor.SetStateStore(persistence.NewStateStore(stateDir))

	result, err := executor.Execute(ctx, p)
	cli.PrintRunResult(result, err, cli.OutputOptions{Verbose: verbose, Quiet: quiet, DryRun: dryRun})
	return err
}

// runWatch runs the pipeline once, then re-runs it whenever the source
// file changes, until interrupted.
func runWatch(p *batch.Pipeline) int {
	sourcePath := fileSourcePath(p)
	if sourcePath == "" {
		fmt.Fprintln(os.Stderr, "✗ Watch mode requires a file source with a path")
		return ExitRuntimeError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if !quiet {
		fmt.Println("Executing pipeline...")
	}
	// The first run happens immediately. A failure leaves the watch
	// alive so a later edit can fix the input.
	_ = execute(ctx, p)

	watcher, err := watch.New(watch.Config{
		Path:       sourcePath,
		PipelineID: p.ID,
		Store:      persistence.NewStateStore(stateDir),
	}, func(runCtx context.Context) error {
		return execute(runCtx, p)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to start watch mode: %v\n", err)
		return ExitRuntimeError
	}
	defer watcher.Close()

	if !quiet {
		fmt.Printf("Watching %s for changes (Ctrl+C to stop)...\n", sourcePath)
	}

	if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "✗ Watch mode failed: %v\n", err)
		return ExitRuntimeError
	}

	if !quiet {
		stats := watcher.GetStats()
		fmt.Printf("Watch stopped after %d run(s) (%d change event(s), %d skipped)\n",
			stats.Runs, stats.Events, stats.Skips)
	}
	return ExitSuccess
}

// fileSourcePath returns the path of a file source, or "" when the
// pipeline reads from something watch mode cannot observe.
func fileSourcePath(p *batch.Pipeline) string {
	if p.Source == nil || p.Source.Type != "file" {
		return ""
	}
	path, _ := p.Source.Config["path"].(string)
	return path
}

func runStats(cmd *cobra.Command, args []string) {
	batchPath := args[0]

	records, err := gateway.LoadProcessed(batchPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to read batch file: %v\n", err)
		os.Exit(ExitParseError)
	}

	stats := cli.BatchStats{
		File:    batchPath,
		Records: len(records),
		Average: pipeline.AverageValue(records),
	}

	if cmd.Flags().Changed("threshold") {
		t := statsThreshold
		stats.Threshold = &t
		stats.OverThreshold = len(pipeline.FilterByThreshold(records, t))
	}

	cli.PrintBatchStats(stats)
	os.Exit(ExitSuccess)
}

func runVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
