// Run result, dry-run preview and statistics rendering.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/batchline/runtime/pkg/batch"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	DryRun  bool
}

// PrintRunResult displays the pipeline run result.
func PrintRunResult(result *batch.RunResult, err error, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(os.Stderr, "✗ No run result available")
		return
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Pipeline execution failed")
		printRunError(result.Error, opts.Verbose)
		return
	}

	if opts.Quiet {
		return
	}

	fmt.Println("✓ Pipeline executed successfully")
	fmt.Printf("  Status: %s\n", result.Status)
	fmt.Printf("  Records processed: %d\n", result.RecordsProcessed)
	if result.RecordsFailed > 0 {
		fmt.Printf("  Records failed: %d\n", result.RecordsFailed)
		fmt.Printf("  Success rate: %.1f%%\n", result.SuccessRate)
	}
	if result.Average != nil {
		fmt.Printf("  Average value: %.2f\n", *result.Average)
	}
	if result.ThresholdKept != nil {
		fmt.Printf("  Records over threshold: %d\n", *result.ThresholdKept)
	}
	if result.Retries > 0 {
		fmt.Printf("  Sink retries: %d\n", result.Retries)
	}
	if opts.Verbose {
		fmt.Printf("  Duration: %v\n", result.CompletedAt.Sub(result.StartedAt))
	}
	if result.Error != nil {
		fmt.Printf("  Warning: %s stage reported: %s\n", result.Error.Stage, result.Error.Message)
	}

	if opts.DryRun && len(result.Preview) > 0 {
		PrintDryRunPreview(result.Preview, opts.Verbose)
	}
}

// printRunError prints the structured error block to stderr.
func printRunError(runErr *batch.RunError, verbose bool) {
	if runErr == nil {
		return
	}

	if runErr.Stage != "" {
		fmt.Fprintf(os.Stderr, "  Stage: %s\n", runErr.Stage)
	}
	fmt.Fprintf(os.Stderr, "  Error: %s\n", runErr.Message)

	if verbose {
		fmt.Fprintf(os.Stderr, "  Code: %s\n", runErr.Code)
		if runErr.Category != "" {
			fmt.Fprintf(os.Stderr, "  Category: %s\n", runErr.Category)
		}
		if runErr.Retryable {
			fmt.Fprintln(os.Stderr, "  Retryable: repeating the run may succeed")
		}
	}
}

// PrintDryRunPreview displays the processed records for dry-run mode.
func PrintDryRunPreview(records []batch.Processed, verbose bool) {
	fmt.Println()
	fmt.Println("Dry-Run Preview (what would have been sent):")
	fmt.Printf("  Records: %d\n", len(records))

	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Printf("  (failed to render preview: %v)\n", err)
		return
	}
	printPreviewBody(string(body), verbose)

	fmt.Println()
	fmt.Println("No data was sent to the sink (dry-run mode)")
}

// printPreviewBody displays the formatted JSON preview.
func printPreviewBody(body string, verbose bool) {
	const maxLinesCompact = 10
	lineCount := countLines(body)

	if verbose || lineCount <= maxLinesCompact {
		fmt.Println("  Preview:")
		printIndentedBody(body, "    ")
		return
	}

	fmt.Println("  Preview (truncated, use --verbose for full):")
	printTruncatedBody(body, "    ", maxLinesCompact)
}

// printIndentedBody prints the body with indentation.
func printIndentedBody(body string, indent string) {
	lines := splitLines(body)
	for _, line := range lines {
		fmt.Printf("%s%s\n", indent, line)
	}
}

// printTruncatedBody prints the first N lines of the body.
func printTruncatedBody(body string, indent string, maxLines int) {
	lines := splitLines(body)
	for i := 0; i < maxLines && i < len(lines); i++ {
		fmt.Printf("%s%s\n", indent, lines[i])
	}
	if len(lines) > maxLines {
		fmt.Printf("%s... (%d more lines)\n", indent, len(lines)-maxLines)
	}
}

// countLines counts the number of lines in a string.
func countLines(s string) int {
	return strings.Count(s, "\n") + 1
}

// splitLines splits a string into lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// PrintConfigSummary prints pipeline name and version if available.
func PrintConfigSummary(data map[string]interface{}) {
	if data == nil {
		return
	}

	p, ok := data["pipeline"].(map[string]interface{})
	if !ok {
		return
	}

	if name, ok := p["name"].(string); ok {
		fmt.Printf("  Pipeline: %s\n", name)
	}
	if version, ok := p["version"].(string); ok {
		fmt.Printf("  Version: %s\n", version)
	}
}

// BatchStats summarizes a processed batch file for the stats command.
type BatchStats struct {
	File          string
	Records       int
	Average       float64
	Threshold     *float64
	OverThreshold int
}

// PrintBatchStats prints batch statistics to stdout.
func PrintBatchStats(stats BatchStats) {
	fmt.Printf("Batch: %s\n", stats.File)
	fmt.Printf("  Records: %d\n", stats.Records)
	fmt.Printf("  Average value: %.2f\n", stats.Average)
	if stats.Threshold != nil {
		fmt.Printf("  Records over %.2f: %d\n", *stats.Threshold, stats.OverThreshold)
	}
}
