package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cwb/internal/assemble"
	"cwb/internal/document"
	"cwb/internal/version"
)

var (
	contextFormat   string
	contextBudget   int
	contextDeps     bool
	contextDepsWait time.Duration
)

var contextCmd = &cobra.Command{
	Use:   "context FILE OFFSET",
	Short: "Assemble a budgeted context window around a cursor position",
	Long: `Assemble the context window for FILE with the cursor at byte OFFSET.

Examples:
  cwb context src/main.go 1523
  cwb context src/main.go 1523 --budget 2000 --format json
  cwb context src/main.go 1523 --deps`,
	Args: cobra.ExactArgs(2),
	Run:  runContext,
}

func init() {
	contextCmd.Flags().StringVar(&contextFormat, "format", "human", "Output format (json, yaml, human)")
	contextCmd.Flags().IntVar(&contextBudget, "budget", 0, "Character budget (0 uses the configured default)")
	contextCmd.Flags().BoolVar(&contextDeps, "deps", false, "Wait for the dependency-enhanced result when an index is available")
	contextCmd.Flags().DurationVar(&contextDepsWait, "deps-timeout", 2*time.Second, "How long to wait for dependency analysis")
	rootCmd.AddCommand(contextCmd)
}

// ContextResponseCLI is the context command output.
type ContextResponseCLI struct {
	CwbVersion string          `json:"cwbVersion"`
	Path       string          `json:"path"`
	Offset     int             `json:"offset"`
	Budget     int             `json:"budget"`
	Enhanced   bool            `json:"enhanced"`
	DurationMs int64           `json:"durationMs"`
	Result     assemble.Result `json:"result"`
}

func runContext(cmd *cobra.Command, args []string) {
	start := time.Now()

	offset, err := strconv.Atoi(args[1])
	if err != nil || offset < 0 {
		fmt.Fprintf(os.Stderr, "Invalid offset %q: want a non-negative integer\n", args[1])
		os.Exit(1)
	}

	root := mustGetWorkspace()
	cfg := loadWorkspaceConfig(root, nil)
	logger := newLogger(cfg)
	collector := mustGetCollector(cfg, logger)
	defer collector.Stop()

	doc, err := document.Snapshot(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	var res assemble.Result
	enhanced := false
	if contextDeps {
		done := make(chan assemble.Result, 1)
		res = collector.CollectWithDependencyAnalysis(doc, offset, contextBudget, func(r assemble.Result) {
			done <- r
		})
		select {
		case r := <-done:
			res = r
			enhanced = true
		case <-time.After(contextDepsWait):
		}
	} else {
		res = collector.CollectContext(doc, offset, contextBudget)
	}

	resp := &ContextResponseCLI{
		CwbVersion: version.Version,
		Path:       doc.Path,
		Offset:     offset,
		Budget:     contextBudget,
		Enhanced:   enhanced,
		DurationMs: time.Since(start).Milliseconds(),
		Result:     res,
	}

	output, err := FormatResponse(resp, OutputFormat(contextFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func formatContextHuman(resp *ContextResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("cwb v%s\n", resp.CwbVersion))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("File:      %s\n", resp.Path))
	b.WriteString(fmt.Sprintf("Offset:    %d (line %d)\n", resp.Offset, resp.Result.CursorLine+1))
	b.WriteString(fmt.Sprintf("Tag:       %s\n", resp.Result.Tag))
	b.WriteString(fmt.Sprintf("Truncated: %v\n", resp.Result.Truncated))
	if resp.Enhanced {
		b.WriteString("Enhanced:  yes (dependency analysis)\n")
	}
	if len(resp.Result.PreservedNames) > 0 {
		b.WriteString(fmt.Sprintf("Preserved: %s\n", strings.Join(resp.Result.PreservedNames, ", ")))
	}
	b.WriteString(fmt.Sprintf("Size:      %d chars\n\n", len(resp.Result.FinalContent)))

	b.WriteString(strings.Repeat("-", 60) + "\n")
	b.WriteString(resp.Result.MarkedContent)
	if !strings.HasSuffix(resp.Result.MarkedContent, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("-", 60) + "\n")
	b.WriteString(fmt.Sprintf("(Assembled in %dms)\n", resp.DurationMs))

	return b.String(), nil
}
