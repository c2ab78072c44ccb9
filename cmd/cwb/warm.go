package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cwb/internal/extract"
	"cwb/internal/version"
)

var (
	warmFormat string
	warmLimit  int
)

var warmCmd = &cobra.Command{
	Use:   "warm [FILE...]",
	Short: "Pre-populate the context cache for workspace files",
	Long: `Run the pre-population pipeline over the given files, or over every
supported source file in the workspace when no files are named, then
print cache statistics.

Examples:
  cwb warm
  cwb warm src/main.go src/util.go
  cwb warm --limit 50`,
	Run: runWarm,
}

func init() {
	warmCmd.Flags().StringVar(&warmFormat, "format", "human", "Output format (json, yaml, human)")
	warmCmd.Flags().IntVar(&warmLimit, "limit", 200, "Maximum number of files to warm")
	rootCmd.AddCommand(warmCmd)
}

// WarmResponseCLI is the warm command output.
type WarmResponseCLI struct {
	CwbVersion string                 `json:"cwbVersion"`
	Warmed     int                    `json:"warmed"`
	Failed     int                    `json:"failed"`
	DurationMs int64                  `json:"durationMs"`
	Stats      map[string]interface{} `json:"stats"`
}

func runWarm(cmd *cobra.Command, args []string) {
	start := time.Now()

	root := mustGetWorkspace()
	cfg := loadWorkspaceConfig(root, nil)
	logger := newLogger(cfg)
	collector := mustGetCollector(cfg, logger)
	defer collector.Stop()

	files := args
	if len(files) == 0 {
		var err error
		files, err = supportedFiles(root, warmLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning workspace: %v\n", err)
			os.Exit(1)
		}
	}

	warmed, failed := 0, 0
	ctx := context.Background()
	for _, path := range files {
		if err := collector.WarmFile(ctx, path); err != nil {
			failed++
			logger.Warn("warm failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		warmed++
	}

	resp := &WarmResponseCLI{
		CwbVersion: version.Version,
		Warmed:     warmed,
		Failed:     failed,
		DurationMs: time.Since(start).Milliseconds(),
		Stats:      collector.Stats(),
	}

	output, err := FormatResponse(resp, OutputFormat(warmFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

// supportedFiles walks the workspace and collects source files in
// recognized languages, skipping common dependency directories.
func supportedFiles(root string, limit int) ([]string, error) {
	skipDirs := map[string]bool{
		"node_modules": true, ".git": true, "vendor": true,
		"__pycache__": true, "target": true, ".cwb": true,
	}

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= limit {
			return filepath.SkipDir
		}
		if _, ok := extract.LanguageFromExtension(filepath.Ext(path)); ok {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func formatWarmHuman(resp *WarmResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("cwb v%s\n", resp.CwbVersion))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("Warmed: %d files", resp.Warmed))
	if resp.Failed > 0 {
		b.WriteString(fmt.Sprintf(" (%d failed)", resp.Failed))
	}
	b.WriteString("\n\n")

	b.WriteString(formatStatsTiers(resp.Stats))
	b.WriteString(fmt.Sprintf("\n(Warmed in %dms)\n", resp.DurationMs))

	return b.String(), nil
}
