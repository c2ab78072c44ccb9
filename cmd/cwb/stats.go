package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cwb/internal/cache"
	"cwb/internal/prewarm"
	"cwb/internal/version"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and scheduler statistics",
	Long:  "Display per-tier cache counters and pre-population scheduler state, including entries re-warmed from the on-disk store.",
	Run:   runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "human", "Output format (json, yaml, human)")
	rootCmd.AddCommand(statsCmd)
}

// StatsResponseCLI is the stats command output.
type StatsResponseCLI struct {
	CwbVersion string                 `json:"cwbVersion"`
	Workspace  string                 `json:"workspace"`
	Stats      map[string]interface{} `json:"stats"`
}

func runStats(cmd *cobra.Command, args []string) {
	root := mustGetWorkspace()
	cfg := loadWorkspaceConfig(root, nil)
	logger := newLogger(cfg)
	collector := mustGetCollector(cfg, logger)
	defer collector.Stop()

	// Start re-populates cache tiers from the warm store so the counters
	// reflect persisted state.
	if err := collector.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
		os.Exit(1)
	}

	resp := &StatsResponseCLI{
		CwbVersion: version.Version,
		Workspace:  root,
		Stats:      collector.Stats(),
	}

	output, err := FormatResponse(resp, OutputFormat(statsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func formatStatsHuman(resp *StatsResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("cwb v%s\n", resp.CwbVersion))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("Workspace: %s\n\n", resp.Workspace))
	b.WriteString(formatStatsTiers(resp.Stats))

	return b.String(), nil
}

// formatStatsTiers renders the Stats() map for human output. It is shared
// with the warm command.
func formatStatsTiers(stats map[string]interface{}) string {
	var b strings.Builder

	if tiers, ok := stats["cache"].(map[cache.Tier]cache.TierStats); ok {
		b.WriteString("Cache tiers:\n")
		order := []cache.Tier{cache.TierRetrieval, cache.TierPattern, cache.TierAssembled, cache.TierAnalysis}
		for _, tier := range order {
			st := tiers[tier]
			b.WriteString(fmt.Sprintf("  %-10s size=%-5d hits=%-6d misses=%-6d evictions=%d\n",
				tier, st.Size, st.Hits, st.Misses, st.Evictions))
		}
	}

	if sched, ok := stats["prewarm"].(prewarm.Stats); ok {
		b.WriteString("\nScheduler:\n")
		b.WriteString(fmt.Sprintf("  enqueued=%d processed=%d skipped=%d failed=%d pending=%d\n",
			sched.Enqueued, sched.Processed, sched.Skipped, sched.Failed, sched.Pending))
	}

	return b.String()
}
