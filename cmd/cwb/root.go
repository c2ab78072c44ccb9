package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cwb/internal/config"
	"cwb/internal/engine"
	"cwb/internal/logging"
	"cwb/internal/version"
)

var (
	workspaceFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "cwb",
	Short: "CWB - Context Window Budgeting engine",
	Long: `CWB assembles budgeted context windows for code completion: it extracts
structural units around a cursor, scores them for retention, collapses
low-priority bodies, and fits the result into a character budget.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("cwb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", ".",
		"Workspace root directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (default from config)")
}

// mustGetWorkspace resolves the --workspace flag to an absolute path.
func mustGetWorkspace() string {
	root, err := filepath.Abs(workspaceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving workspace: %v\n", err)
		os.Exit(1)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Workspace is not a directory: %s\n", root)
		os.Exit(1)
	}
	return root
}

// loadWorkspaceConfig loads .cwb/config.json under the workspace root,
// falling back to defaults when no file exists.
func loadWorkspaceConfig(root string, logger *logging.Logger) *config.Config {
	if logger == nil {
		logger = logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.WarnLevel})
	}
	cfg, err := config.LoadConfig(root)
	if err != nil {
		logger.Warn("Failed to load config, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		cfg = config.DefaultConfig()
		cfg.WorkspaceRoot = root
	}
	return cfg
}

// newLogger builds the command logger. JSON output goes to stdout, so logs
// stay on stderr in human format unless config says otherwise.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	if env := os.Getenv("CWB_LOG_LEVEL"); env != "" && logLevelFlag == "" {
		level = env
	}
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(level),
	})
}

// mustGetCollector builds a collector for one-shot commands. The watcher
// stays off since the process exits after the command.
func mustGetCollector(cfg *config.Config, logger *logging.Logger) *engine.Collector {
	cfg.Watcher.Enabled = false
	c, err := engine.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
		os.Exit(1)
	}
	return c
}
