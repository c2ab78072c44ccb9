package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete cwb configuration
type Config struct {
	Version       int    `json:"version" mapstructure:"version"`
	WorkspaceRoot string `json:"workspaceRoot" mapstructure:"workspaceRoot"`

	Budget    BudgetConfig    `json:"budget" mapstructure:"budget"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Prewarm   PrewarmConfig   `json:"prewarm" mapstructure:"prewarm"`
	Extractor ExtractorConfig `json:"extractor" mapstructure:"extractor"`
	Deps      DepsConfig      `json:"deps" mapstructure:"deps"`
	Store     StoreConfig     `json:"store" mapstructure:"store"`
	Watcher   WatcherConfig   `json:"watcher" mapstructure:"watcher"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// BudgetConfig contains character budgets for assembled context
type BudgetConfig struct {
	// DefaultChars is the budget applied when the caller does not supply one
	DefaultChars int `json:"defaultChars" mapstructure:"defaultChars"`
	// TreeAidedChars is the larger budget used when a syntax tree is available
	TreeAidedChars int `json:"treeAidedChars" mapstructure:"treeAidedChars"`
}

// CacheConfig contains per-tier TTLs and file-count ceilings
type CacheConfig struct {
	RetrievalTtlSeconds int `json:"retrievalTtlSeconds" mapstructure:"retrievalTtlSeconds"`
	PatternTtlSeconds   int `json:"patternTtlSeconds" mapstructure:"patternTtlSeconds"`
	AssembledTtlSeconds int `json:"assembledTtlSeconds" mapstructure:"assembledTtlSeconds"`
	AnalysisTtlSeconds  int `json:"analysisTtlSeconds" mapstructure:"analysisTtlSeconds"`
	MaxEntriesPerTier   int `json:"maxEntriesPerTier" mapstructure:"maxEntriesPerTier"`
	SweepIntervalSec    int `json:"sweepIntervalSeconds" mapstructure:"sweepIntervalSeconds"`
}

// PrewarmConfig contains background pre-population settings
type PrewarmConfig struct {
	Enabled          bool `json:"enabled" mapstructure:"enabled"`
	DebounceSeconds  int  `json:"debounceSeconds" mapstructure:"debounceSeconds"`
	IdleBackoffMs    int  `json:"idleBackoffMs" mapstructure:"idleBackoffMs"`
	MaxHotZones      int  `json:"maxHotZones" mapstructure:"maxHotZones"`
	MaxRelatedFiles  int  `json:"maxRelatedFiles" mapstructure:"maxRelatedFiles"`
	FailureBackoffMs int  `json:"failureBackoffMs" mapstructure:"failureBackoffMs"`
}

// ExtractorConfig contains structural extraction settings
type ExtractorConfig struct {
	MaxFileSizeBytes int    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	PatternFile      string `json:"patternFile" mapstructure:"patternFile"`
}

// DepsConfig contains dependency-analyzer settings
type DepsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	IndexPath string `json:"indexPath" mapstructure:"indexPath"`
}

// StoreConfig contains warm-state store settings
type StoreConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// WatcherConfig contains file watcher settings
type WatcherConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	PollIntervalMs int      `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
	DebounceMs     int      `json:"debounceMs" mapstructure:"debounceMs"`
	IgnorePatterns []string `json:"ignorePatterns" mapstructure:"ignorePatterns"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		WorkspaceRoot: ".",
		Budget: BudgetConfig{
			DefaultChars:   1500,
			TreeAidedChars: 4000,
		},
		Cache: CacheConfig{
			RetrievalTtlSeconds: 30,
			PatternTtlSeconds:   30,
			AssembledTtlSeconds: 120,
			AnalysisTtlSeconds:  300,
			MaxEntriesPerTier:   512,
			SweepIntervalSec:    60,
		},
		Prewarm: PrewarmConfig{
			Enabled:          true,
			DebounceSeconds:  5,
			IdleBackoffMs:    1000,
			MaxHotZones:      20,
			MaxRelatedFiles:  5,
			FailureBackoffMs: 500,
		},
		Extractor: ExtractorConfig{
			MaxFileSizeBytes: 1000000,
			PatternFile:      ".cwb/patterns.toml",
		},
		Deps: DepsConfig{
			Enabled:   true,
			IndexPath: "index.scip",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    ".cwb/warm.db",
		},
		Watcher: WatcherConfig{
			Enabled:        true,
			PollIntervalMs: 2000,
			DebounceMs:     500,
			IgnorePatterns: []string{
				"*.log",
				"*.tmp",
				"node_modules/**",
				"vendor/**",
				"__pycache__/**",
				".git/**",
				".cwb/**",
			},
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <workspaceRoot>/.cwb/config.json
func LoadConfig(workspaceRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("workspaceRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(workspaceRoot, ".cwb"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.WorkspaceRoot = workspaceRoot
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.WorkspaceRoot == "." || cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = workspaceRoot
	}

	return cfg, nil
}

// Save writes the configuration to <workspaceRoot>/.cwb/config.json
func (c *Config) Save(workspaceRoot string) error {
	dir := filepath.Join(workspaceRoot, ".cwb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Budget.DefaultChars < 0 || c.Budget.TreeAidedChars < 0 {
		return &ConfigError{Field: "budget", Message: "budgets must be non-negative"}
	}
	if c.Cache.MaxEntriesPerTier <= 0 {
		return &ConfigError{Field: "cache.maxEntriesPerTier", Message: "must be positive"}
	}
	if c.Prewarm.MaxHotZones <= 0 {
		return &ConfigError{Field: "prewarm.maxHotZones", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
