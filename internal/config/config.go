// Package config loads the selector configuration from .tsel/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete tsel configuration.
type Config struct {
	Version     int    `json:"version" mapstructure:"version"`
	ProjectRoot string `json:"projectRoot" mapstructure:"projectRoot"`

	Corpus    CorpusConfig    `json:"corpus" mapstructure:"corpus"`
	Analysis  AnalysisConfig  `json:"analysis" mapstructure:"analysis"`
	Oracle    OracleConfig    `json:"oracle" mapstructure:"oracle"`
	Selection SelectionConfig `json:"selection" mapstructure:"selection"`
	Execution ExecutionConfig `json:"execution" mapstructure:"execution"`
	History   HistoryConfig   `json:"history" mapstructure:"history"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// CorpusConfig describes where test and source files live.
type CorpusConfig struct {
	TestRoot    string   `json:"testRoot" mapstructure:"testRoot"`
	TestGlob    string   `json:"testGlob" mapstructure:"testGlob"`
	SourceRoots []string `json:"sourceRoots" mapstructure:"sourceRoots"`
	// IgnorePaths are changed-file prefixes/suffixes that never affect tests.
	IgnorePaths []string `json:"ignorePaths" mapstructure:"ignorePaths"`
}

// AnalysisConfig controls diff analysis behavior.
type AnalysisConfig struct {
	// Parser selects the method-span parser: "regex" or "treesitter".
	Parser string `json:"parser" mapstructure:"parser"`
	// GitTimeoutMs bounds every git query.
	GitTimeoutMs int `json:"gitTimeoutMs" mapstructure:"gitTimeoutMs"`
	// LocatorSuffix is the identifier suffix that marks a UI locator constant.
	LocatorSuffix string `json:"locatorSuffix" mapstructure:"locatorSuffix"`
}

// OracleConfig configures the LLM suggestion fallback.
type OracleConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	URL       string `json:"url" mapstructure:"url"`
	Model     string `json:"model" mapstructure:"model"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
	// MaxSuggestions caps how many validated oracle paths are accepted.
	MaxSuggestions int `json:"maxSuggestions" mapstructure:"maxSuggestions"`
	// MaxDiffChars truncates each per-file diff embedded in the prompt.
	MaxDiffChars int `json:"maxDiffChars" mapstructure:"maxDiffChars"`
	// FuzzyCutoff is the minimum similarity ratio for fuzzy path mapping.
	FuzzyCutoff float64 `json:"fuzzyCutoff" mapstructure:"fuzzyCutoff"`
}

// SelectionConfig controls reconciliation of candidate sets.
type SelectionConfig struct {
	// MaxTests caps the final selection size.
	MaxTests int `json:"maxTests" mapstructure:"maxTests"`
	// StaticUpperBound triggers the oracle when static matching exceeds it.
	StaticUpperBound int `json:"staticUpperBound" mapstructure:"staticUpperBound"`
	// OraclePolicy is "replace" or "augment" when static matching is too large.
	OraclePolicy string `json:"oraclePolicy" mapstructure:"oraclePolicy"`
	// Prioritize orders the selection by historical failure/timing data.
	Prioritize bool `json:"prioritize" mapstructure:"prioritize"`
}

// ExecutionConfig controls test execution.
type ExecutionConfig struct {
	Runner        string   `json:"runner" mapstructure:"runner"`
	RunnerArgs    []string `json:"runnerArgs" mapstructure:"runnerArgs"`
	TestTimeoutMs int      `json:"testTimeoutMs" mapstructure:"testTimeoutMs"`
	RetryAttempts int      `json:"retryAttempts" mapstructure:"retryAttempts"`
	MaxWorkers    int      `json:"maxWorkers" mapstructure:"maxWorkers"`
	CriticalCount int      `json:"criticalCount" mapstructure:"criticalCount"`
	// SmokeTest runs the first available test when no changes are detected.
	SmokeTest bool `json:"smokeTest" mapstructure:"smokeTest"`
}

// HistoryConfig controls the persistent history store.
type HistoryConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// MaxRunsPerTest bounds the per-test ring buffer.
	MaxRunsPerTest int `json:"maxRunsPerTest" mapstructure:"maxRunsPerTest"`
	// RecentWindow is how many trailing runs count toward recent failures.
	RecentWindow int `json:"recentWindow" mapstructure:"recentWindow"`
	// CacheSelections enables the per-commit selection cache.
	CacheSelections bool `json:"cacheSelections" mapstructure:"cacheSelections"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		ProjectRoot: ".",
		Corpus: CorpusConfig{
			TestRoot:    "tests",
			TestGlob:    "**/test_*.py",
			SourceRoots: []string{"pages", "core"},
			IgnorePaths: []string{"logs/", ".md", ".txt"},
		},
		Analysis: AnalysisConfig{
			Parser:        "regex",
			GitTimeoutMs:  30000,
			LocatorSuffix: "_LOCATOR",
		},
		Oracle: OracleConfig{
			Enabled:        true,
			URL:            "http://localhost:11434/api/generate",
			Model:          "mistral",
			TimeoutMs:      30000,
			MaxSuggestions: 5,
			MaxDiffChars:   1000,
			FuzzyCutoff:    0.5,
		},
		Selection: SelectionConfig{
			MaxTests:         8,
			StaticUpperBound: 10,
			OraclePolicy:     "replace",
			Prioritize:       true,
		},
		Execution: ExecutionConfig{
			Runner:        "pytest",
			RunnerArgs:    []string{"-v", "--tb=short", "-x"},
			TestTimeoutMs: 300000,
			RetryAttempts: 2,
			MaxWorkers:    4,
			CriticalCount: 2,
			SmokeTest:     true,
		},
		History: HistoryConfig{
			Enabled:         true,
			MaxRunsPerTest:  20,
			RecentWindow:    5,
			CacheSelections: true,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load loads configuration from <projectRoot>/.tsel/config.json.
// A missing config file yields the defaults. TSEL_ORACLE_URL and
// TSEL_ORACLE_MODEL override the oracle endpoint; all other settings come
// from the config file.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("version", defaults.Version)
	v.SetDefault("projectRoot", projectRoot)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, ".tsel"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.ProjectRoot = projectRoot
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.ProjectRoot == "" || cfg.ProjectRoot == "." {
		cfg.ProjectRoot = projectRoot
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides handles the oracle endpoint keys, which deployments
// point at shared infrastructure without editing per-checkout config.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("TSEL_ORACLE_URL"); url != "" {
		cfg.Oracle.URL = url
	}
	if model := os.Getenv("TSEL_ORACLE_MODEL"); model != "" {
		cfg.Oracle.Model = model
	}
}

// Save writes the configuration to <projectRoot>/.tsel/config.json.
func (c *Config) Save(projectRoot string) error {
	dir := filepath.Join(projectRoot, ".tsel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Selection.MaxTests <= 0 {
		return &ConfigError{Field: "selection.maxTests", Message: "must be positive"}
	}
	if p := c.Selection.OraclePolicy; p != "replace" && p != "augment" {
		return &ConfigError{Field: "selection.oraclePolicy", Message: "must be 'replace' or 'augment'"}
	}
	if p := c.Analysis.Parser; p != "regex" && p != "treesitter" {
		return &ConfigError{Field: "analysis.parser", Message: "must be 'regex' or 'treesitter'"}
	}
	if c.Execution.RetryAttempts <= 0 {
		return &ConfigError{Field: "execution.retryAttempts", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
