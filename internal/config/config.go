// Package config loads and validates Deep Vision configuration from YAML,
// with environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Deep Vision configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Interview behavior
	Interview InterviewConfig `yaml:"interview"`

	// Context window management (documents and history)
	Context ContextConfig `yaml:"context"`

	// Web search enrichment
	Search SearchConfig `yaml:"search"`

	// Session persistence
	Storage StorageConfig `yaml:"storage"`

	// Performance metrics
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, zai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// Timeouts as duration strings
	Timeout        string `yaml:"timeout"`         // interview/report calls
	SummaryTimeout string `yaml:"summary_timeout"` // compression calls

	MaxRetries int `yaml:"max_retries"`

	// Token ceilings per call kind
	InterviewMaxTokens int `yaml:"interview_max_tokens"`
	ReportMaxTokens    int `yaml:"report_max_tokens"`
	SummaryMaxTokens   int `yaml:"summary_max_tokens"`
}

// InterviewConfig configures question generation and follow-up behavior.
type InterviewConfig struct {
	// Formal answers needed per dimension before it is considered covered
	TargetPerDimension int `yaml:"target_per_dimension"`

	// Force model-based follow-up evaluation regardless of heuristic score
	AlwaysEvaluateFollowUps bool `yaml:"always_evaluate_follow_ups"`

	// Prompt length above which a timed-out call is retried with a
	// shortened prompt
	RetryShrinkThreshold int     `yaml:"retry_shrink_threshold"`
	RetryShrinkRatio     float64 `yaml:"retry_shrink_ratio"`
}

// ContextConfig configures document and history compression.
type ContextConfig struct {
	// Conversation history
	RecentTurnWindow int `yaml:"recent_turn_window"` // turns kept verbatim
	SummaryThreshold int `yaml:"summary_threshold"`  // turns before summarizing

	// Reference documents
	MaxDocLength          int `yaml:"max_doc_length"`          // per-document cap
	MaxTotalDocs          int `yaml:"max_total_docs"`          // combined cap
	SmartSummaryThreshold int `yaml:"smart_summary_threshold"` // trigger model summary
	SmartSummaryTarget    int `yaml:"smart_summary_target"`    // target summary length
}

// SearchConfig configures web search enrichment.
type SearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`

	// How many results go into the prompt
	MaxResults int `yaml:"max_results"`
}

// StorageConfig configures session persistence.
type StorageConfig struct {
	// Backend selects the persistence layer: "file" or "sqlite"
	Backend string `yaml:"backend"`

	// DataDir is the root for session files, logs, and the database
	DataDir string `yaml:"data_dir"`

	// DatabasePath overrides the default <data_dir>/deepvision.db
	DatabasePath string `yaml:"database_path"`
}

// MetricsConfig configures performance metric collection.
type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxRecords int  `yaml:"max_records"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "deep-vision",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:           "anthropic",
			Model:              "claude-sonnet-4-20250514",
			BaseURL:            "https://api.anthropic.com",
			Timeout:            "90s",
			SummaryTimeout:     "60s",
			MaxRetries:         3,
			InterviewMaxTokens: 1024,
			ReportMaxTokens:    4096,
			SummaryMaxTokens:   512,
		},

		Interview: InterviewConfig{
			TargetPerDimension:      3,
			AlwaysEvaluateFollowUps: false,
			RetryShrinkThreshold:    5000,
			RetryShrinkRatio:        0.7,
		},

		Context: ContextConfig{
			RecentTurnWindow:      5,
			SummaryThreshold:      8,
			MaxDocLength:          2000,
			MaxTotalDocs:          5000,
			SmartSummaryThreshold: 1500,
			SmartSummaryTarget:    800,
		},

		Search: SearchConfig{
			Enabled:    false,
			BaseURL:    "https://open.bigmodel.cn/api/mcp/web_search_prime/mcp",
			Timeout:    "10s",
			MaxResults: 3,
		},

		Storage: StorageConfig{
			Backend: "file",
			DataDir: "data",
		},

		Metrics: MetricsConfig{
			Enabled:    true,
			MaxRecords: 1000,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
// Missing file returns defaults; env overrides always apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API keys in priority order
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider != "zai" {
			c.LLM.Provider = "zai"
			// The anthropic defaults don't apply to this provider
			c.LLM.Model = ""
			c.LLM.BaseURL = ""
		}
	}
	if key := os.Getenv("DEEPVISION_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if model := os.Getenv("DEEPVISION_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("DEEPVISION_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	// Search
	if key := os.Getenv("ZHIPU_API_KEY"); key != "" {
		c.Search.APIKey = key
		c.Search.Enabled = true
	}
	if v := os.Getenv("DEEPVISION_SEARCH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Search.Enabled = b
		}
	}

	// Storage
	if dir := os.Getenv("DEEPVISION_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if path := os.Getenv("DEEPVISION_DB"); path != "" {
		c.Storage.DatabasePath = path
		c.Storage.Backend = "sqlite"
	}

	// Debug logging
	if v := os.Getenv("DEEPVISION_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// GetLLMTimeout returns the interview/report call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// GetSummaryTimeout returns the compression call timeout as a duration.
func (c *Config) GetSummaryTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.SummaryTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetSearchTimeout returns the web search timeout as a duration.
func (c *Config) GetSearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetDatabasePath returns the SQLite database path, defaulting to
// <data_dir>/deepvision.db.
func (c *Config) GetDatabasePath() string {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath
	}
	return filepath.Join(c.Storage.DataDir, "deepvision.db")
}

// placeholderKeys are template values that count as no key at all.
var placeholderKeys = []string{"your-api-key", "your_api_key", "changeme", "xxx"}

// LLMAvailable reports whether a usable LLM API key is configured. Template
// placeholder values left in a copied config file do not count.
func (c *Config) LLMAvailable() bool {
	key := strings.TrimSpace(c.LLM.APIKey)
	if key == "" {
		return false
	}
	lower := strings.ToLower(key)
	for _, placeholder := range placeholderKeys {
		if strings.Contains(lower, placeholder) {
			return false
		}
	}
	return true
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "zai"}

// ValidBackends lists all supported storage backends.
var ValidBackends = []string{"file", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY or ZAI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	validBackend := false
	for _, b := range ValidBackends {
		if c.Storage.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", c.Storage.Backend, ValidBackends)
	}

	if c.Context.RecentTurnWindow <= 0 {
		return fmt.Errorf("recent_turn_window must be positive")
	}
	if c.Context.SummaryThreshold <= c.Context.RecentTurnWindow {
		return fmt.Errorf("summary_threshold (%d) must exceed recent_turn_window (%d)",
			c.Context.SummaryThreshold, c.Context.RecentTurnWindow)
	}

	return nil
}
