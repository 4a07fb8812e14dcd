package main

import (
	"fmt"
	"os"
	"path/filepath"

	"deepvision/internal/config"
	"deepvision/internal/contextwin"
	"deepvision/internal/ingest"
	"deepvision/internal/interview"
	"deepvision/internal/llm"
	"deepvision/internal/logging"
	"deepvision/internal/metrics"
	"deepvision/internal/prompt"
	"deepvision/internal/report"
	"deepvision/internal/search"
	"deepvision/internal/store"
	"deepvision/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	dataDir    string
	verbose    bool
	jsonOutput bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deepvision",
	Short: "Deep Vision 深瞳 - AI-driven requirements interview assistant",
	Long: `Deep Vision runs multi-turn requirements interviews across four fixed
dimensions (customer needs, business process, tech constraints, project
constraints), evaluates answer depth to decide on follow-up questions,
and generates a structured requirements report with Mermaid diagrams.

Sessions persist across runs; without an API key the assistant falls
back to a built-in question bank and a deterministic report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app holds everything a command needs, wired once per invocation.
type app struct {
	cfg       *config.Config
	store     store.Store
	collector *metrics.Collector
	client    llm.Client
	manager   *interview.Manager
	engine    *interview.Engine
	reports   *report.Registry
	converter *ingest.Converter
	runner    *worker.Runner
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}

	if err := logging.Initialize(cfg.Storage.DataDir, cfg.Logging.DebugMode, cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize file logging: %w", err)
	}

	s, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(s, cfg.Metrics.Enabled)

	var client llm.Client
	if cfg.LLMAvailable() {
		switch cfg.LLM.Provider {
		case "zai":
			client = llm.NewZAIClientWithConfig(llm.ZAIConfig{
				APIKey:     cfg.LLM.APIKey,
				BaseURL:    cfg.LLM.BaseURL,
				Model:      cfg.LLM.Model,
				Timeout:    cfg.GetLLMTimeout(),
				MaxRetries: cfg.LLM.MaxRetries,
			})
		default:
			client = llm.NewAnthropicClientWithConfig(llm.AnthropicConfig{
				APIKey:     cfg.LLM.APIKey,
				BaseURL:    cfg.LLM.BaseURL,
				Model:      cfg.LLM.Model,
				Timeout:    cfg.GetLLMTimeout(),
				MaxRetries: cfg.LLM.MaxRetries,
			})
		}
		logger.Debug("LLM client ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))
	} else {
		logger.Warn("no LLM API key configured, using built-in question bank and simple reports")
	}

	var searcher search.Searcher
	if cfg.Search.Enabled && cfg.Search.APIKey != "" {
		searcher = search.NewMCPClient(cfg.Search.APIKey, cfg.Search.BaseURL, cfg.GetSearchTimeout())
	}

	compressor := contextwin.NewDocumentCompressor(client, s, collector, cfg)
	history := contextwin.NewHistoryCompressor(client, collector, cfg)
	builder := prompt.NewBuilder(compressor, history, searcher, cfg)

	reports, err := report.NewRegistry(filepath.Join(cfg.Storage.DataDir, "reports"))
	if err != nil {
		s.Close()
		return nil, err
	}

	runner := worker.NewRunner(2)

	return &app{
		cfg:       cfg,
		store:     s,
		collector: collector,
		client:    client,
		manager:   interview.NewManager(s, history, runner),
		engine:    interview.NewEngine(client, builder, s, reports, collector, cfg),
		reports:   reports,
		converter: ingest.NewConverter(ingest.DefaultCommand()),
		runner:    runner,
	}, nil
}

// close flushes background digest work before releasing the store.
func (a *app) close() {
	a.runner.Shutdown()
	_ = a.store.Close()
	logging.CloseAll()
}

// withApp wraps a command body with app setup and teardown.
func withApp(fn func(a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(a, cmd, args)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deepvision.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Machine-readable JSON output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
