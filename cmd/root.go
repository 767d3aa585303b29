package cmd

import (
	"fmt"
	"log/slog"
	"os"

	cfgpkg "github.com/KaramelBytes/declinescan/internal/config"
	"github.com/KaramelBytes/declinescan/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Overrides config if set
	flagLogLevel  string
	flagLogFormat string

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "declinescan",
	Short: "declinescan: rank today's declining stocks from a pasted watchlist",
	Long: `declinescan reads a watchlist exported from a brokerage screen (pasted CSV/TSV text or an .xlsx sheet),
finds the name, change-ratio and market columns, and ranks the issues that went down.
It prints a ranking, a treemap breakdown and a short share text, or serves the same over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.declinescan/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") && flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logger.Debug("config loaded",
		slog.String("config_file", cfgFile),
		slog.Int("markets", len(cfg.Markets)),
		slog.Any("selected_markets", cfg.SelectedMarkets),
	)
}

// ensureConfig covers commands invoked without cobra.OnInitialize (tests).
func ensureConfig() {
	if cfg == nil || logger == nil {
		loadConfig()
	}
}
