package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/declinescan/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set declinescan configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "markets:")
		for _, m := range cfg.Markets {
			fmt.Fprintf(out, "  %s: %s\n", m.Label, m.Code)
		}
		fmt.Fprintf(out, "selected_markets: %s\n", strings.Join(cfg.SelectedMarkets, ","))
		fmt.Fprintf(out, "name_keywords: %s\n", strings.Join(cfg.NameKeywords, ","))
		fmt.Fprintf(out, "ratio_keywords: %s\n", strings.Join(cfg.RatioKeywords, ","))
		fmt.Fprintf(out, "market_keywords: %s\n", strings.Join(cfg.MarketKeywords, ","))
		fmt.Fprintf(out, "name_fallback_index: %d\n", cfg.NameFallbackIndex)
		fmt.Fprintf(out, "mismatch_tolerance: %.3f\n", cfg.MismatchTolerance)
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", cfg.LogFormat)
		fmt.Fprintf(out, "listen_addr: %s\n", cfg.ListenAddr)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set a config value and save to disk.

List keys take a comma-separated value. markets takes label=code pairs,
e.g. "プライム=東Ｐ,スタンダード=東Ｓ,グロース=東Ｇ". name_fallback_index and
mismatch_tolerance accept -1 to disable them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		ensureConfig()
		switch key {
		case "markets":
			markets, err := parseMarkets(val)
			if err != nil {
				return err
			}
			cfg.Markets = markets
		case "selected_markets":
			cfg.SelectedMarkets = splitList(val)
		case "name_keywords":
			cfg.NameKeywords = splitList(val)
		case "ratio_keywords":
			cfg.RatioKeywords = splitList(val)
		case "market_keywords":
			cfg.MarketKeywords = splitList(val)
		case "name_fallback_index":
			i, err := strconv.Atoi(val)
			if err != nil || i < -1 {
				return fmt.Errorf("invalid int for name_fallback_index: %v (use >= 0, or -1 to disable)", val)
			}
			cfg.NameFallbackIndex = i
		case "mismatch_tolerance":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f < -1 || f > 1 {
				return fmt.Errorf("invalid float for mismatch_tolerance: %v (use 0..1, or -1 to disable)", val)
			}
			cfg.MismatchTolerance = f
		case "log_level":
			switch strings.ToLower(val) {
			case "debug", "info", "warn", "error":
				cfg.LogLevel = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid log_level: %s (use debug|info|warn|error)", val)
			}
		case "log_format":
			switch strings.ToLower(val) {
			case "text", "json":
				cfg.LogFormat = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid log_format: %s (use text|json)", val)
			}
		case "listen_addr":
			cfg.ListenAddr = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	// values such as -1 are arguments, not shorthand flags
	configSetCmd.Flags().SetInterspersed(false)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMarkets(s string) ([]cfgpkg.Market, error) {
	var out []cfgpkg.Market
	for _, p := range splitList(s) {
		label, code, ok := strings.Cut(p, "=")
		label, code = strings.TrimSpace(label), strings.TrimSpace(code)
		if !ok || label == "" || code == "" {
			return nil, fmt.Errorf("invalid market %q (use label=code)", p)
		}
		out = append(out, cfgpkg.Market{Label: label, Code: code})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("markets must not be empty")
	}
	return out, nil
}
